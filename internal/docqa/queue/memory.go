package queue

import (
	"context"
	"slices"
	"sync"
	"time"
)

type delayedItem struct {
	due time.Time
	raw []byte
}

// MemoryQueue 进程内队列，语义与 RedisQueue 相同，进程退出后任务丢失。
type MemoryQueue struct {
	mu         sync.Mutex
	ready      [][]byte
	delayed    []delayedItem
	processing map[string][]byte
	dead       [][]byte
	closed     bool
	now        func() time.Time
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue 创建内存队列。now 为 nil 时使用 time.Now。
func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{processing: make(map[string][]byte), now: now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	env, err := newEnvelope(job)
	if err != nil {
		return err
	}
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.ready = append(q.ready, raw)
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}

	now := q.now()
	q.delayed = slices.DeleteFunc(q.delayed, func(it delayedItem) bool {
		if it.due.After(now) {
			return false
		}
		q.ready = append(q.ready, it.raw)
		return true
	})

	if len(q.ready) == 0 {
		return nil, ErrEmpty
	}
	raw := q.ready[0]
	q.ready = q.ready[1:]

	d, err := decodeDelivery(raw)
	if err != nil {
		q.dead = append(q.dead, raw)
		return nil, err
	}
	q.processing[d.ID] = raw
	return d, nil
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, d.ID)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, d *Delivery, delay time.Duration, cause error) error {
	return q.schedule(d, delay, true, errString(cause))
}

func (q *MemoryQueue) Postpone(_ context.Context, d *Delivery, delay time.Duration) error {
	return q.schedule(d, delay, false, d.envelope.LastError)
}

func (q *MemoryQueue) schedule(d *Delivery, delay time.Duration, bump bool, lastErr string) error {
	raw, err := d.next(bump, lastErr)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, d.ID)
	q.delayed = append(q.delayed, delayedItem{due: q.now().Add(delay), raw: raw})
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, d *Delivery, cause error) error {
	raw, err := d.next(false, errString(cause))
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, d.ID)
	q.dead = append(q.dead, raw)
	return nil
}

func (q *MemoryQueue) Recover(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.processing)
	for id, raw := range q.processing {
		q.ready = append(q.ready, raw)
		delete(q.processing, id)
	}
	return n, nil
}

func (q *MemoryQueue) Stats(context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Ready:      int64(len(q.ready)),
		Delayed:    int64(len(q.delayed)),
		Processing: int64(len(q.processing)),
		Dead:       int64(len(q.dead)),
	}, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
