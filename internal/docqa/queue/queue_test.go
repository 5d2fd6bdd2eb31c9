package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newRedisQueue(t *testing.T, c *clock) (*RedisQueue, *miniredis.Miniredis, goredis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisQueue(rdb, WithRedisClock(c.now)), mr, rdb
}

// queueContract 两种实现共享的行为。
func queueContract(t *testing.T, q Queue, c *clock) {
	ctx := context.Background()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, q.Enqueue(ctx, IngestFile{FileID: "f1"}))
	require.NoError(t, q.Enqueue(ctx, DeleteObject{StorageKey: "users/u/k"}))

	t.Run("先进先出并保留负载类型", func(t *testing.T) {
		d, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, IngestFile{FileID: "f1"}, d.Job)
		assert.Equal(t, 1, d.Attempt)
		require.NoError(t, q.Ack(ctx, d))

		d, err = q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, DeleteObject{StorageKey: "users/u/k"}, d.Job)
		require.NoError(t, q.Ack(ctx, d))

		st, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{}, st)
	})

	t.Run("重试在到期前不投递", func(t *testing.T) {
		require.NoError(t, q.Enqueue(ctx, IngestFile{FileID: "f2"}))
		d, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Retry(ctx, d, 2*time.Second, errors.New("timeout")))

		_, err = q.Dequeue(ctx)
		require.ErrorIs(t, err, ErrEmpty)
		st, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, st.Delayed)

		c.advance(2 * time.Second)
		d, err = q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, d.Attempt)
		assert.Equal(t, "timeout", d.envelope.LastError)

		require.NoError(t, q.Postpone(ctx, d, 0))
		d, err = q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, d.Attempt, "postpone keeps the attempt count")

		require.NoError(t, q.DeadLetter(ctx, d, errors.New("gave up")))
		st, err = q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Dead: 1}, st)
	})

	t.Run("恢复处理中的任务", func(t *testing.T) {
		require.NoError(t, q.Enqueue(ctx, IngestFile{FileID: "f3"}))
		_, err := q.Dequeue(ctx)
		require.NoError(t, err)

		n, err := q.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		d, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, IngestFile{FileID: "f3"}, d.Job)
		require.NoError(t, q.Ack(ctx, d))
	})
}

func TestRedisQueue(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	q, _, _ := newRedisQueue(t, c)
	queueContract(t, q, c)
}

func TestRedisQueueConsumers(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	a := NewRedisQueue(rdb, WithRedisClock(c.now), WithRedisConsumer("worker-a"))
	b := NewRedisQueue(rdb, WithRedisClock(c.now), WithRedisConsumer("worker-b"))
	queueContract(t, a, c)

	require.NoError(t, a.Enqueue(ctx, IngestFile{FileID: "busy"}))
	d, err := a.Dequeue(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(DefaultRedisPrefix+"processing:worker-a"))

	// 另一个实例重启时不回收仍在处理中的任务
	n, err := b.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = b.Dequeue(ctx)
	require.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, a.Ack(ctx, d))
	assert.False(t, mr.Exists(DefaultRedisPrefix+"processing:worker-a"))
}

func TestMemoryQueue(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	q := NewMemoryQueue(c.now)
	queueContract(t, q, c)

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(context.Background(), IngestFile{FileID: "x"}), ErrClosed)
}

func TestRedisQueueMalformedEnvelope(t *testing.T) {
	c := &clock{t: time.Now()}
	q, _, rdb := newRedisQueue(t, c)
	ctx := context.Background()

	require.NoError(t, rdb.LPush(ctx, DefaultRedisPrefix+"ready", "not msgpack").Err())
	_, err := q.Dequeue(ctx)
	require.Error(t, err)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Dead: 1}, st)
}

func TestRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	d, ok := p.Next(1)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	d, ok = p.Next(2)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	_, ok = p.Next(3)
	assert.False(t, ok)
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("bad payload")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

func TestLeasers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	leasers := map[string]Leaser{
		"redis":  NewRedisLeaser(rdb, ""),
		"memory": NewMemoryLeaser(),
	}
	for name, l := range leasers {
		t.Run(name, func(t *testing.T) {
			release, ok, err := l.Acquire(ctx, "file:f1", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			_, ok, err = l.Acquire(ctx, "file:f1", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = l.Acquire(ctx, "file:f2", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, release(ctx))
			_, ok, err = l.Acquire(ctx, "file:f1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}

	t.Run("过期后可重新获取", func(t *testing.T) {
		l := NewRedisLeaser(rdb, "test:lease:")
		stale, ok, err := l.Acquire(ctx, "k", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)
		_, ok, err = l.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		// 过期的持有者不能释放新租约
		require.NoError(t, stale(ctx))
		_, ok, err = l.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
