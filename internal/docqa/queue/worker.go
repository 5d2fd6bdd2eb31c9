package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/infra/pool"
)

// Handler 处理一个任务。返回 nil 表示任务完成，错误会按重试策略处理。
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// Dispatcher 按任务类型分派到对应的处理函数。
type Dispatcher struct {
	IngestFile   func(ctx context.Context, job IngestFile) error
	DeleteObject func(ctx context.Context, job DeleteObject) error
}

var _ Handler = Dispatcher{}

// Handle dispatches on the concrete job type.
func (d Dispatcher) Handle(ctx context.Context, job Job) error {
	switch j := job.(type) {
	case IngestFile:
		if d.IngestFile == nil {
			return Permanent(fmt.Errorf("no handler for %s", j.Kind()))
		}
		return d.IngestFile(ctx, j)
	case DeleteObject:
		if d.DeleteObject == nil {
			return Permanent(fmt.Errorf("no handler for %s", j.Kind()))
		}
		return d.DeleteObject(ctx, j)
	default:
		return Permanent(fmt.Errorf("%w: %T", ErrUnknownKind, job))
	}
}

type attemptKey struct{}

// WithAttempt 返回携带投递次数的上下文。
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// Attempt 返回 ctx 中的投递次数，不在任务中执行时为 0。
func Attempt(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

// Outcome 一次投递的处理结果。
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetried   Outcome = "retried"
	OutcomeDead      Outcome = "dead"
	OutcomePostponed Outcome = "postponed"
)

// Observer 在每次投递结束时被调用。
type Observer func(kind Kind, outcome Outcome, elapsed time.Duration)

// WorkerConfig 工作者配置。
type WorkerConfig struct {
	Policy       RetryPolicy
	PollInterval time.Duration
	JobTimeout   time.Duration
	LeaseTTL     time.Duration
	// LeaseBusyDelay 租约被占用时推迟投递的时间。
	LeaseBusyDelay time.Duration
}

// DefaultWorkerConfig 返回默认配置。
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Policy:         DefaultRetryPolicy(),
		PollInterval:   time.Second,
		JobTimeout:     5 * time.Minute,
		LeaseTTL:       10 * time.Minute,
		LeaseBusyDelay: 5 * time.Second,
	}
}

// WorkerOption 配置 Worker。
type WorkerOption func(*Worker)

// WithConfig 设置工作者配置。
func WithConfig(cfg WorkerConfig) WorkerOption {
	return func(w *Worker) { w.cfg = cfg }
}

// WithLeaser 设置租约实现，保证同一文件同一时刻只有一个任务在执行。
func WithLeaser(l Leaser) WorkerOption {
	return func(w *Worker) { w.leaser = l }
}

// WithObserver 设置结果观察者，用于指标采集。
func WithObserver(o Observer) WorkerOption {
	return func(w *Worker) { w.observer = o }
}

// Worker 从队列拉取任务并提交到协程池执行。
// 池满时提交阻塞，拉取随之暂停。
type Worker struct {
	queue    Queue
	handler  Handler
	pool     *pool.Pool
	leaser   Leaser
	cfg      WorkerConfig
	observer Observer

	mu       sync.Mutex
	baseCtx  context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	inflight sync.WaitGroup
}

// NewWorker 创建工作者。
func NewWorker(q Queue, h Handler, p *pool.Pool, opts ...WorkerOption) *Worker {
	w := &Worker{queue: q, handler: h, pool: p, cfg: DefaultWorkerConfig()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the worker name.
func (w *Worker) Name() string { return "ingest-worker" }

// Start recovers in-flight jobs from a previous run and starts polling.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return errors.New("worker already started")
	}

	n, err := w.queue.Recover(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warnw("Recovered in-flight jobs", "count", n)
	}

	// 任务上下文不随启动上下文取消，停止时等待执行中的任务结束
	w.baseCtx = context.WithoutCancel(ctx)
	loopCtx, cancel := context.WithCancel(w.baseCtx)
	w.cancel = cancel
	w.loopDone = make(chan struct{})
	go w.loop(loopCtx)

	logger.Infow("Worker started",
		"poll_interval", w.cfg.PollInterval.String(),
		"max_attempts", w.cfg.Policy.MaxAttempts,
	)
	return nil
}

// Stop stops polling and waits for running jobs until ctx is done.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, loopDone := w.cancel, w.loopDone
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		<-loopDone
		w.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker stop: %w", ctx.Err())
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.loopDone)

	for {
		if ctx.Err() != nil {
			return
		}

		d, err := w.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, ErrEmpty) && ctx.Err() == nil {
				logger.Errorw("Dequeue failed", "error", err.Error())
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}

		w.inflight.Add(1)
		if err := w.pool.Submit(func() {
			defer w.inflight.Done()
			w.process(d)
		}); err != nil {
			w.inflight.Done()
			logger.Warnw("Submit job failed, postponing", "id", d.ID, "error", err.Error())
			if perr := w.queue.Postpone(w.baseCtx, d, w.cfg.PollInterval); perr != nil {
				logger.Errorw("Postpone job failed", "id", d.ID, "error", perr.Error())
			}
		}
	}
}

func (w *Worker) process(d *Delivery) {
	start := time.Now()
	kind := d.Job.Kind()

	ctx, cancel := context.WithTimeout(WithAttempt(w.baseCtx, d.Attempt), w.cfg.JobTimeout)
	defer cancel()

	if key := d.Job.LeaseKey(); key != "" && w.leaser != nil {
		release, ok, err := w.leaser.Acquire(ctx, key, w.cfg.LeaseTTL)
		if err != nil {
			w.settle(d, fmt.Errorf("acquire lease %s: %w", key, err), start)
			return
		}
		if !ok {
			logger.Infow("Job lease busy, postponing", "id", d.ID, "kind", string(kind), "lease", key)
			if err := w.queue.Postpone(w.baseCtx, d, w.cfg.LeaseBusyDelay); err != nil {
				logger.Errorw("Postpone job failed", "id", d.ID, "error", err.Error())
			}
			w.observe(kind, OutcomePostponed, start)
			return
		}
		defer func() {
			if err := release(w.baseCtx); err != nil {
				logger.Warnw("Release lease failed", "lease", key, "error", err.Error())
			}
		}()
	}

	w.settle(d, w.handler.Handle(ctx, d.Job), start)
}

// settle 根据处理结果确认、重试或移入死信。
func (w *Worker) settle(d *Delivery, err error, start time.Time) {
	kind := d.Job.Kind()
	ctx := w.baseCtx

	if err == nil {
		if aerr := w.queue.Ack(ctx, d); aerr != nil {
			logger.Errorw("Ack job failed", "id", d.ID, "error", aerr.Error())
		}
		logger.Infow("Job succeeded",
			"id", d.ID,
			"kind", string(kind),
			"attempt", d.Attempt,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		w.observe(kind, OutcomeSucceeded, start)
		return
	}

	if delay, ok := w.cfg.Policy.Next(d.Attempt); ok && !IsPermanent(err) {
		logger.Warnw("Job failed, will retry",
			"id", d.ID,
			"kind", string(kind),
			"attempt", d.Attempt,
			"retry_in", delay.String(),
			"error", err.Error(),
		)
		if rerr := w.queue.Retry(ctx, d, delay, err); rerr != nil {
			logger.Errorw("Retry job failed", "id", d.ID, "error", rerr.Error())
		}
		w.observe(kind, OutcomeRetried, start)
		return
	}

	logger.Errorw("Job dead-lettered",
		"id", d.ID,
		"kind", string(kind),
		"attempt", d.Attempt,
		"error", err.Error(),
	)
	if derr := w.queue.DeadLetter(ctx, d, err); derr != nil {
		logger.Errorw("Dead-letter job failed", "id", d.ID, "error", derr.Error())
	}
	w.observe(kind, OutcomeDead, start)
}

func (w *Worker) observe(kind Kind, outcome Outcome, start time.Time) {
	if w.observer != nil {
		w.observer(kind, outcome, time.Since(start))
	}
}
