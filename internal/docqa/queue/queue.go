package queue

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/docqa/pkg/llm/resilience"
)

var (
	// ErrEmpty 当前没有可投递的任务。
	ErrEmpty = errors.New("queue is empty")
	// ErrUnknownKind 信封中的任务类型无法识别。
	ErrUnknownKind = errors.New("unknown job kind")
	// ErrClosed 队列已关闭。
	ErrClosed = errors.New("queue is closed")
)

// Queue 至少一次投递的任务队列。
//
// Dequeue 取出的任务在 Ack、Retry、Postpone 或 DeadLetter 之前处于处理中，
// 进程崩溃后由 Recover 放回就绪队列。
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue 取出一个到期任务，没有任务时返回 ErrEmpty。
	Dequeue(ctx context.Context) (*Delivery, error)
	// Ack 确认任务完成并移除。
	Ack(ctx context.Context, d *Delivery) error
	// Retry 记录失败，delay 之后以下一次尝试重新投递。
	Retry(ctx context.Context, d *Delivery, delay time.Duration, cause error) error
	// Postpone 推迟投递，不计入尝试次数。
	Postpone(ctx context.Context, d *Delivery, delay time.Duration) error
	// DeadLetter 将任务移入死信队列。
	DeadLetter(ctx context.Context, d *Delivery, cause error) error
	// Recover 将处理中的任务放回就绪队列，返回数量。
	Recover(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats 队列长度快照。
type Stats struct {
	Ready      int64 `json:"ready"`
	Delayed    int64 `json:"delayed"`
	Processing int64 `json:"processing"`
	Dead       int64 `json:"dead"`
}

// RetryPolicy 失败任务的重试策略。
type RetryPolicy struct {
	// MaxAttempts 最大投递次数（包括首次）。
	MaxAttempts int
	Backoff     resilience.Backoff
}

// DefaultRetryPolicy 3 次投递，首次重试前等待 1s，之后每次翻倍。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     resilience.Backoff{Initial: time.Second, Multiplier: 2, Max: 30 * time.Second},
	}
}

// Next 返回第 attempt 次投递失败后的等待时间，ok 为 false 表示不再重试。
func (p RetryPolicy) Next(attempt int) (delay time.Duration, ok bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return p.Backoff.Delay(attempt), true
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记不应重试的错误，任务直接进入死信队列。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误是否被 Permanent 标记。
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
