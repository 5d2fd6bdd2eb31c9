package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix Redis 队列键前缀。
const DefaultRedisPrefix = "docqa:queue:"

// promoteScript 将到期的延迟任务原子地移入就绪队列。
var promoteScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue 基于 Redis 列表与有序集合的队列。
//
//	{prefix}ready       LPUSH 入队，RPOPLPUSH 出队到 processing
//	{prefix}delayed     ZSET，score 为到期的 Unix 毫秒
//	{prefix}processing  处理中的信封，设置消费者 ID 时为 {prefix}processing:{consumer}
//	{prefix}dead        死信
//
// 未设置消费者 ID 时所有实例共用一个 processing 列表，Recover 会把其中全部信封
// 移回就绪队列，只适用于单个消费者。多副本部署需为每个实例设置稳定的消费者 ID。
type RedisQueue struct {
	client     goredis.UniversalClient
	prefix     string
	consumer   string
	ready      string
	delayed    string
	processing string
	dead       string
	batch      int
	now        func() time.Time
}

var _ Queue = (*RedisQueue)(nil)

// RedisOption 配置 RedisQueue。
type RedisOption func(*RedisQueue)

// WithRedisPrefix 设置键前缀。
func WithRedisPrefix(prefix string) RedisOption {
	return func(q *RedisQueue) { q.prefix = prefix }
}

// WithRedisConsumer 为本实例使用独立的 processing 列表，Recover 只回收本实例的信封。
func WithRedisConsumer(id string) RedisOption {
	return func(q *RedisQueue) { q.consumer = id }
}

// WithRedisClock 替换时钟，用于测试延迟投递。
func WithRedisClock(now func() time.Time) RedisOption {
	return func(q *RedisQueue) { q.now = now }
}

// NewRedisQueue 创建 Redis 队列。客户端的生命周期由调用方管理。
func NewRedisQueue(client goredis.UniversalClient, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{client: client, prefix: DefaultRedisPrefix, batch: 100, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	q.ready = q.prefix + "ready"
	q.delayed = q.prefix + "delayed"
	q.processing = q.prefix + "processing"
	if q.consumer != "" {
		q.processing += ":" + q.consumer
	}
	q.dead = q.prefix + "dead"
	return q
}

// Enqueue pushes a job onto the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	env, err := newEnvelope(job)
	if err != nil {
		return err
	}
	raw, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.ready, raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Kind(), err)
	}
	logger.Debugw("Job enqueued", "id", env.ID, "kind", string(env.Kind))
	return nil
}

// Dequeue promotes due delayed jobs, then moves one ready job to processing.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	now := q.now().UnixMilli()
	if err := promoteScript.Run(ctx, q.client, []string{q.delayed, q.ready}, now, q.batch).Err(); err != nil {
		return nil, fmt.Errorf("promote delayed jobs: %w", err)
	}

	raw, err := q.client.RPopLPush(ctx, q.ready, q.processing).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	d, err := decodeDelivery(raw)
	if err != nil {
		// 无法解码的信封直接移入死信，避免反复投递
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processing, 1, raw)
		pipe.LPush(ctx, q.dead, raw)
		if _, perr := pipe.Exec(ctx); perr != nil {
			logger.Errorw("Failed to dead-letter malformed job", "error", perr.Error())
		}
		return nil, err
	}
	return d, nil
}

// Ack removes the delivery from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	return q.client.LRem(ctx, q.processing, 1, d.raw).Err()
}

// Retry schedules the next attempt after delay.
func (q *RedisQueue) Retry(ctx context.Context, d *Delivery, delay time.Duration, cause error) error {
	return q.schedule(ctx, d, delay, true, errString(cause))
}

// Postpone reschedules the delivery without counting an attempt.
func (q *RedisQueue) Postpone(ctx context.Context, d *Delivery, delay time.Duration) error {
	return q.schedule(ctx, d, delay, false, d.envelope.LastError)
}

func (q *RedisQueue) schedule(ctx context.Context, d *Delivery, delay time.Duration, bump bool, lastErr string) error {
	raw, err := d.next(bump, lastErr)
	if err != nil {
		return err
	}
	due := q.now().Add(delay).UnixMilli()

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processing, 1, d.raw)
	pipe.ZAdd(ctx, q.delayed, goredis.Z{Score: float64(due), Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule job %s: %w", d.ID, err)
	}
	return nil
}

// DeadLetter moves the delivery to the dead-letter list.
func (q *RedisQueue) DeadLetter(ctx context.Context, d *Delivery, cause error) error {
	raw, err := d.next(false, errString(cause))
	if err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processing, 1, d.raw)
	pipe.LPush(ctx, q.dead, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", d.ID, err)
	}
	return nil
}

// Recover moves every job in this consumer's processing list back to the ready list.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.ready).Err()
		if errors.Is(err, goredis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover processing jobs: %w", err)
		}
		n++
	}
}

// Stats returns list lengths. Processing counts this consumer's list only.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.ready)
	delayed := pipe.ZCard(ctx, q.delayed)
	processing := pipe.LLen(ctx, q.processing)
	dead := pipe.LLen(ctx, q.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		Ready:      ready.Val(),
		Delayed:    delayed.Val(),
		Processing: processing.Val(),
		Dead:       dead.Val(),
	}, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }
