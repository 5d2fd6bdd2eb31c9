// Package docqa provides options for the ingestion pipeline, retrieval and caches.
package docqa

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// 队列后端。
const (
	QueueRedis  = "redis"
	QueueMemory = "memory"
)

// IngestOptions 入库流水线配置。
type IngestOptions struct {
	// Queue 队列后端：redis 或 memory。
	Queue string `json:"queue" mapstructure:"queue"`
	// ConsumerID Redis 队列的消费者 ID，多副本部署时每个实例需唯一且重启后不变。
	ConsumerID string `json:"consumer-id" mapstructure:"consumer-id"`
	// Workers 同时处理的文件数。
	Workers int `json:"workers" mapstructure:"workers"`
	// EmbedConcurrency 单个文件内并发计算向量的上限。
	EmbedConcurrency int `json:"embed-concurrency" mapstructure:"embed-concurrency"`

	MaxAttempts int           `json:"max-attempts" mapstructure:"max-attempts"`
	BaseDelay   time.Duration `json:"base-delay" mapstructure:"base-delay"`
	MaxDelay    time.Duration `json:"max-delay" mapstructure:"max-delay"`

	// LeaseTTL 单个文件处理租约的有效期，需大于一次入库的最长耗时。
	LeaseTTL time.Duration `json:"lease-ttl" mapstructure:"lease-ttl"`
	// PollInterval 队列空闲时的轮询间隔。
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`
	// JobTimeout 单次入库任务的超时。
	JobTimeout time.Duration `json:"job-timeout" mapstructure:"job-timeout"`

	ChunkSize    int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
}

// NewIngestOptions 创建默认入库配置。
func NewIngestOptions() *IngestOptions {
	return &IngestOptions{
		Queue:            QueueRedis,
		Workers:          4,
		EmbedConcurrency: 4,
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		LeaseTTL:         10 * time.Minute,
		PollInterval:     time.Second,
		JobTimeout:       5 * time.Minute,
		ChunkSize:        1000,
		ChunkOverlap:     200,
	}
}

// AddFlags adds flags for ingest options to the specified FlagSet.
func (o *IngestOptions) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.Queue, namePrefix+"queue", o.Queue, "Job queue backend (redis, memory)")
	fs.StringVar(&o.ConsumerID, namePrefix+"consumer-id", o.ConsumerID, "Stable per-replica consumer ID for the redis queue; empty means a single consumer")
	fs.IntVar(&o.Workers, namePrefix+"workers", o.Workers, "Number of files ingested concurrently")
	fs.IntVar(&o.EmbedConcurrency, namePrefix+"embed-concurrency", o.EmbedConcurrency, "Concurrent embedding calls per file (1-8)")
	fs.IntVar(&o.MaxAttempts, namePrefix+"max-attempts", o.MaxAttempts, "Delivery attempts per job before dead-lettering")
	fs.DurationVar(&o.BaseDelay, namePrefix+"base-delay", o.BaseDelay, "Delay before the first retry; doubles on each retry")
	fs.DurationVar(&o.MaxDelay, namePrefix+"max-delay", o.MaxDelay, "Upper bound for the retry delay")
	fs.DurationVar(&o.LeaseTTL, namePrefix+"lease-ttl", o.LeaseTTL, "Per-file processing lease")
	fs.DurationVar(&o.PollInterval, namePrefix+"poll-interval", o.PollInterval, "Queue poll interval when idle")
	fs.DurationVar(&o.JobTimeout, namePrefix+"job-timeout", o.JobTimeout, "Timeout for a single ingestion run")
	fs.IntVar(&o.ChunkSize, namePrefix+"chunk-size", o.ChunkSize, "Chunk size in characters")
	fs.IntVar(&o.ChunkOverlap, namePrefix+"chunk-overlap", o.ChunkOverlap, "Overlap between consecutive chunks in characters")
}

// Complete completes the ingest options.
func (o *IngestOptions) Complete() error {
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	return nil
}

// Validate validates the ingest options.
func (o *IngestOptions) Validate() error {
	switch o.Queue {
	case QueueRedis, QueueMemory:
	default:
		return fmt.Errorf("ingest.queue %q is invalid", o.Queue)
	}
	if o.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1")
	}
	if o.EmbedConcurrency < 1 || o.EmbedConcurrency > 8 {
		return fmt.Errorf("ingest.embed-concurrency must be in [1,8]")
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("ingest.max-attempts must be at least 1")
	}
	if o.BaseDelay <= 0 {
		return fmt.Errorf("ingest.base-delay must be positive")
	}
	if o.LeaseTTL <= o.JobTimeout {
		return fmt.Errorf("ingest.lease-ttl must exceed ingest.job-timeout")
	}
	if o.ChunkSize <= 0 || o.ChunkOverlap < 0 || o.ChunkOverlap*2 >= o.ChunkSize {
		return fmt.Errorf("ingest.chunk-overlap must be non-negative and less than half of ingest.chunk-size")
	}
	return nil
}

// RetrievalOptions 检索与对话配置。
type RetrievalOptions struct {
	TopK int `json:"top-k" mapstructure:"top-k"`
	// UploadURLTTL 上传地址有效期。
	UploadURLTTL time.Duration `json:"upload-url-ttl" mapstructure:"upload-url-ttl"`
	// DownloadURLTTL 引用下载地址有效期。
	DownloadURLTTL time.Duration `json:"download-url-ttl" mapstructure:"download-url-ttl"`
	// ChatTimeout 单次对话请求的总时限。
	ChatTimeout time.Duration `json:"chat-timeout" mapstructure:"chat-timeout"`
	// Rewrite 是否启用多轮对话的查询改写。
	Rewrite bool `json:"rewrite" mapstructure:"rewrite"`
}

// NewRetrievalOptions 创建默认检索配置。
func NewRetrievalOptions() *RetrievalOptions {
	return &RetrievalOptions{
		TopK:           5,
		UploadURLTTL:   5 * time.Minute,
		DownloadURLTTL: time.Hour,
		ChatTimeout:    120 * time.Second,
		Rewrite:        true,
	}
}

// AddFlags adds flags for retrieval options to the specified FlagSet.
func (o *RetrievalOptions) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.IntVar(&o.TopK, namePrefix+"top-k", o.TopK, "Number of chunks returned by similarity search")
	fs.DurationVar(&o.UploadURLTTL, namePrefix+"upload-url-ttl", o.UploadURLTTL, "Lifetime of presigned upload URLs")
	fs.DurationVar(&o.DownloadURLTTL, namePrefix+"download-url-ttl", o.DownloadURLTTL, "Lifetime of presigned citation URLs")
	fs.DurationVar(&o.ChatTimeout, namePrefix+"chat-timeout", o.ChatTimeout, "Deadline for a single chat request")
	fs.BoolVar(&o.Rewrite, namePrefix+"rewrite", o.Rewrite, "Rewrite multi-turn questions into standalone queries")
}

// Complete completes the retrieval options.
func (o *RetrievalOptions) Complete() error { return nil }

// Validate validates the retrieval options.
func (o *RetrievalOptions) Validate() error {
	if o.TopK < 1 {
		return fmt.Errorf("retrieval.top-k must be at least 1")
	}
	if o.UploadURLTTL <= 0 || o.DownloadURLTTL <= 0 {
		return fmt.Errorf("retrieval URL TTLs must be positive")
	}
	if o.ChatTimeout <= 0 {
		return fmt.Errorf("retrieval.chat-timeout must be positive")
	}
	return nil
}

// CacheOptions 向量缓存配置。
type CacheOptions struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewCacheOptions 创建默认缓存配置。
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "docqa:emb:",
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *CacheOptions) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.BoolVar(&o.Enabled, namePrefix+"enabled", o.Enabled, "Cache embeddings in Redis")
	fs.DurationVar(&o.TTL, namePrefix+"ttl", o.TTL, "Embedding cache TTL")
	fs.StringVar(&o.KeyPrefix, namePrefix+"key-prefix", o.KeyPrefix, "Embedding cache key prefix")
}

// Complete completes the cache options.
func (o *CacheOptions) Complete() error { return nil }

// Validate validates the cache options.
func (o *CacheOptions) Validate() error {
	if o.Enabled && o.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}
	return nil
}
