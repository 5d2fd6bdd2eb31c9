// Package docqa wires the document question answering service together.
package docqa

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/docqa/pkg/app/cliflag"
	"github.com/kart-io/docqa/pkg/component"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/component/objectstore"
	"github.com/kart-io/docqa/pkg/component/postgres"
	"github.com/kart-io/docqa/pkg/component/redis"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	docqaopts "github.com/kart-io/docqa/pkg/options/docqa"
	httpopts "github.com/kart-io/docqa/pkg/options/http"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// VisionDisabled 作为 vision.provider 时不启用图片提取。
const VisionDisabled = "none"

// Options contains all docqa service options.
type Options struct {
	HTTP    *httpopts.Options `json:"http" mapstructure:"http"`
	Log     *logopts.Options  `json:"log" mapstructure:"log"`
	Tracing *tracing.Options  `json:"tracing" mapstructure:"tracing"`

	Postgres *postgres.Options    `json:"postgres" mapstructure:"postgres"`
	Redis    *redis.Options       `json:"redis" mapstructure:"redis"`
	Milvus   *milvus.Options      `json:"milvus" mapstructure:"milvus"`
	Storage  *objectstore.Options `json:"storage" mapstructure:"storage"`

	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	Chat      *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`
	Vision    *llmopts.ProviderOptions `json:"vision" mapstructure:"vision"`

	Ingest    *docqaopts.IngestOptions    `json:"ingest" mapstructure:"ingest"`
	Retrieval *docqaopts.RetrievalOptions `json:"retrieval" mapstructure:"retrieval"`
	Cache     *docqaopts.CacheOptions     `json:"cache" mapstructure:"cache"`

	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		HTTP:            httpopts.NewOptions(),
		Log:             logopts.NewOptions(),
		Tracing:         tracing.NewOptions(),
		Postgres:        postgres.NewOptions(),
		Redis:           redis.NewOptions(),
		Milvus:          milvus.NewOptions(),
		Storage:         objectstore.NewOptions(),
		Embedding:       llmopts.NewEmbeddingOptions(),
		Chat:            llmopts.NewChatOptions(),
		Vision:          llmopts.NewVisionOptions(),
		Ingest:          docqaopts.NewIngestOptions(),
		Retrieval:       docqaopts.NewRetrievalOptions(),
		Cache:           docqaopts.NewCacheOptions(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// section 一组带名称的配置。
type section struct {
	name string
	opts component.ConfigOptions
}

func (o *Options) sections() []section {
	return []section{
		{"http", o.HTTP},
		{"log", o.Log},
		{"tracing", o.Tracing},
		{"postgres", o.Postgres},
		{"redis", o.Redis},
		{"milvus", o.Milvus},
		{"storage", o.Storage},
		{"embedding", o.Embedding},
		{"chat", o.Chat},
		{"vision", o.Vision},
		{"ingest", o.Ingest},
		{"retrieval", o.Retrieval},
		{"cache", o.Cache},
	}
}

// Flags returns flags grouped by section.
func (o *Options) Flags() (fss cliflag.NamedFlagSets) {
	for _, s := range o.sections() {
		s.opts.AddFlags(fss.FlagSet(s.name), s.name+".")
	}
	fss.FlagSet("misc").DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")
	return fss
}

// Complete completes all the required options.
func (o *Options) Complete() error {
	var errs []error
	for _, s := range o.sections() {
		if err := s.opts.Complete(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Validate checks the options and aggregates every problem found.
func (o *Options) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	add("http", o.HTTP.Validate())
	add("log", o.Log.Validate())
	add("tracing", o.Tracing.Validate())
	add("postgres", o.Postgres.Validate())
	if o.needRedis() {
		add("redis", o.Redis.Validate())
	}
	if o.Milvus.Enabled {
		add("milvus", o.Milvus.Validate())
	}
	add("storage", o.Storage.Validate())
	add("embedding", o.Embedding.Validate())
	add("chat", o.Chat.Validate())
	if o.visionEnabled() {
		add("vision", o.Vision.Validate())
	}
	add("ingest", o.Ingest.Validate())
	add("retrieval", o.Retrieval.Validate())
	add("cache", o.Cache.Validate())

	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}
	return utilerrors.NewAggregate(errs)
}

// String returns the options as JSON. Secrets are excluded by their json tags.
func (o *Options) String() string {
	data, _ := json.Marshal(o)
	return string(data)
}

// needRedis 队列或向量缓存使用 Redis 时需要连接。
func (o *Options) needRedis() bool {
	return o.Ingest.Queue == docqaopts.QueueRedis || o.Cache.Enabled
}

func (o *Options) visionEnabled() bool {
	return o.Vision.Provider != "" && o.Vision.Provider != VisionDisabled
}
