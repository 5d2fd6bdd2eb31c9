package docqa

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/version"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/notify"
	"github.com/kart-io/docqa/internal/docqa/queue"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/docqa/chunker"
	"github.com/kart-io/docqa/internal/pkg/docqa/extractor"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/component/objectstore"
	"github.com/kart-io/docqa/pkg/component/postgres"
	"github.com/kart-io/docqa/pkg/component/redis"
	"github.com/kart-io/docqa/pkg/component/storage"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/infra/server"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docqa/pkg/llm/ollama"
	_ "github.com/kart-io/docqa/pkg/llm/openai"
	"github.com/kart-io/docqa/pkg/llm/resilience"
	docqaopts "github.com/kart-io/docqa/pkg/options/docqa"
)

var _ server.Runnable = (*notify.Hub)(nil)

// Server 持有运行中的服务及其依赖。
type Server struct {
	srv      *server.Manager
	storages *storage.Manager
	hub      *notify.Hub
	pool     *pool.Pool
	queue    queue.Queue
	tracer   *tracing.Provider
}

// NewServer 按依赖顺序初始化所有组件。
func NewServer(ctx context.Context, opts *Options) (s *Server, err error) {
	// 1. 初始化日志
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", version.Get().GitVersion)
	if err := opts.Log.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docqa service...")
	logger.Debugw("Loaded options", "options", opts.String())

	tracer, err := tracing.NewProvider(ctx, opts.Tracing, appName, version.Get().GitVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if opts.Tracing.Enabled {
		logger.Infow("Tracing initialized", "exporter", string(opts.Tracing.Exporter), "endpoint", opts.Tracing.Endpoint)
	}

	storages := storage.NewManager()
	defer func() {
		if err != nil {
			_ = storages.CloseAll()
			_ = tracer.Shutdown(context.Background())
		}
	}()
	dim := opts.Embedding.Dimensions

	// 2. 初始化 PostgreSQL 并执行迁移
	pg, err := postgres.NewWithContext(ctx, opts.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	if err := storages.Register("postgres", pg); err != nil {
		return nil, err
	}
	if opts.Postgres.AutoMigrate {
		if err := store.Migrate(ctx, opts.Postgres, pg.DB(), dim); err != nil {
			return nil, err
		}
		logger.Info("Database migrations applied")
	}

	// 3. 初始化 Redis（队列或向量缓存需要时）
	var rdb *goredis.Client
	if opts.needRedis() {
		rc, err := redis.NewWithContext(ctx, opts.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		if err := storages.Register("redis", rc); err != nil {
			return nil, err
		}
		rdb = rc.Client()
		logger.Infow("Redis client initialized", "host", opts.Redis.Host, "port", opts.Redis.Port)
	}

	// 4. 初始化对象存储
	objects, err := objectstore.New(ctx, opts.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	if err := storages.Register("objects", objects); err != nil {
		return nil, err
	}
	logger.Infow("Object store initialized", "provider", opts.Storage.Provider, "bucket", opts.Storage.Bucket)

	// 5. 初始化向量索引
	var vectors store.VectorIndex
	if opts.Milvus.Enabled {
		mc, err := milvus.New(ctx, opts.Milvus)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		if err := storages.Register("milvus", mc); err != nil {
			return nil, err
		}
		files := store.NewFactory(pg.DB(), nil, dim).Files()
		vectors, err = store.NewMilvusIndex(ctx, mc, files, opts.Milvus.Collection, dim)
		if err != nil {
			return nil, err
		}
		logger.Infow("Vector index initialized", "backend", "milvus", "collection", opts.Milvus.Collection)
	} else {
		logger.Infow("Vector index initialized", "backend", "pgvector")
	}
	factory := store.NewFactory(pg.DB(), vectors, dim)

	// 6. 初始化 LLM 供应商
	providers, err := newProviders(opts, rdb)
	if err != nil {
		return nil, err
	}

	// 7. 初始化指标与通知
	m := metrics.New()
	hub := notify.NewHub(0)

	// 8. 初始化队列
	var (
		q      queue.Queue
		leaser queue.Leaser
	)
	switch opts.Ingest.Queue {
	case docqaopts.QueueRedis:
		q = queue.NewRedisQueue(rdb, queue.WithRedisConsumer(opts.Ingest.ConsumerID))
		leaser = queue.NewRedisLeaser(rdb, "")
	default:
		q = queue.NewMemoryQueue(nil)
		leaser = queue.NewMemoryLeaser()
	}
	logger.Infow("Job queue initialized", "backend", opts.Ingest.Queue)

	// 9. 初始化 Biz 层
	embedder := biz.NewEmbeddingClient(providers.embedding, dim, opts.Embedding.Timeout, m)
	queryEmbedder := biz.NewEmbeddingClient(providers.query, dim, opts.Embedding.Timeout, m)
	ingestor := biz.NewIngestor(
		factory, objects,
		extractor.New(providers.vision),
		chunker.New(opts.Ingest.ChunkSize, opts.Ingest.ChunkOverlap),
		embedder, hub, m,
		biz.IngestorConfig{EmbedConcurrency: opts.Ingest.EmbedConcurrency},
	)
	fileSvc := biz.NewFileService(factory, objects, q, biz.FileServiceConfig{
		UploadURLTTL: opts.Retrieval.UploadURLTTL,
		MaxFileSize:  opts.HTTP.MaxUploadBytes,
	})
	var rewriteChat llm.ChatProvider
	if opts.Retrieval.Rewrite {
		rewriteChat = providers.rewrite
	}
	chatSvc := biz.NewChatService(
		biz.NewRewriter(rewriteChat, m),
		biz.NewRetriever(queryEmbedder, factory.Vectors(), objects, m, biz.RetrieverConfig{
			TopK:           opts.Retrieval.TopK,
			DownloadURLTTL: opts.Retrieval.DownloadURLTTL,
		}),
		biz.NewAnswerer(providers.answer, m),
		m, opts.Retrieval.ChatTimeout,
	)
	logger.Info("Biz layer initialized")

	// 10. 初始化入库工作者
	workers, err := pool.NewPool("ingest", pool.IngestPool, pool.IngestPoolConfig(opts.Ingest.Workers))
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest pool: %w", err)
	}
	worker := queue.NewWorker(q,
		queue.Dispatcher{IngestFile: ingestor.HandleJob, DeleteObject: fileSvc.DeleteObject},
		workers,
		queue.WithConfig(queue.WorkerConfig{
			Policy: queue.RetryPolicy{
				MaxAttempts: opts.Ingest.MaxAttempts,
				Backoff: resilience.Backoff{
					Initial:    opts.Ingest.BaseDelay,
					Multiplier: 2,
					Max:        opts.Ingest.MaxDelay,
				},
			},
			PollInterval:   opts.Ingest.PollInterval,
			JobTimeout:     opts.Ingest.JobTimeout,
			LeaseTTL:       opts.Ingest.LeaseTTL,
			LeaseBusyDelay: opts.Ingest.BaseDelay,
		}),
		queue.WithLeaser(leaser),
		queue.WithObserver(func(kind queue.Kind, outcome queue.Outcome, elapsed time.Duration) {
			m.RecordJob(string(kind), string(outcome), elapsed)
		}),
	)

	// 11. 初始化 HTTP 服务与路由
	httpServer := server.NewHTTPServer(opts.HTTP)
	router.Register(httpServer, opts.HTTP, &router.Handlers{
		Chat:    handler.NewChatHandler(chatSvc),
		Files:   handler.NewFileHandler(fileSvc),
		Events:  handler.NewEventsHandler(hub, 0),
		Stats:   handler.NewStatsHandler(m, factory, q, hub),
		Health:  handler.NewHealthHandler(storages),
		Metrics: m.Handler(),
	})

	// 按逆序停止：先关闭事件订阅，再停 HTTP，最后停工作者
	manager := server.NewManager(
		server.WithShutdownTimeout(opts.ShutdownTimeout),
		server.WithSignals(os.Interrupt, syscall.SIGTERM),
	)
	manager.AddServer(worker)
	manager.AddServer(httpServer)
	manager.AddServer(hub)

	logger.Info("docqa service is ready")
	return &Server{srv: manager, storages: storages, hub: hub, pool: workers, queue: q, tracer: tracer}, nil
}

// Run 启动服务并阻塞直到收到退出信号，退出后释放所有资源。
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		_ = s.hub.Close()
		_ = s.queue.Close()
		s.pool.Release()
		if err := s.storages.CloseAll(); err != nil {
			logger.Warnw("Failed to close storages", "error", err.Error())
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracer.Shutdown(ctx); err != nil {
			logger.Warnw("Failed to flush traces", "error", err.Error())
		}
	}()
	return s.srv.Run(ctx)
}

type providers struct {
	// embedding 供入库使用，带重试与熔断。
	embedding llm.EmbeddingProvider
	// query 与 rewrite 处于用户请求路径上，失败立即返回，不做任何重试。
	query   llm.EmbeddingProvider
	rewrite llm.ChatProvider
	// answer 为原始供应商，流式输出开始后不能重放。
	answer llm.ChatProvider
	vision llm.VisionProvider
}

// singleShot 关闭供应商 HTTP 层的重试。
func singleShot(config map[string]any) map[string]any {
	config["max_retries"] = 0
	return config
}

func newProviders(opts *Options, rdb *goredis.Client) (*providers, error) {
	retry := resilience.DefaultRetryConfig()
	once := resilience.SingleAttemptConfig()
	breaker := resilience.DefaultCircuitBreakerConfig()

	embed, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	query, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, singleShot(opts.Embedding.ToConfigMap()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query embedding provider: %w", err)
	}
	if opts.Cache.Enabled && rdb != nil {
		cacheCfg := &llm.EmbeddingCacheConfig{
			Enabled:   true,
			TTL:       opts.Cache.TTL,
			KeyPrefix: opts.Cache.KeyPrefix,
		}
		embed = llm.NewCachedEmbeddingProvider(embed, rdb, cacheCfg)
		query = llm.NewCachedEmbeddingProvider(query, rdb, cacheCfg)
	}
	p := &providers{
		embedding: resilience.WrapEmbedding(embed, retry, breaker),
		query:     resilience.WrapEmbedding(query, once, breaker),
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
		"cache.enabled", opts.Cache.Enabled,
	)

	chat, err := llm.NewChatProvider(opts.Chat.Provider, singleShot(opts.Chat.ToConfigMap()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	p.answer = chat
	p.rewrite = resilience.WrapChat(chat, once, breaker)
	logger.Infow("Chat provider initialized", "provider", opts.Chat.Provider, "model", opts.Chat.Model)

	if opts.visionEnabled() {
		vision, err := llm.NewVisionProvider(opts.Vision.Provider, opts.Vision.ToConfigMap())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vision provider: %w", err)
		}
		p.vision = resilience.WrapVision(vision, retry, breaker)
		logger.Infow("Vision provider initialized", "provider", opts.Vision.Provider, "model", opts.Vision.Model)
	} else {
		logger.Info("Vision provider disabled, image files will fail extraction")
	}
	return p, nil
}
