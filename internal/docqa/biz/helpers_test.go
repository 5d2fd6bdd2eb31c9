package biz

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/queue"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/docqa/chunker"
	"github.com/kart-io/docqa/internal/pkg/docqa/extractor"
	"github.com/kart-io/docqa/pkg/component/objectstore"
	"github.com/kart-io/docqa/pkg/llm"
)

const testDim = 3

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

var _ llm.EmbeddingProvider = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeChat struct {
	reply    string
	err      error
	tokens   []string
	received [][]llm.Message
}

var _ llm.StreamingChatProvider = (*fakeChat)(nil)

func (f *fakeChat) Name() string { return "fake-chat" }

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	f.received = append(f.received, messages)
	return f.reply, f.err
}

func (f *fakeChat) Generate(ctx context.Context, prompt, system string) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleSystem, Content: system}, {Role: llm.RoleUser, Content: prompt}})
}

func (f *fakeChat) ChatStream(_ context.Context, messages []llm.Message, onToken llm.TokenHandler) error {
	f.received = append(f.received, messages)
	for _, t := range f.tokens {
		if err := onToken(t); err != nil {
			return err
		}
	}
	return f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) IsOnline(string) bool { return true }

func (n *recordingNotifier) SendTo(_ string, event string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// factory 允许替换 FileStore，用于模拟并发竞争。
type factory struct {
	files   store.FileStore
	vectors store.VectorIndex
}

func (f *factory) Files() store.FileStore     { return f.files }
func (f *factory) Vectors() store.VectorIndex { return f.vectors }
func (f *factory) Close() error               { return nil }

type env struct {
	db       *gorm.DB
	factory  *factory
	objects  *objectstore.MemoryStore
	queue    *queue.MemoryQueue
	embedder *fakeEmbedder
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	ingestor *Ingestor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, store.AutoMigrate(db))

	files := store.NewFactory(db, nil, testDim).Files()
	e := &env{
		db:       db,
		factory:  &factory{files: files, vectors: store.NewMemoryIndex(files, testDim)},
		objects:  objectstore.NewMemoryStore("test"),
		queue:    queue.NewMemoryQueue(nil),
		embedder: &fakeEmbedder{vectors: map[string][]float32{}},
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
	}
	e.ingestor = e.newIngestor()
	return e
}

func (e *env) newIngestor() *Ingestor {
	return NewIngestor(
		e.factory,
		e.objects,
		extractor.New(nil),
		chunker.New(chunker.DefaultSize, chunker.DefaultOverlap),
		NewEmbeddingClient(e.embedder, testDim, 0, e.metrics),
		e.notifier,
		e.metrics,
		IngestorConfig{EmbedConcurrency: 4},
	)
}

// upload 创建一个 Uploaded 文件，content 不为 nil 时写入对象。
func (e *env) upload(t *testing.T, id, owner, name string, content []byte) *model.File {
	t.Helper()
	f := &model.File{
		ID:         id,
		StorageKey: objectstore.BuildKey(owner, name),
		OwnerID:    owner,
		MimeType:   "text/plain",
		Name:       name,
		Status:     model.FileStatusUploaded,
	}
	require.NoError(t, e.factory.files.Create(context.Background(), f))
	if content != nil {
		require.NoError(t, e.objects.Put(context.Background(), f.StorageKey, content, f.MimeType))
	}
	return f
}

func (e *env) file(t *testing.T, id string) *model.File {
	t.Helper()
	f, err := e.factory.files.Get(context.Background(), id)
	require.NoError(t, err)
	return f
}

func (e *env) chunkCount(t *testing.T) int64 {
	t.Helper()
	n, err := e.factory.vectors.Count(context.Background())
	require.NoError(t, err)
	return n
}
