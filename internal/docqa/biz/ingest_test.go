package biz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/queue"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
)

// racyFiles 模拟两个入库任务同时通过去重检查。
type racyFiles struct {
	store.FileStore
}

func (racyFiles) FindIndexedByHash(context.Context, string, string, string) (*model.File, error) {
	return nil, store.ErrNotFound
}

func TestIngestMissingFile(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.ingestor.HandleJob(context.Background(), queue.IngestFile{FileID: "missing"}))
}

func TestIngestMissingObject(t *testing.T) {
	e := newEnv(t)
	e.upload(t, "f1", "alice", "a.txt", nil)

	require.NoError(t, e.ingestor.Ingest(context.Background(), "f1"))
	_, err := e.factory.files.Get(context.Background(), "f1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIngestIndexesText(t *testing.T) {
	e := newEnv(t)
	f := e.upload(t, "f1", "alice", "notes.txt", []byte(strings.Repeat("x", 1800)))

	require.NoError(t, e.ingestor.Ingest(context.Background(), f.ID))

	got := e.file(t, f.ID)
	assert.Equal(t, model.FileStatusIndexed, got.Status)
	assert.Equal(t, 2, got.ChunkCount)
	assert.Len(t, got.Hash(), 64)
	assert.EqualValues(t, 2, e.chunkCount(t))
	assert.Contains(t, e.notifier.events, EventFileIndexed)

	t.Run("终态文件再次投递不做处理", func(t *testing.T) {
		calls := e.embedder.calls
		require.NoError(t, e.ingestor.Ingest(context.Background(), f.ID))
		assert.Equal(t, calls, e.embedder.calls)
	})
}

func TestIngestDedup(t *testing.T) {
	e := newEnv(t)
	content := []byte("quarterly budget is 42")
	first := e.upload(t, "f1", "alice", "a.txt", content)
	second := e.upload(t, "f2", "alice", "b.txt", content)

	require.NoError(t, e.ingestor.Ingest(context.Background(), first.ID))
	require.NoError(t, e.ingestor.Ingest(context.Background(), second.ID))

	assert.Equal(t, model.FileStatusIndexed, e.file(t, first.ID).Status)
	dup := e.file(t, second.ID)
	assert.Equal(t, model.FileStatusDuplicate, dup.Status)
	assert.Equal(t, e.file(t, first.ID).Hash(), dup.Hash())
	assert.True(t, e.objects.Exists(first.StorageKey))
	assert.False(t, e.objects.Exists(second.StorageKey))
	assert.EqualValues(t, 1, e.chunkCount(t))

	t.Run("不同用户的相同内容各自入库", func(t *testing.T) {
		other := e.upload(t, "f3", "bob", "a.txt", content)
		require.NoError(t, e.ingestor.Ingest(context.Background(), other.ID))
		assert.Equal(t, model.FileStatusIndexed, e.file(t, other.ID).Status)
	})
}

func TestIngestDedupRace(t *testing.T) {
	e := newEnv(t)
	content := []byte("same bytes")
	first := e.upload(t, "f1", "alice", "a.txt", content)
	second := e.upload(t, "f2", "alice", "b.txt", content)
	require.NoError(t, e.ingestor.Ingest(context.Background(), first.ID))

	e.factory.files = racyFiles{FileStore: e.factory.files}
	racy := e.newIngestor()
	require.NoError(t, racy.Ingest(context.Background(), second.ID))

	assert.Equal(t, model.FileStatusIndexed, e.file(t, first.ID).Status)
	assert.Equal(t, model.FileStatusDuplicate, e.file(t, second.ID).Status)
	assert.EqualValues(t, 1, e.chunkCount(t))
	assert.False(t, e.objects.Exists(second.StorageKey))
}

func TestIngestEmptyContent(t *testing.T) {
	e := newEnv(t)
	f := e.upload(t, "f1", "alice", "blank.txt", []byte("   \n\t "))

	require.NoError(t, e.ingestor.Ingest(context.Background(), f.ID))

	got := e.file(t, f.ID)
	assert.Equal(t, model.FileStatusFailed, got.Status)
	assert.Equal(t, ReasonEmptyContent, got.Error)
	assert.Contains(t, e.notifier.events, EventFileFailed)
}

func TestIngestEmbeddingFailure(t *testing.T) {
	e := newEnv(t)
	f := e.upload(t, "f1", "alice", "a.txt", []byte("some content"))
	e.embedder.setErr(errors.New("provider down"))

	err := e.ingestor.Ingest(context.Background(), f.ID)
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))

	got := e.file(t, f.ID)
	assert.Equal(t, model.FileStatusFailed, got.Status)
	assert.Contains(t, got.Error, "provider down")
	assert.EqualValues(t, 0, e.chunkCount(t))

	t.Run("重试后成功入库", func(t *testing.T) {
		e.embedder.setErr(nil)
		require.NoError(t, e.ingestor.Ingest(context.Background(), f.ID))
		got := e.file(t, f.ID)
		assert.Equal(t, model.FileStatusIndexed, got.Status)
		assert.Empty(t, got.Error)
		assert.EqualValues(t, 1, e.chunkCount(t))
	})
}

func TestIngestPermanentErrors(t *testing.T) {
	t.Run("维度不符", func(t *testing.T) {
		e := newEnv(t)
		f := e.upload(t, "f1", "alice", "a.txt", []byte("hello"))
		e.embedder.vectors["hello"] = []float32{1, 2}

		err := e.ingestor.Ingest(context.Background(), f.ID)
		assert.True(t, queue.IsPermanent(err))
		assert.ErrorIs(t, err, store.ErrDimensionMismatch)
		assert.Equal(t, model.FileStatusFailed, e.file(t, f.ID).Status)
	})

	t.Run("未确认上传", func(t *testing.T) {
		e := newEnv(t)
		f := e.upload(t, "f1", "alice", "a.txt", []byte("hello"))
		require.NoError(t, e.db.Model(&model.File{}).Where("id = ?", f.ID).
			Update("status", model.FileStatusReserved).Error)

		err := e.ingestor.Ingest(context.Background(), f.ID)
		assert.True(t, queue.IsPermanent(err))
		assert.Equal(t, model.FileStatusReserved, e.file(t, f.ID).Status)
	})
}

func TestEmbeddingClient(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"empty": {},
		"zero":  {0, 0, 0},
		"short": {1},
	}}
	c := NewEmbeddingClient(emb, testDim, 0, nil)
	ctx := context.Background()

	v, err := c.Embed(ctx, "ok")
	require.NoError(t, err)
	assert.Len(t, v, testDim)

	_, err = c.Embed(ctx, "empty")
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
	_, err = c.Embed(ctx, "zero")
	assert.ErrorIs(t, err, ErrZeroEmbedding)
	_, err = c.Embed(ctx, "short")
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
}

func TestDedupGateHash(t *testing.T) {
	g := NewDedupGate(nil)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", g.Hash(nil))
	assert.Equal(t, g.Hash([]byte("a")), g.Hash([]byte("a")))
	assert.NotEqual(t, g.Hash([]byte("a")), g.Hash([]byte("b")))
}
