package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/queue"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/docqa/chunker"
	"github.com/kart-io/docqa/internal/pkg/docqa/extractor"
	"github.com/kart-io/docqa/pkg/component/objectstore"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/utils/id"
)

// ReasonEmptyContent 提取结果为空时记录的失败原因。
const ReasonEmptyContent = "empty content"

// statusRemoved 对象缺失、文件被删除时的结果，仅用于指标和日志。
const statusRemoved model.FileStatus = "removed"

// IngestorConfig 入库配置。
type IngestorConfig struct {
	// EmbedConcurrency 单个文件内并发计算向量的上限。
	EmbedConcurrency int
}

// Ingestor 执行单个文件的入库状态机：
// Uploaded → Processing → Indexed | Duplicate | Failed。
// 每一步都可以在任务重投递时安全重放。
type Ingestor struct {
	files     store.FileStore
	vectors   store.VectorIndex
	objects   objectstore.Store
	extractor *extractor.Extractor
	chunker   *chunker.Chunker
	embedder  *EmbeddingClient
	dedup     *DedupGate
	notifier  Notifier
	metrics   *metrics.Metrics
	config    IngestorConfig
}

// NewIngestor 创建入库器。
func NewIngestor(
	factory store.Factory,
	objects objectstore.Store,
	ext *extractor.Extractor,
	chk *chunker.Chunker,
	embedder *EmbeddingClient,
	notifier Notifier,
	m *metrics.Metrics,
	config IngestorConfig,
) *Ingestor {
	if config.EmbedConcurrency < 1 {
		config.EmbedConcurrency = 4
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Ingestor{
		files:     factory.Files(),
		vectors:   factory.Vectors(),
		objects:   objects,
		extractor: ext,
		chunker:   chk,
		embedder:  embedder,
		dedup:     NewDedupGate(factory.Files()),
		notifier:  notifier,
		metrics:   m,
		config:    config,
	}
}

// HandleJob 处理队列中的入库任务。
func (i *Ingestor) HandleJob(ctx context.Context, job queue.IngestFile) error {
	return i.Ingest(ctx, job.FileID)
}

// Ingest 对文件执行一次入库。业务终态（对象缺失、重复、内容为空）返回 nil，
// 其他错误在尽力将文件置为 Failed 后返回，交由队列重试。
func (i *Ingestor) Ingest(ctx context.Context, fileID string) error {
	start := time.Now()

	// 1. 加载文件，不存在说明已被清理
	file, err := i.files.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Infow("File no longer exists, skipping ingestion", "file_id", fileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load file %s: %w", fileID, err)
	}
	if file.Status.Terminal() {
		logger.Infow("File already in terminal status, skipping ingestion",
			"file_id", fileID, "status", string(file.Status))
		return nil
	}

	// 2. 进入 Processing
	if err := i.files.Transition(ctx, file.ID, model.FileStatusProcessing); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil
		case errors.Is(err, store.ErrInvalidTransition):
			return queue.Permanent(fmt.Errorf("file %s in status %s cannot be ingested: %w", file.ID, file.Status, err))
		}
		return fmt.Errorf("mark file %s processing: %w", file.ID, err)
	}

	ctx, span := tracing.Start(ctx, "docqa.ingest",
		tracing.String("file.id", file.ID),
		tracing.String("file.mime_type", file.MimeType),
		tracing.Int("job.attempt", queue.Attempt(ctx)),
	)
	status, chunks, err := i.run(ctx, file)
	span.SetAttributes(tracing.String("file.status", string(status)), tracing.Int("file.chunks", chunks))
	tracing.End(span, err)
	if err != nil {
		i.fail(ctx, file, err)
		i.metrics.RecordIngestion(string(model.FileStatusFailed), 0, time.Since(start))
		if errors.Is(err, store.ErrDimensionMismatch) {
			return queue.Permanent(err)
		}
		return err
	}

	i.metrics.RecordIngestion(string(status), chunks, time.Since(start))
	logger.Infow("Ingestion finished",
		"file_id", file.ID,
		"owner_id", file.OwnerID,
		"status", string(status),
		"chunks", chunks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// run 执行第 3 至 10 步，返回文件的最终状态。
func (i *Ingestor) run(ctx context.Context, file *model.File) (model.FileStatus, int, error) {
	// 3. 读取对象，缺失说明客户端没有完成上传
	data, err := i.objects.Get(ctx, file.StorageKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		logger.Warnw("Uploaded object is missing, removing file", "file_id", file.ID, "storage_key", file.StorageKey)
		if err := i.files.Delete(ctx, file.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", 0, fmt.Errorf("delete file %s: %w", file.ID, err)
		}
		return statusRemoved, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("fetch object %s: %w", file.StorageKey, err)
	}

	// 4. 内容哈希
	hash := i.dedup.Hash(data)

	// 5. 去重
	existing, err := i.dedup.Check(ctx, file, hash)
	if err != nil {
		return "", 0, fmt.Errorf("dedup check: %w", err)
	}
	if existing != nil {
		logger.Infow("Duplicate content detected", "file_id", file.ID, "existing_file_id", existing.ID)
		if err := i.markDuplicate(ctx, file, hash); err != nil {
			return "", 0, err
		}
		return model.FileStatusDuplicate, 0, nil
	}

	// 6. 保存哈希
	if err := i.files.SetHash(ctx, file.ID, hash); err != nil {
		return "", 0, fmt.Errorf("save hash: %w", err)
	}

	// 7. 提取文本
	text, err := i.extractor.Extract(ctx, data, file.MimeType)
	if errors.Is(err, extractor.ErrEmptyContent) {
		if err := i.files.MarkFailed(ctx, file.ID, ReasonEmptyContent); err != nil {
			return "", 0, fmt.Errorf("mark file failed: %w", err)
		}
		notifyFile(i.notifier, file, EventFileFailed, model.FileStatusFailed, 0, ReasonEmptyContent)
		return model.FileStatusFailed, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("extract %s: %w", file.MimeType, err)
	}

	// 8. 分块
	pieces := i.chunker.Split(text)

	// 9. 计算向量并写入，先清掉上一次失败尝试留下的分块
	chunks, err := i.embed(ctx, file, pieces)
	if err != nil {
		return "", 0, err
	}
	if err := i.vectors.DeleteByFile(ctx, file.ID); err != nil {
		return "", 0, fmt.Errorf("clear previous chunks: %w", err)
	}
	if err := i.vectors.Insert(ctx, chunks); err != nil {
		return "", 0, fmt.Errorf("insert chunks: %w", err)
	}

	// 10. 标记 Indexed，唯一索引冲突说明并发上传的相同内容已先完成
	err = i.files.MarkIndexed(ctx, file.ID, len(chunks))
	if errors.Is(err, store.ErrDuplicateContent) {
		logger.Infow("Duplicate content indexed concurrently", "file_id", file.ID)
		if err := i.vectors.DeleteByFile(ctx, file.ID); err != nil {
			return "", 0, fmt.Errorf("remove duplicate chunks: %w", err)
		}
		if err := i.markDuplicate(ctx, file, hash); err != nil {
			return "", 0, err
		}
		return model.FileStatusDuplicate, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("mark file indexed: %w", err)
	}

	notifyFile(i.notifier, file, EventFileIndexed, model.FileStatusIndexed, len(chunks), "")
	return model.FileStatusIndexed, len(chunks), nil
}

// embed 以有界并发为每个分块计算向量。
func (i *Ingestor) embed(ctx context.Context, file *model.File, pieces []string) ([]*model.Chunk, error) {
	chunks := make([]*model.Chunk, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.EmbedConcurrency)
	for idx, text := range pieces {
		g.Go(func() error {
			vec, err := i.embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", idx, err)
			}
			chunks[idx] = &model.Chunk{
				ID:      id.NewULID(),
				FileID:  file.ID,
				OwnerID: file.OwnerID,
				Content: text,
				Metadata: model.ChunkMetadata{
					FileName:   file.Name,
					ChunkIndex: idx,
					MimeType:   file.MimeType,
				},
				Embedding: pgvector.NewVector(vec),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// markDuplicate 尽力删除对象，然后置为 Duplicate。
func (i *Ingestor) markDuplicate(ctx context.Context, file *model.File, hash string) error {
	if err := i.objects.Delete(ctx, file.StorageKey); err != nil {
		logger.Warnw("Failed to delete duplicate object", "file_id", file.ID, "storage_key", file.StorageKey, "error", err.Error())
	}
	if err := i.files.MarkDuplicate(ctx, file.ID, hash); err != nil {
		return fmt.Errorf("mark file duplicate: %w", err)
	}
	notifyFile(i.notifier, file, EventFileDuplicate, model.FileStatusDuplicate, 0, "")
	return nil
}

// fail 尽力将文件置为 Failed，自身的失败只记录日志。
func (i *Ingestor) fail(ctx context.Context, file *model.File, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	logger.Errorw("Ingestion failed", "file_id", file.ID, "error", cause.Error())
	if err := i.files.MarkFailed(ctx, file.ID, cause.Error()); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Errorw("Failed to mark file failed", "file_id", file.ID, "error", err.Error())
		return
	}
	notifyFile(i.notifier, file, EventFileFailed, model.FileStatusFailed, 0, cause.Error())
}
