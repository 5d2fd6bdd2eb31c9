package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/objectstore"
	"github.com/kart-io/docqa/pkg/infra/tracing"
)

// LinkUnavailable 无法签发下载地址时使用的链接。
const LinkUnavailable = "unavailable"

// Source 一条带引用信息的检索结果。
type Source struct {
	Content    string  `json:"content"`
	Name       string  `json:"name"`
	Link       string  `json:"link"`
	Visibility string  `json:"visibility"`
	Distance   float64 `json:"distance"`
	FileID     string  `json:"file_id"`
	ChunkIndex int     `json:"chunk_index"`
}

// RetrieverConfig 检索配置。
type RetrieverConfig struct {
	TopK           int
	DownloadURLTTL time.Duration
}

// Retriever 嵌入查询，执行带访问控制的相似度检索并组装引用。
type Retriever struct {
	embedder *EmbeddingClient
	vectors  store.VectorIndex
	objects  objectstore.Store
	metrics  *metrics.Metrics
	config   RetrieverConfig
}

// NewRetriever 创建检索器。
func NewRetriever(embedder *EmbeddingClient, vectors store.VectorIndex, objects objectstore.Store, m *metrics.Metrics, config RetrieverConfig) *Retriever {
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.DownloadURLTTL <= 0 {
		config.DownloadURLTTL = time.Hour
	}
	return &Retriever{embedder: embedder, vectors: vectors, objects: objects, metrics: m, config: config}
}

// Retrieve 返回 userID 可见的最相近的分块，按距离升序。
func (r *Retriever) Retrieve(ctx context.Context, query, userID string) ([]Source, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "docqa.retrieve", tracing.Int("retrieval.top_k", r.config.TopK))
	sources, err := r.retrieve(ctx, query, userID)
	span.SetAttributes(tracing.Int("retrieval.sources", len(sources)))
	tracing.End(span, err)
	r.metrics.RecordRetrieval(time.Since(start), err)
	return sources, err
}

func (r *Retriever) retrieve(ctx context.Context, query, userID string) ([]Source, error) {
	// 1. 嵌入查询
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// 2. 相似度检索，可见性在索引内过滤
	hits, err := r.vectors.Search(ctx, vec, userID, r.config.TopK)
	if err != nil {
		return nil, err
	}

	// 3. 签发下载地址并标注可见性
	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		visibility := model.VisibilityPrivate
		if h.IsPublic {
			visibility = model.VisibilityPublic
		}
		name := h.FileName
		if name == "" {
			name = h.Metadata.FileName
		}
		sources = append(sources, Source{
			Content:    h.Content,
			Name:       name,
			Link:       r.link(ctx, h.StorageKey),
			Visibility: visibility,
			Distance:   h.Distance,
			FileID:     h.FileID,
			ChunkIndex: h.Metadata.ChunkIndex,
		})
	}
	return sources, nil
}

func (r *Retriever) link(ctx context.Context, key string) string {
	if key == "" {
		return LinkUnavailable
	}
	url, err := r.objects.PresignGet(ctx, key, r.config.DownloadURLTTL)
	if err != nil {
		logger.Warnw("Failed to presign citation link", "storage_key", key, "error", err.Error())
		return LinkUnavailable
	}
	return url
}
