package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/kart-io/docqa/internal/model"
)

// MemoryIndex 在进程内存中保存分块并做暴力余弦检索，文件可见性从 FileStore 读取。
// 用于测试和本地开发。
type MemoryIndex struct {
	mu     sync.RWMutex
	files  FileStore
	dim    int
	chunks []*model.Chunk
}

var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex 创建内存索引。
func NewMemoryIndex(files FileStore, dim int) *MemoryIndex {
	return &MemoryIndex{files: files, dim: dim}
}

// Name returns the index backend name.
func (m *MemoryIndex) Name() string { return "memory" }

// Dimension returns the configured vector size.
func (m *MemoryIndex) Dimension() int { return m.dim }

// Insert appends chunks.
func (m *MemoryIndex) Insert(_ context.Context, chunks []*model.Chunk) error {
	if err := checkDimensions(chunks, m.dim); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

// Search scans all chunks, keeping insertion order for equal distances.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, ownerID string, limit int) ([]*SearchHit, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(vector), m.dim)
	}

	m.mu.RLock()
	chunks := slices.Clone(m.chunks)
	m.mu.RUnlock()

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.FileID)
	}
	files, err := m.files.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	var hits []*SearchHit
	for _, c := range chunks {
		f, ok := files[c.FileID]
		if !ok || f.Status != model.FileStatusIndexed {
			continue
		}
		if c.OwnerID != ownerID && !f.IsPublic {
			continue
		}
		hits = append(hits, &SearchHit{
			ChunkID:    c.ID,
			FileID:     c.FileID,
			OwnerID:    c.OwnerID,
			Content:    c.Content,
			Metadata:   c.Metadata,
			FileName:   f.Name,
			StorageKey: f.StorageKey,
			IsPublic:   f.IsPublic,
			Distance:   CosineDistance(vector, c.Embedding.Slice()),
		})
	}

	slices.SortStableFunc(hits, func(a, b *SearchHit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteByFile removes a file's chunks.
func (m *MemoryIndex) DeleteByFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = slices.DeleteFunc(m.chunks, func(c *model.Chunk) bool { return c.FileID == fileID })
	return nil
}

// Count returns the number of stored chunks.
func (m *MemoryIndex) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.chunks)), nil
}

// CosineDistance 返回 1 - 余弦相似度，零向量的距离为 1。
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
