package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/model"
)

// 查询向量以参数绑定，不拼接进 SQL。
const searchSQL = `
SELECT c.id AS chunk_id, c.file_id, c.owner_id, c.content, c.metadata,
       f.name AS file_name, f.storage_key, f.is_public,
       c.embedding <=> ? AS distance
FROM chunks c
JOIN files f ON c.file_id = f.id
WHERE (c.owner_id = ? OR f.is_public = TRUE) AND f.status = ?
ORDER BY distance ASC
LIMIT ?`

// PgVectorIndex 将分块存放在 PostgreSQL 的 chunks 表中，使用 pgvector 余弦距离检索。
type PgVectorIndex struct {
	db  *gorm.DB
	dim int
}

var _ VectorIndex = (*PgVectorIndex)(nil)

// NewPgVectorIndex 创建 pgvector 索引。
func NewPgVectorIndex(db *gorm.DB, dim int) *PgVectorIndex {
	return &PgVectorIndex{db: db, dim: dim}
}

// Name returns the index backend name.
func (p *PgVectorIndex) Name() string { return "pgvector" }

// Dimension returns the configured vector size.
func (p *PgVectorIndex) Dimension() int { return p.dim }

// Insert writes chunk rows in batches.
func (p *PgVectorIndex) Insert(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := checkDimensions(chunks, p.dim); err != nil {
		return err
	}
	return p.db.WithContext(ctx).CreateInBatches(chunks, 100).Error
}

type hitRow struct {
	ChunkID    string              `gorm:"column:chunk_id"`
	FileID     string              `gorm:"column:file_id"`
	OwnerID    string              `gorm:"column:owner_id"`
	Content    string              `gorm:"column:content"`
	Metadata   model.ChunkMetadata `gorm:"column:metadata"`
	FileName   string              `gorm:"column:file_name"`
	StorageKey string              `gorm:"column:storage_key"`
	IsPublic   bool                `gorm:"column:is_public"`
	Distance   float64             `gorm:"column:distance"`
}

// Search runs the access-controlled cosine distance query.
func (p *PgVectorIndex) Search(ctx context.Context, vector []float32, ownerID string, limit int) ([]*SearchHit, error) {
	if len(vector) != p.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(vector), p.dim)
	}

	var rows []hitRow
	if err := p.db.WithContext(ctx).
		Raw(searchSQL, pgvector.NewVector(vector), ownerID, model.FileStatusIndexed, limit).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]*SearchHit, len(rows))
	for i, r := range rows {
		hits[i] = &SearchHit{
			ChunkID:    r.ChunkID,
			FileID:     r.FileID,
			OwnerID:    r.OwnerID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			FileName:   r.FileName,
			StorageKey: r.StorageKey,
			IsPublic:   r.IsPublic,
			Distance:   r.Distance,
		}
	}
	return hits, nil
}

// DeleteByFile deletes all chunk rows of a file.
func (p *PgVectorIndex) DeleteByFile(ctx context.Context, fileID string) error {
	return p.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&model.Chunk{}).Error
}

// Count returns the number of chunk rows.
func (p *PgVectorIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.WithContext(ctx).Model(&model.Chunk{}).Count(&n).Error
	return n, err
}
