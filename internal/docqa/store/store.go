// Package store persists files and chunk vectors for the docqa service.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kart-io/docqa/internal/model"
)

var (
	// ErrNotFound 记录不存在。
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition 当前状态不允许迁移到目标状态。
	ErrInvalidTransition = errors.New("invalid file status transition")
	// ErrDuplicateContent 同一用户已有相同内容的 Indexed 文件。
	ErrDuplicateContent = errors.New("content already indexed for owner")
	// ErrDimensionMismatch 向量维度与存储列不一致。
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Factory defines the factory interface for creating stores.
type Factory interface {
	Files() FileStore
	Vectors() VectorIndex
	Close() error
}

// FileStore defines the file storage interface.
type FileStore interface {
	Create(ctx context.Context, file *model.File) error
	Get(ctx context.Context, id string) (*model.File, error)
	// GetMany 批量读取，缺失的 id 会被忽略。
	GetMany(ctx context.Context, ids []string) (map[string]*model.File, error)
	ListByOwner(ctx context.Context, ownerID string, offset, limit int) (int64, []*model.File, error)

	// Transition 以比较并交换的方式迁移状态，当前状态不允许时返回 ErrInvalidTransition。
	Transition(ctx context.Context, id string, to model.FileStatus) error
	SetHash(ctx context.Context, id, hash string) error
	// MarkFailed 将文件置为 Failed 并记录原因。
	MarkFailed(ctx context.Context, id, reason string) error
	// MarkDuplicate 将文件置为 Duplicate 并记录哈希。
	MarkDuplicate(ctx context.Context, id, hash string) error
	// MarkIndexed 在事务中将文件置为 Indexed。唯一索引冲突时返回 ErrDuplicateContent。
	MarkIndexed(ctx context.Context, id string, chunkCount int) error

	// FindIndexedByHash 查找同一所有者下哈希相同的 Indexed 文件，排除 excludeID。
	FindIndexedByHash(ctx context.Context, ownerID, hash, excludeID string) (*model.File, error)

	// Delete 删除文件及其分块。
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[model.FileStatus]int64, error)
}

// SearchHit 一条检索结果。
type SearchHit struct {
	ChunkID    string
	FileID     string
	OwnerID    string
	Content    string
	Metadata   model.ChunkMetadata
	FileName   string
	StorageKey string
	IsPublic   bool
	// Distance 余弦距离，越小越相似。
	Distance float64
}

// VectorIndex 分块向量的写入与相似度检索。
type VectorIndex interface {
	// Insert 批量写入分块，向量维度必须等于 Dimension。
	Insert(ctx context.Context, chunks []*model.Chunk) error
	// Search 返回 ownerID 可见的分块，按余弦距离升序，最多 limit 条。
	// 可见指分块所属文件的所有者为 ownerID，或文件是公开的，且文件处于 Indexed 状态。
	Search(ctx context.Context, vector []float32, ownerID string, limit int) ([]*SearchHit, error)
	// DeleteByFile 删除文件的全部分块。
	DeleteByFile(ctx context.Context, fileID string) error
	Count(ctx context.Context) (int64, error)
	Dimension() int
	Name() string
}

func checkDimensions(chunks []*model.Chunk, dim int) error {
	for _, c := range chunks {
		if n := len(c.Embedding.Slice()); n != dim {
			return fmt.Errorf("%w: chunk %s has %d values, want %d", ErrDimensionMismatch, c.ID, n, dim)
		}
	}
	return nil
}
