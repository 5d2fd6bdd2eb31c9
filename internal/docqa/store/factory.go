package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/model"
)

// 与迁移文件一致的唯一部分索引。
const indexedHashIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS files_owner_hash_indexed_uidx
    ON files (owner_id, content_hash) WHERE status = 'indexed'`

// datastore implements the Factory interface.
type datastore struct {
	db      *gorm.DB
	vectors VectorIndex
}

// NewFactory 创建存储工厂。vectors 为 nil 时使用 pgvector 索引。
func NewFactory(db *gorm.DB, vectors VectorIndex, dim int) Factory {
	if vectors == nil {
		vectors = NewPgVectorIndex(db, dim)
	}
	return &datastore{db: db, vectors: vectors}
}

// Files returns the file store.
func (ds *datastore) Files() FileStore {
	return newFiles(ds.db)
}

// Vectors returns the chunk vector index.
func (ds *datastore) Vectors() VectorIndex {
	return ds.vectors
}

// Close closes the factory. The connection pool is owned by the postgres client.
func (ds *datastore) Close() error {
	return nil
}

// AutoMigrate 使用 gorm 建表并创建唯一部分索引，用于 SQLite 测试与本地开发。
// PostgreSQL 部署使用 Migrate。
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.File{}, &model.Chunk{}); err != nil {
		return err
	}
	return db.Exec(indexedHashIndexDDL).Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
