package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/kart-io/logger"
	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/docqa/store/migrations"
	"github.com/kart-io/docqa/pkg/component/postgres"
)

// Migrate 使用 goose 执行内嵌的 SQL 迁移，随后把向量列固定为 dim 维并建立 HNSW 索引。
func Migrate(ctx context.Context, opts *postgres.Options, db *gorm.DB, dim int) error {
	sqlDB, err := sql.Open("pgx", postgres.BuildURI(opts))
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return EnsureVectorColumn(ctx, db, dim)
}

// EnsureVectorColumn 检查 chunks.embedding 的维度。
// 未固定维度时设置为 dim，已固定且不同则返回 ErrDimensionMismatch。
func EnsureVectorColumn(ctx context.Context, db *gorm.DB, dim int) error {
	var typmod int
	if err := db.WithContext(ctx).Raw(
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'`,
	).Scan(&typmod).Error; err != nil {
		return fmt.Errorf("failed to inspect embedding column: %w", err)
	}

	switch {
	case typmod == dim:
	case typmod > 0:
		return fmt.Errorf("%w: chunks.embedding is vector(%d), embedding model produces %d",
			ErrDimensionMismatch, typmod, dim)
	default:
		if err := db.WithContext(ctx).Exec(
			fmt.Sprintf(`ALTER TABLE chunks ALTER COLUMN embedding TYPE vector(%d)`, dim),
		).Error; err != nil {
			return fmt.Errorf("failed to set embedding dimension: %w", err)
		}
		logger.Infow("embedding column dimension set", "dimension", dim)
	}

	if err := db.WithContext(ctx).Exec(
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding_hnsw ON chunks USING hnsw (embedding vector_cosine_ops)`,
	).Error; err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}
