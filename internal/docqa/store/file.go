package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kart-io/docqa/internal/model"
)

type files struct {
	db *gorm.DB
}

var _ FileStore = (*files)(nil)

func newFiles(db *gorm.DB) *files {
	return &files{db}
}

// Create creates a new file row.
func (f *files) Create(ctx context.Context, file *model.File) error {
	return f.db.WithContext(ctx).Create(file).Error
}

// Get retrieves a file by id.
func (f *files) Get(ctx context.Context, id string) (*model.File, error) {
	var file model.File
	if err := f.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &file, nil
}

// GetMany retrieves files by id.
func (f *files) GetMany(ctx context.Context, ids []string) (map[string]*model.File, error) {
	out := make(map[string]*model.File, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []*model.File
	if err := f.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// ListByOwner lists the owner's files, newest first.
func (f *files) ListByOwner(ctx context.Context, ownerID string, offset, limit int) (int64, []*model.File, error) {
	var count int64
	var rows []*model.File

	q := f.db.WithContext(ctx).Model(&model.File{}).Where("owner_id = ?", ownerID)
	if err := q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if err := q.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return 0, nil, err
	}
	return count, rows, nil
}

// Transition moves the file to status `to` if its current status allows it.
func (f *files) Transition(ctx context.Context, id string, to model.FileStatus) error {
	return f.update(ctx, id, to, map[string]any{"status": to, "error": ""})
}

// SetHash stores the content hash.
func (f *files) SetHash(ctx context.Context, id, hash string) error {
	res := f.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", id).Update("content_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed moves the file to Failed and records the reason.
func (f *files) MarkFailed(ctx context.Context, id, reason string) error {
	reason = truncateRunes(reason, maxErrorLen)
	return f.update(ctx, id, model.FileStatusFailed, map[string]any{"status": model.FileStatusFailed, "error": reason})
}

// MarkDuplicate moves the file to Duplicate.
func (f *files) MarkDuplicate(ctx context.Context, id, hash string) error {
	return f.update(ctx, id, model.FileStatusDuplicate, map[string]any{
		"status":       model.FileStatusDuplicate,
		"content_hash": hash,
		"chunk_count":  0,
	})
}

// MarkIndexed moves the file to Indexed inside a transaction. The unique
// partial index on (owner_id, content_hash) rejects a second Indexed file
// with the same content, which is reported as ErrDuplicateContent.
func (f *files) MarkIndexed(ctx context.Context, id string, chunkCount int) error {
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return newFiles(tx).update(ctx, id, model.FileStatusIndexed, map[string]any{
			"status":      model.FileStatusIndexed,
			"chunk_count": chunkCount,
			"error":       "",
		})
	})
	if isUniqueViolation(err) {
		return ErrDuplicateContent
	}
	return err
}

// FindIndexedByHash finds another Indexed file of the owner with the same hash.
func (f *files) FindIndexedByHash(ctx context.Context, ownerID, hash, excludeID string) (*model.File, error) {
	var file model.File
	err := f.db.WithContext(ctx).
		Where("owner_id = ? AND content_hash = ? AND status = ? AND id <> ?",
			ownerID, hash, model.FileStatusIndexed, excludeID).
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &file, nil
}

// Delete deletes a file and its chunk rows.
func (f *files) Delete(ctx context.Context, id string) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.File{}).Error
	})
}

// CountByStatus counts files per status.
func (f *files) CountByStatus(ctx context.Context) (map[model.FileStatus]int64, error) {
	var rows []struct {
		Status model.FileStatus
		Count  int64
	}
	if err := f.db.WithContext(ctx).Model(&model.File{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[model.FileStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (f *files) update(ctx context.Context, id string, to model.FileStatus, values map[string]any) error {
	res := f.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status IN ?", id, model.SourcesOf(to)).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := f.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// maxErrorLen 与 files.error 列的 varchar(1024) 一致，按字符计数。
const maxErrorLen = 1024

// truncateRunes 保留前 n 个字符，不会截断多字节字符。
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
