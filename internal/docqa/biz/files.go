package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/queue"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/docqa/extractor"
	"github.com/kart-io/docqa/pkg/component/objectstore"
	errno "github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/id"
)

// UploadRequest 上传申请。
type UploadRequest struct {
	Name     string `json:"name" binding:"required"`
	MimeType string `json:"mime_type" binding:"required"`
	IsPublic bool   `json:"is_public"`
	Size     int64  `json:"size" binding:"min=0"`
}

// UploadTicket 上传凭证，客户端用 PUT 将文件直接写入对象存储。
type UploadTicket struct {
	FileID     string `json:"file_id"`
	UploadURL  string `json:"upload_url"`
	StorageKey string `json:"storage_key"`
	Method     string `json:"method"`
	ExpiresIn  int    `json:"expires_in"`
}

// FileServiceConfig 文件服务配置。
type FileServiceConfig struct {
	UploadURLTTL time.Duration
	// MaxFileSize 允许申请的最大字节数，0 表示不限。
	MaxFileSize int64
}

// FileService 管理上传预留、确认与删除。
type FileService struct {
	files   store.FileStore
	vectors store.VectorIndex
	objects objectstore.Store
	queue   queue.Queue
	config  FileServiceConfig
}

// NewFileService 创建文件服务。
func NewFileService(factory store.Factory, objects objectstore.Store, q queue.Queue, config FileServiceConfig) *FileService {
	if config.UploadURLTTL <= 0 {
		config.UploadURLTTL = 5 * time.Minute
	}
	return &FileService{
		files:   factory.Files(),
		vectors: factory.Vectors(),
		objects: objects,
		queue:   q,
		config:  config,
	}
}

// RequestUpload 校验类型与大小上限，预留文件记录并签发上传地址。
// 请求形状由 UploadRequest 的 binding 标签在 handler 中校验。
func (s *FileService) RequestUpload(ctx context.Context, ownerID string, req *UploadRequest) (*UploadTicket, error) {
	name := strings.TrimSpace(req.Name)
	if !extractor.IsSupported(req.MimeType) {
		return nil, errno.ErrDocQAUnsupportedType.WithMessagef("unsupported mime type %q", req.MimeType)
	}
	if s.config.MaxFileSize > 0 && req.Size > s.config.MaxFileSize {
		return nil, errno.ErrTooLarge.WithMessagef("file size exceeds %d bytes", s.config.MaxFileSize)
	}

	mimeType := extractor.Normalize(req.MimeType)
	key := objectstore.BuildKey(ownerID, name)
	url, err := s.objects.PresignPut(ctx, key, mimeType, s.config.UploadURLTTL)
	if err != nil {
		return nil, errno.ErrDocQAStorageUnavailable.WithCause(err)
	}

	file := &model.File{
		ID:         id.NewULID(),
		StorageKey: key,
		OwnerID:    ownerID,
		MimeType:   mimeType,
		Name:       name,
		IsPublic:   req.IsPublic,
		Status:     model.FileStatusReserved,
		Size:       req.Size,
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, errno.ErrDatabase.WithCause(err)
	}

	logger.Infow("Upload reserved", "file_id", file.ID, "owner_id", ownerID, "mime_type", mimeType)
	return &UploadTicket{
		FileID:     file.ID,
		UploadURL:  url,
		StorageKey: key,
		Method:     "PUT",
		ExpiresIn:  int(s.config.UploadURLTTL.Seconds()),
	}, nil
}

// ConfirmUpload 将 Reserved 文件置为 Uploaded 并投递入库任务。
// 重复确认 Uploaded 文件会再次投递，入库的租约保证同一文件不会并发执行。
func (s *FileService) ConfirmUpload(ctx context.Context, ownerID, fileID string) (*model.File, error) {
	file, err := s.owned(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	if err := s.files.Transition(ctx, file.ID, model.FileStatusUploaded); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return nil, errno.ErrDocQAInvalidState.WithMessagef("file is %s", file.Status)
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, errno.ErrDocQAFileNotFound
		}
		return nil, errno.ErrDatabase.WithCause(err)
	}

	if err := s.queue.Enqueue(ctx, queue.IngestFile{FileID: file.ID}); err != nil {
		return nil, errno.ErrDocQAQueueUnavailable.WithCause(err)
	}

	file.Status = model.FileStatusUploaded
	logger.Infow("Upload confirmed", "file_id", file.ID, "owner_id", ownerID)
	return file, nil
}

// List 列出调用者的文件，包括 Failed 与 Duplicate。
func (s *FileService) List(ctx context.Context, ownerID string, offset, limit int) (int64, []*model.File, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	total, files, err := s.files.ListByOwner(ctx, ownerID, offset, limit)
	if err != nil {
		return 0, nil, errno.ErrDatabase.WithCause(err)
	}
	return total, files, nil
}

// Get 返回调用者拥有的或公开的文件。
func (s *FileService) Get(ctx context.Context, userID, fileID string) (*model.File, error) {
	file, err := s.load(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != userID && !file.IsPublic {
		return nil, errno.ErrDocQAFileNotFound
	}
	return file, nil
}

// Delete 删除文件与分块，对象交由后台任务删除。
func (s *FileService) Delete(ctx context.Context, ownerID, fileID string) error {
	file, err := s.owned(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	if err := s.vectors.DeleteByFile(ctx, file.ID); err != nil {
		return errno.ErrDatabase.WithCause(err)
	}
	if err := s.files.Delete(ctx, file.ID); err != nil {
		return errno.ErrDatabase.WithCause(err)
	}

	if err := s.queue.Enqueue(ctx, queue.DeleteObject{StorageKey: file.StorageKey}); err != nil {
		logger.Warnw("Enqueue object deletion failed, deleting inline",
			"file_id", file.ID, "storage_key", file.StorageKey, "error", err.Error())
		if derr := s.objects.Delete(ctx, file.StorageKey); derr != nil {
			logger.Errorw("Delete object failed", "storage_key", file.StorageKey, "error", derr.Error())
		}
	}

	logger.Infow("File deleted", "file_id", file.ID, "owner_id", ownerID)
	return nil
}

// DeleteObject 处理对象删除任务。
func (s *FileService) DeleteObject(ctx context.Context, job queue.DeleteObject) error {
	return s.objects.Delete(ctx, job.StorageKey)
}

func (s *FileService) load(ctx context.Context, fileID string) (*model.File, error) {
	file, err := s.files.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errno.ErrDocQAFileNotFound
	}
	if err != nil {
		return nil, errno.ErrDatabase.WithCause(err)
	}
	return file, nil
}

// owned 加载文件并校验所有者。
func (s *FileService) owned(ctx context.Context, ownerID, fileID string) (*model.File, error) {
	file, err := s.load(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, errno.ErrDocQAFileForbidden
	}
	return file, nil
}
