package biz

import (
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/model"
)

// 入库结果事件。
const (
	EventFileIndexed   = "file.indexed"
	EventFileDuplicate = "file.duplicate"
	EventFileFailed    = "file.failed"
)

// Notifier 向在线用户推送事件。
type Notifier interface {
	IsOnline(userID string) bool
	SendTo(userID, event string, payload any) error
}

// NopNotifier 丢弃所有事件。
type NopNotifier struct{}

func (NopNotifier) IsOnline(string) bool             { return false }
func (NopNotifier) SendTo(string, string, any) error { return nil }

// FileEvent 文件状态事件负载。
type FileEvent struct {
	FileID     string           `json:"file_id"`
	Name       string           `json:"name"`
	Status     model.FileStatus `json:"status"`
	ChunkCount int              `json:"chunk_count,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// notifyFile 向在线的所有者推送事件，失败只记录日志。
func notifyFile(n Notifier, file *model.File, event string, status model.FileStatus, chunks int, reason string) {
	if n == nil || !n.IsOnline(file.OwnerID) {
		return
	}
	payload := FileEvent{FileID: file.ID, Name: file.Name, Status: status, ChunkCount: chunks, Error: reason}
	if err := n.SendTo(file.OwnerID, event, payload); err != nil {
		logger.Warnw("Failed to notify file owner", "file_id", file.ID, "event", event, "error", err.Error())
	}
}
