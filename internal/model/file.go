// Package model provides the persistent data models of the docqa service.
package model

import (
	"time"
)

// FileStatus 文件生命周期状态。
type FileStatus string

const (
	// FileStatusReserved 已签发上传地址，尚未确认上传。
	FileStatusReserved FileStatus = "reserved"
	// FileStatusUploaded 上传已确认，等待入库。
	FileStatusUploaded FileStatus = "uploaded"
	// FileStatusProcessing 入库任务执行中。
	FileStatusProcessing FileStatus = "processing"
	// FileStatusIndexed 已完成向量化，可被检索。
	FileStatusIndexed FileStatus = "indexed"
	// FileStatusDuplicate 与同一用户已入库的文件内容相同。
	FileStatusDuplicate FileStatus = "duplicate"
	// FileStatusFailed 入库失败。
	FileStatusFailed FileStatus = "failed"
)

// 合法的状态迁移。Processing 与 Failed 可重新进入 Processing，对应任务重投递。
var fileTransitions = map[FileStatus][]FileStatus{
	FileStatusReserved:   {FileStatusUploaded},
	FileStatusUploaded:   {FileStatusUploaded, FileStatusProcessing},
	FileStatusProcessing: {FileStatusProcessing, FileStatusIndexed, FileStatusDuplicate, FileStatusFailed},
	FileStatusFailed:     {FileStatusProcessing, FileStatusFailed},
}

// Valid reports whether s is a known status.
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusReserved, FileStatusUploaded, FileStatusProcessing,
		FileStatusIndexed, FileStatusDuplicate, FileStatusFailed:
		return true
	}
	return false
}

// Terminal 是否为不会再被入库任务改变的终态。
func (s FileStatus) Terminal() bool {
	return s == FileStatusIndexed || s == FileStatusDuplicate
}

// CanTransitionTo reports whether a file in status s may move to next.
func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	for _, allowed := range fileTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf 返回可以迁移到 next 的所有状态。
func SourcesOf(next FileStatus) []FileStatus {
	var out []FileStatus
	for _, from := range []FileStatus{
		FileStatusReserved, FileStatusUploaded, FileStatusProcessing, FileStatusFailed,
	} {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

// 可见性标签。
const (
	VisibilityPublic  = "Public"
	VisibilityPrivate = "Private"
)

// File 一个上传的文件。
type File struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(26);comment:文件ID"`
	StorageKey  string     `json:"storage_key" gorm:"size:512;not null;comment:对象存储键"`
	OwnerID     string     `json:"owner_id" gorm:"size:64;not null;index:idx_files_owner;comment:所有者"`
	MimeType    string     `json:"mime_type" gorm:"size:128;not null;comment:MIME 类型"`
	Name        string     `json:"name" gorm:"size:255;not null;comment:原始文件名"`
	ContentHash *string    `json:"content_hash,omitempty" gorm:"size:64;comment:内容 SHA-256"`
	IsPublic    bool       `json:"is_public" gorm:"not null;default:false;comment:是否公开"`
	Status      FileStatus `json:"status" gorm:"size:16;not null;index:idx_files_status;comment:生命周期状态"`
	Size        int64      `json:"size" gorm:"not null;default:0;comment:字节数"`
	ChunkCount  int        `json:"chunk_count" gorm:"not null;default:0;comment:分块数"`
	Error       string     `json:"error,omitempty" gorm:"size:1024;comment:最近一次失败原因"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for File.
func (File) TableName() string {
	return "files"
}

// Visibility 返回 Public 或 Private。
func (f *File) Visibility() string {
	if f.IsPublic {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

// Hash 返回内容哈希，未计算时为空串。
func (f *File) Hash() string {
	if f.ContentHash == nil {
		return ""
	}
	return *f.ContentHash
}
