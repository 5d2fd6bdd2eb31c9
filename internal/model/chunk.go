package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kart-io/docqa/pkg/utils/json"
)

// ChunkMetadata 分块的附加信息，以 JSONB 存储。
type ChunkMetadata struct {
	FileName   string `json:"file_name"`
	ChunkIndex int    `json:"chunk_index"`
	MimeType   string `json:"mime_type,omitempty"`
}

// Value implements driver.Valuer.
func (m ChunkMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *ChunkMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = ChunkMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported chunk metadata type %T", src)
	}
}

// Chunk 文件文本的一个向量化片段，写入后不再修改。
type Chunk struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(26)"`
	FileID    string          `json:"file_id" gorm:"type:varchar(26);not null;index:idx_chunks_file"`
	OwnerID   string          `json:"owner_id" gorm:"size:64;not null;index:idx_chunks_owner"`
	Content   string          `json:"content" gorm:"type:text;not null"`
	Metadata  ChunkMetadata   `json:"metadata" gorm:"type:jsonb"`
	Embedding pgvector.Vector `json:"-" gorm:"type:vector"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Chunk.
func (Chunk) TableName() string {
	return "chunks"
}
