package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
)

// DedupGate 按内容哈希判断文件是否与所有者已入库的文件重复。
type DedupGate struct {
	files store.FileStore
}

// NewDedupGate 创建去重检查。
func NewDedupGate(files store.FileStore) *DedupGate {
	return &DedupGate{files: files}
}

// Hash 返回内容的 SHA-256 十六进制串。
func (g *DedupGate) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Check 返回同一所有者下哈希相同的其他 Indexed 文件，没有则返回 nil。
func (g *DedupGate) Check(ctx context.Context, file *model.File, hash string) (*model.File, error) {
	existing, err := g.files.FindIndexedByHash(ctx, file.OwnerID, hash, file.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return existing, nil
}
