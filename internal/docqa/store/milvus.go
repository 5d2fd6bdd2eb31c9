package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/milvus"
)

var milvusOutputFields = []string{"chunk_id", "file_id", "owner_id", "content", "file_name", "chunk_index", "is_public"}

// MilvusIndex 将分块向量存放在 Milvus 集合中。
// 文件名、存储键和状态在检索后从 FileStore 补全，以文件表为准。
type MilvusIndex struct {
	client     *milvus.Client
	files      FileStore
	collection string
	dim        int
}

var _ VectorIndex = (*MilvusIndex)(nil)

// NewMilvusIndex 创建 Milvus 索引并确保集合存在。
func NewMilvusIndex(ctx context.Context, client *milvus.Client, files FileStore, collection string, dim int) (*MilvusIndex, error) {
	err := client.EnsureCollection(ctx, &milvus.CollectionSchema{
		Name:        collection,
		Description: "docqa chunk vectors",
		Dimension:   dim,
		Metric:      entity.COSINE,
		MetaFields: []milvus.MetaField{
			{Name: "chunk_id", DataType: entity.FieldTypeVarChar, MaxLen: 26},
			{Name: "file_id", DataType: entity.FieldTypeVarChar, MaxLen: 26},
			{Name: "owner_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 8192},
			{Name: "file_name", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "is_public", DataType: entity.FieldTypeBool},
		},
	})
	if err != nil {
		return nil, err
	}
	return &MilvusIndex{client: client, files: files, collection: collection, dim: dim}, nil
}

// Name returns the index backend name.
func (m *MilvusIndex) Name() string { return "milvus" }

// Dimension returns the configured vector size.
func (m *MilvusIndex) Dimension() int { return m.dim }

// Insert writes chunks column by column.
func (m *MilvusIndex) Insert(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := checkDimensions(chunks, m.dim); err != nil {
		return err
	}

	fileIDs := make([]string, 0, 1)
	for _, c := range chunks {
		fileIDs = append(fileIDs, c.FileID)
	}
	files, err := m.files.GetMany(ctx, fileIDs)
	if err != nil {
		return err
	}

	data := &milvus.InsertData{
		Embeddings: make([][]float32, len(chunks)),
		Metadata:   make(map[string][]any, len(milvusOutputFields)),
	}
	for i, c := range chunks {
		public := false
		if f, ok := files[c.FileID]; ok {
			public = f.IsPublic
		}
		data.Embeddings[i] = c.Embedding.Slice()
		data.Metadata["chunk_id"] = append(data.Metadata["chunk_id"], c.ID)
		data.Metadata["file_id"] = append(data.Metadata["file_id"], c.FileID)
		data.Metadata["owner_id"] = append(data.Metadata["owner_id"], c.OwnerID)
		data.Metadata["content"] = append(data.Metadata["content"], c.Content)
		data.Metadata["file_name"] = append(data.Metadata["file_name"], c.Metadata.FileName)
		data.Metadata["chunk_index"] = append(data.Metadata["chunk_index"], int64(c.Metadata.ChunkIndex))
		data.Metadata["is_public"] = append(data.Metadata["is_public"], public)
	}
	return m.client.Insert(ctx, m.collection, data)
}

// Search runs a filtered ANN search. Hits whose file is gone or not Indexed are dropped.
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, ownerID string, limit int) ([]*SearchHit, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(vector), m.dim)
	}

	results, err := m.client.RawClient().Search(ctx, milvusclient.NewSearchOption(
		m.collection,
		limit*2,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField("embedding").
		WithSearchParam("ef", "64").
		WithFilter(VisibilityFilter(ownerID)).
		WithOutputFields(milvusOutputFields...))
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	hits := make([]*SearchHit, rs.ResultCount)
	for i := range hits {
		// COSINE 指标返回相似度
		hits[i] = &SearchHit{Distance: 1 - float64(rs.Scores[i])}
	}
	for _, field := range rs.Fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			for i, v := range col.Data()[:rs.ResultCount] {
				switch col.Name() {
				case "chunk_id":
					hits[i].ChunkID = v
				case "file_id":
					hits[i].FileID = v
				case "owner_id":
					hits[i].OwnerID = v
				case "content":
					hits[i].Content = v
				case "file_name":
					hits[i].Metadata.FileName = v
				}
			}
		case *column.ColumnInt64:
			if col.Name() == "chunk_index" {
				for i, v := range col.Data()[:rs.ResultCount] {
					hits[i].Metadata.ChunkIndex = int(v)
				}
			}
		}
	}

	return m.enrich(ctx, hits, ownerID, limit)
}

func (m *MilvusIndex) enrich(ctx context.Context, hits []*SearchHit, ownerID string, limit int) ([]*SearchHit, error) {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.FileID
	}
	files, err := m.files.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*SearchHit, 0, limit)
	for _, h := range hits {
		f, ok := files[h.FileID]
		if !ok || f.Status != model.FileStatusIndexed {
			continue
		}
		if f.OwnerID != ownerID && !f.IsPublic {
			continue
		}
		h.FileName = f.Name
		h.StorageKey = f.StorageKey
		h.IsPublic = f.IsPublic
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// DeleteByFile deletes all vectors of a file.
func (m *MilvusIndex) DeleteByFile(ctx context.Context, fileID string) error {
	return m.client.DeleteByExpr(ctx, m.collection, "file_id == "+strconv.Quote(fileID))
}

// Count returns the collection row count.
func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	stats, err := m.client.RawClient().GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(m.collection))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(stats["row_count"], 10, 64)
}

// VisibilityFilter 构造 Milvus 可见性过滤表达式，字符串以转义后的字面量写入。
func VisibilityFilter(ownerID string) string {
	return fmt.Sprintf("owner_id == %s || is_public == true", strconv.Quote(ownerID))
}
