package milvus

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	opts.Address = ""
	assert.NoError(t, opts.Validate(), "未启用时不校验")

	opts.Enabled = true
	assert.Error(t, opts.Validate())

	opts.Address = "localhost:19530"
	assert.NoError(t, opts.Validate())
}

func TestOptionsAddFlags(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs, "milvus.")

	require.NoError(t, fs.Parse([]string{"--milvus.enabled", "--milvus.collection=chunks_v2"}))
	assert.True(t, opts.Enabled)
	assert.Equal(t, "chunks_v2", opts.Collection)
}

func TestBuildColumn(t *testing.T) {
	col, err := buildColumn("owner_id", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "owner_id", col.Name())
	assert.Equal(t, 2, col.Len())

	col, err = buildColumn("is_public", []any{true, false})
	require.NoError(t, err)
	assert.Equal(t, 2, col.Len())

	_, err = buildColumn("bad", []any{1.5})
	assert.Error(t, err)
}
