package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to FileStatus
		want     bool
	}{
		{FileStatusReserved, FileStatusUploaded, true},
		{FileStatusReserved, FileStatusProcessing, false},
		{FileStatusUploaded, FileStatusProcessing, true},
		{FileStatusProcessing, FileStatusIndexed, true},
		{FileStatusProcessing, FileStatusDuplicate, true},
		{FileStatusProcessing, FileStatusFailed, true},
		{FileStatusFailed, FileStatusProcessing, true},
		{FileStatusIndexed, FileStatusProcessing, false},
		{FileStatusDuplicate, FileStatusIndexed, false},
		{FileStatusIndexed, FileStatusReserved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSourcesOf(t *testing.T) {
	assert.ElementsMatch(t,
		[]FileStatus{FileStatusUploaded, FileStatusProcessing, FileStatusFailed},
		SourcesOf(FileStatusProcessing))
	assert.Equal(t, []FileStatus{FileStatusReserved, FileStatusUploaded}, SourcesOf(FileStatusUploaded))
}

func TestFileHelpers(t *testing.T) {
	f := &File{}
	assert.Equal(t, VisibilityPrivate, f.Visibility())
	assert.Empty(t, f.Hash())

	h := "abc"
	f.IsPublic, f.ContentHash = true, &h
	assert.Equal(t, VisibilityPublic, f.Visibility())
	assert.Equal(t, "abc", f.Hash())
	assert.True(t, FileStatusIndexed.Terminal())
	assert.False(t, FileStatusFailed.Terminal())
	assert.False(t, FileStatus("archived").Valid())
}

func TestChunkMetadataScan(t *testing.T) {
	in := ChunkMetadata{FileName: "budget.pdf", ChunkIndex: 3}
	v, err := in.Value()
	require.NoError(t, err)

	var out ChunkMetadata
	require.NoError(t, out.Scan([]byte(v.(string))))
	assert.Equal(t, in, out)
	assert.Error(t, out.Scan(42))
}
