package id

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	a := NewULID()
	b := NewULID()

	assert.Len(t, a, ulid.EncodedSize)
	assert.NotEqual(t, a, b)

	_, err := ulid.Parse(a)
	require.NoError(t, err)
	assert.LessOrEqual(t, a[:10], b[:10], "时间前缀应单调")
}

func TestNewLowerULID(t *testing.T) {
	s := NewLowerULID()
	assert.Len(t, s, ulid.EncodedSize)
	_, err := ulid.ParseStrict(s)
	require.NoError(t, err)
}
