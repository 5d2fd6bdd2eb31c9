package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service  int
		category int
		sequence int
		expected int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{20, 3, 1, 2003001},
		{20, 12, 2, 2012002},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			got := MakeCode(tt.service, tt.category, tt.sequence)
			assert.Equal(t, tt.expected, got)

			s, c, q := ParseCode(got)
			assert.Equal(t, tt.service, s)
			assert.Equal(t, tt.category, c)
			assert.Equal(t, tt.sequence, q)
		})
	}
}

func TestErrnoWithCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := ErrDocQAStorageUnavailable.WithCause(cause)

	assert.True(t, stderrors.Is(err, ErrDocQAStorageUnavailable))
	assert.True(t, stderrors.Is(err, cause))
	assert.Nil(t, ErrDocQAStorageUnavailable.Unwrap(), "原始错误不应被修改")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
	assert.Equal(t, codes.Unavailable, err.GRPCStatus())
}

func TestFromError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, FromError(nil))
	})

	t.Run("包装后的 Errno", func(t *testing.T) {
		wrapped := fmt.Errorf("confirm: %w", ErrDocQAFileForbidden)
		e := FromError(wrapped)
		require.NotNil(t, e)
		assert.Equal(t, ErrDocQAFileForbidden.Code, e.Code)
		assert.True(t, IsCode(wrapped, ErrDocQAFileForbidden.Code))
		assert.Equal(t, ErrDocQAFileForbidden.Code, GetCode(wrapped))
	})

	t.Run("普通错误", func(t *testing.T) {
		e := FromError(stderrors.New("boom"))
		assert.Equal(t, ErrInternal.Code, e.Code)
		assert.Equal(t, -1, GetCode(stderrors.New("boom")))
	})
}

func TestMessageLanguage(t *testing.T) {
	assert.Equal(t, "文件不存在", ErrDocQAFileNotFound.Message("zh-CN"))
	assert.Equal(t, "File not found", ErrDocQAFileNotFound.Message("en"))
	assert.Equal(t, "custom", ErrDocQAFileNotFound.WithMessage("custom").Message("en"))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register(New(ErrDocQAConfig.Code, 500, codes.Internal, "dup", "重复"))
	})
	e, ok := Lookup(ErrDocQAConfig.Code)
	require.True(t, ok)
	assert.Equal(t, "Invalid docqa configuration", e.MessageEN)
}
