package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{"默认配置", func(o *Options) {}, false},
		{"空主机", func(o *Options) { o.Host = "" }, true},
		{"端口越界", func(o *Options) { o.Port = 70000 }, true},
		{"数据库越界", func(o *Options) { o.Database = 16 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.mutate(opts)
			if tt.wantErr {
				assert.Error(t, opts.Validate())
			} else {
				assert.NoError(t, opts.Validate())
			}
		})
	}
}

func TestOptionsStringRedactsPassword(t *testing.T) {
	opts := NewOptions()
	opts.Password = "supersecret"
	assert.NotContains(t, opts.String(), "supersecret")
	assert.Contains(t, opts.String(), "[REDACTED]")
}

func TestNewWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewWithContext(ctx, NewOptions())
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer c.Close()

	assert.Equal(t, "redis", c.Name())
	require.NoError(t, c.Health()())
}
