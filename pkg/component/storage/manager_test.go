package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	name     string
	pingErr  error
	closeErr error
	closed   *[]string
}

var _ Client = (*mockClient)(nil)

func (m *mockClient) Name() string                 { return m.name }
func (m *mockClient) Ping(_ context.Context) error { return m.pingErr }
func (m *mockClient) Health() HealthChecker {
	return func() error { return m.Ping(context.Background()) }
}

func (m *mockClient) Close() error {
	if m.closed != nil {
		*m.closed = append(*m.closed, m.name)
	}
	return m.closeErr
}

func TestManagerRegister(t *testing.T) {
	mgr := NewManager()

	require.NoError(t, mgr.Register("postgres", &mockClient{name: "postgres"}))
	assert.ErrorIs(t, mgr.Register("postgres", &mockClient{name: "postgres"}), ErrClientExists)
	assert.ErrorIs(t, mgr.Register("", &mockClient{}), ErrInvalidClient)
	assert.ErrorIs(t, mgr.Register("nil", nil), ErrInvalidClient)

	c, err := mgr.Get("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.Name())

	_, err = mgr.Get("missing")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestManagerHealthCheckAll(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Register("postgres", &mockClient{name: "postgres"}))
	require.NoError(t, mgr.Register("redis", &mockClient{name: "redis", pingErr: errors.New("dial tcp: refused")}))

	statuses := mgr.HealthCheckAll(context.Background())
	require.Len(t, statuses, 2)
	assert.True(t, statuses["postgres"].Healthy)
	assert.False(t, statuses["redis"].Healthy)
	assert.Contains(t, statuses["redis"].Error, "refused")
	assert.False(t, mgr.AllHealthy(context.Background()))
	assert.Equal(t, []string{"postgres", "redis"}, mgr.List())
}

func TestManagerCloseAllReverseOrder(t *testing.T) {
	var closed []string
	mgr := NewManager()
	require.NoError(t, mgr.Register("postgres", &mockClient{name: "postgres", closed: &closed}))
	require.NoError(t, mgr.Register("redis", &mockClient{name: "redis", closed: &closed, closeErr: errors.New("boom")}))
	require.NoError(t, mgr.Register("objectstore", &mockClient{name: "objectstore", closed: &closed}))

	err := mgr.CloseAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close redis")
	assert.Equal(t, []string{"objectstore", "redis", "postgres"}, closed)
	assert.Empty(t, mgr.List())
}
