package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	h := NewHub(1)
	assert.False(t, h.IsOnline("alice"))
	assert.ErrorIs(t, h.SendTo("alice", "file.indexed", nil), ErrOffline)

	a1, err := h.Subscribe("alice")
	require.NoError(t, err)
	a2, err := h.Subscribe("alice")
	require.NoError(t, err)
	assert.True(t, h.IsOnline("alice"))
	assert.Equal(t, 1, h.Online())

	require.NoError(t, h.SendTo("alice", "file.indexed", map[string]string{"file_id": "f1"}))
	for _, s := range []*Subscription{a1, a2} {
		ev := <-s.Events()
		assert.Equal(t, "file.indexed", ev.Name)
		assert.Equal(t, map[string]string{"file_id": "f1"}, ev.Data)
	}

	t.Run("缓冲已满时丢弃而不阻塞", func(t *testing.T) {
		require.NoError(t, h.SendTo("alice", "a", nil))
		require.NoError(t, h.SendTo("alice", "b", nil))
		assert.Equal(t, "a", (<-a1.Events()).Name)
		assert.Len(t, a1.Events(), 0)
		<-a2.Events()
	})

	t.Run("取消订阅", func(t *testing.T) {
		a1.Close()
		a1.Close()
		_, open := <-a1.Events()
		assert.False(t, open)
		assert.True(t, h.IsOnline("alice"))

		a2.Close()
		assert.False(t, h.IsOnline("alice"))
		assert.Equal(t, 0, h.Online())
	})

	t.Run("关闭后拒绝订阅", func(t *testing.T) {
		b, err := h.Subscribe("bob")
		require.NoError(t, err)
		require.NoError(t, h.Close())
		_, open := <-b.Events()
		assert.False(t, open)
		b.Close()

		_, err = h.Subscribe("bob")
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, h.SendTo("bob", "x", nil), ErrClosed)
	})
}

func TestHubStopEndsSubscriptions(t *testing.T) {
	h := NewHub(1)
	sub, err := h.Subscribe("alice")
	require.NoError(t, err)

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Stop(context.Background()))

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.False(t, h.IsOnline("alice"))
	_, err = h.Subscribe("bob")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, h.Close())
}
