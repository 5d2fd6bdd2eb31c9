package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpopts "github.com/kart-io/docqa/pkg/options/http"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

type fakeServer struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
}

func (f *fakeServer) Name() string { return f.name }

func (f *fakeServer) Start(context.Context) error {
	f.rec.add("start:" + f.name)
	return f.startErr
}

func (f *fakeServer) Stop(context.Context) error {
	f.rec.add("stop:" + f.name)
	return f.stopErr
}

func TestManagerOrder(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	m.AddServer(&fakeServer{name: "a", rec: rec})
	m.AddServer(&fakeServer{name: "b", rec: rec})

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, rec.calls)
}

func TestManagerStartRollback(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	m.AddServer(&fakeServer{name: "a", rec: rec})
	m.AddServer(&fakeServer{name: "b", rec: rec, startErr: errors.New("port in use")})

	err := m.Start(context.Background())
	assert.ErrorContains(t, err, "failed to start server b")
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, rec.calls)
}

func TestManagerStopAggregatesErrors(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	m.AddServer(&fakeServer{name: "a", rec: rec, stopErr: errors.New("x")})
	m.AddServer(&fakeServer{name: "b", rec: rec, stopErr: errors.New("y")})
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop server a")
	assert.Contains(t, err.Error(), "failed to stop server b")
}

func TestManagerRunStopsOnContextCancel(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithShutdownTimeout(time.Second))
	m.AddServer(&fakeServer{name: "worker", rec: rec})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"start:worker", "stop:worker"}, rec.calls)
}

func TestHTTPServer(t *testing.T) {
	opts := httpopts.NewOptions()
	opts.Addr = "127.0.0.1:0"
	opts.Mode = gin.TestMode

	s := NewHTTPServer(opts)
	s.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get(fmt.Sprintf("http://%s/ping", s.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
