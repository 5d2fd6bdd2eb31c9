package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	p, err := NewPool("ingest", IngestPool, IngestPoolConfig(4))
	require.NoError(t, err)
	defer p.Release()

	assert.Equal(t, "ingest", p.Name())
	assert.Equal(t, IngestPool, p.Type())
	assert.Equal(t, 4, p.Cap())
}

func TestNewPoolInvalidConfig(t *testing.T) {
	_, err := NewPool("bad", IngestPool, &Config{Capacity: 0})
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)

	_, err = NewPool("nil", IngestPool, nil)
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
}

func TestPoolSubmit(t *testing.T) {
	p, err := NewPool("test", IngestPool, IngestPoolConfig(8))
	require.NoError(t, err)
	defer p.Release()

	var counter atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(100), counter.Load())
	assert.Eventually(t, func() bool { return p.Stats().CompletedTasks == 100 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(100), p.Stats().SubmittedTasks)
}

func TestPoolSubmitWithContext(t *testing.T) {
	p, err := NewPool("test", BackgroundPool, BackgroundPoolConfig())
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.SubmitWithContext(ctx, func() { t.Error("已取消的任务不应执行") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolPanicRecovered(t *testing.T) {
	recovered := make(chan any, 1)
	p, err := NewPool("panic", BackgroundPool, &Config{
		Capacity:     1,
		PanicHandler: func(v any) { recovered <- v },
	})
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Submit(func() { panic("boom") }))

	select {
	case v := <-recovered:
		assert.Equal(t, "boom", v)
	case <-time.After(time.Second):
		t.Fatal("panic 未被恢复")
	}
	assert.Eventually(t, func() bool { return p.Stats().PanicRecovered == 1 }, time.Second, 10*time.Millisecond)
}

func TestPoolReleased(t *testing.T) {
	p, err := NewPool("closed", BackgroundPool, BackgroundPoolConfig())
	require.NoError(t, err)

	require.NoError(t, p.ReleaseTimeout(time.Second))
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	p.Release()
}
