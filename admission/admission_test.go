package admission

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultCeiling(t *testing.T) {
	c := New(0)
	assert.Equal(t, runtime.NumCPU(), c.Ceiling())

	c = New(-3)
	assert.Equal(t, runtime.NumCPU(), c.Ceiling())

	c = New(7)
	assert.Equal(t, 7, c.Ceiling())
}

func TestAcquireRelease(t *testing.T) {
	c := New(2)
	ctx := context.Background()

	require.NoError(t, c.Acquire(ctx))
	require.NoError(t, c.Acquire(ctx))
	assert.EqualValues(t, 2, c.Active())

	c.Release()
	assert.EqualValues(t, 1, c.Active())
	c.Release()
	assert.EqualValues(t, 0, c.Active())
}

func TestAcquire_BlocksAtCeiling(t *testing.T) {
	c := New(1)
	ctx := context.Background()

	require.NoError(t, c.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, c.Acquire(ctx))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block while ceiling is reached")
	case <-time.After(50 * time.Millisecond):
	}

	c.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire should wake after release")
	}
	c.Release()
}

func TestAcquire_ContextCancelled(t *testing.T) {
	c := New(1)
	require.NoError(t, c.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Acquire(ctx)
	require.Error(t, err)
	assert.EqualValues(t, 1, c.Active())
	c.Release()
}

func TestCeilingNeverExceeded(t *testing.T) {
	const ceiling = 4
	c := New(ceiling)

	var peak, active atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, c.Acquire(context.Background()))
			defer c.Release()

			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(ceiling))
	assert.EqualValues(t, 0, c.Active())
}

func TestOnChange(t *testing.T) {
	c := New(2)
	var mu sync.Mutex
	var seen []int64
	c.OnChange(func(n int64) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	require.NoError(t, c.Acquire(context.Background()))
	c.Release()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 0}, seen)
}
