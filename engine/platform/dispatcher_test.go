package platform

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(8)
	d.Start()
	t.Cleanup(d.Shutdown)
	return d
}

func TestCallRunsOnCommandThread(t *testing.T) {
	d := startDispatcher(t)
	assert.False(t, d.OnDesignatedThread())

	var inside bool
	require.NoError(t, d.Call(func() error {
		inside = d.OnDesignatedThread()
		return nil
	}))
	assert.True(t, inside)
}

func TestCallReturnsError(t *testing.T) {
	d := startDispatcher(t)
	boom := errors.New("boom")
	assert.ErrorIs(t, d.Call(func() error { return boom }), boom)
}

func TestCallRecoversPanic(t *testing.T) {
	d := startDispatcher(t)
	err := d.Call(func() error { panic("bad state") })
	assert.ErrorIs(t, err, core.ErrFatalUsage)

	// The loop survives the panic.
	require.NoError(t, d.Call(func() error { return nil }))
}

func TestNestedCallRunsInline(t *testing.T) {
	d := startDispatcher(t)
	var order []int
	require.NoError(t, d.Call(func() error {
		order = append(order, 1)
		err := d.Call(func() error {
			order = append(order, 2)
			return nil
		})
		order = append(order, 3)
		return err
	}))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRunOnDesignatedThreadKeepsOrder(t *testing.T) {
	d := startDispatcher(t)
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		require.NoError(t, d.RunOnDesignatedThread(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	// A blocking call is queued behind every action above.
	require.NoError(t, d.Call(func() error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestShutdownDrainsAndRejects(t *testing.T) {
	d := NewDispatcher(4)
	d.Start()

	ran := make(chan struct{})
	require.NoError(t, d.RunOnDesignatedThread(func() { close(ran) }))
	d.Shutdown()
	<-ran

	assert.ErrorIs(t, d.RunOnDesignatedThread(func() {}), core.ErrFatalUsage)
	assert.ErrorIs(t, d.Call(func() error { return nil }), core.ErrFatalUsage)

	// Idempotent.
	d.Shutdown()
}

func TestRunOnCallerThread(t *testing.T) {
	d := NewDispatcher(4)
	exited := make(chan struct{})
	go func() {
		d.Run()
		close(exited)
	}()

	var inside bool
	require.NoError(t, d.Call(func() error {
		inside = d.OnDesignatedThread()
		return nil
	}))
	assert.True(t, inside)

	d.Shutdown()
	<-exited
}

func TestCallsAfterShutdownAreRejectedOnEveryGoroutine(t *testing.T) {
	d := NewDispatcher(4)
	d.Start()
	d.Shutdown()

	var ran, accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.OnDesignatedThread() {
				accepted.Add(1)
			}
			err := d.Call(func() error {
				ran.Add(1)
				return nil
			})
			if !errors.Is(err, core.ErrFatalUsage) {
				accepted.Add(1)
			}
			if err := d.RunOnDesignatedThread(func() { ran.Add(1) }); !errors.Is(err, core.ErrFatalUsage) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, accepted.Load())
	assert.Zero(t, ran.Load())
	assert.False(t, d.OnDesignatedThread())
}

func TestRunOnDesignatedThreadDoesNotBlockOnBusyLoop(t *testing.T) {
	d := startDispatcher(t)
	release := make(chan struct{})
	require.NoError(t, d.RunOnDesignatedThread(func() { <-release }))

	var ran atomic.Int32
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < 100; i++ {
			_ = d.RunOnDesignatedThread(func() { ran.Add(1) })
		}
	}()
	select {
	case <-submitted:
	case <-time.After(5 * time.Second):
		t.Fatal("submitting to a busy command thread blocked")
	}

	close(release)
	require.NoError(t, d.Call(func() error { return nil }))
	assert.Equal(t, int32(100), ran.Load())
}

func TestShutdownFromCommandThreadWhileSubmitting(t *testing.T) {
	d := NewDispatcher(1)
	d.Start()

	var ran atomic.Int32
	submitted := make(chan struct{})
	require.NoError(t, d.RunOnDesignatedThread(func() {
		<-submitted
		d.Shutdown()
	}))
	for i := 0; i < 50; i++ {
		require.NoError(t, d.RunOnDesignatedThread(func() { ran.Add(1) }))
	}
	close(submitted)

	stopped := make(chan struct{})
	go func() {
		d.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown from the command thread deadlocked")
	}
	// Everything accepted before Shutdown still ran.
	assert.Equal(t, int32(50), ran.Load())
	assert.ErrorIs(t, d.RunOnDesignatedThread(func() {}), core.ErrFatalUsage)
}
