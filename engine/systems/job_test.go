package systems

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidates(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(4, 8)
	require.NoError(t, err)

	var completed, failed atomic.Int32
	var mu sync.Mutex
	var failures []error
	boom := errors.New("boom")

	for i := 0; i < 20; i++ {
		js.Submit(JobTask{
			Run: func() error {
				if i%5 == 0 {
					return boom
				}
				return nil
			},
			OnComplete: func() { completed.Add(1) },
			OnFailure: func(err error) {
				failed.Add(1)
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			},
		})
	}
	js.Submit(JobTask{
		Run:       func() error { panic("worker must survive") },
		OnFailure: func(error) { failed.Add(1) },
	})

	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(16), completed.Load())
	assert.Equal(t, int32(5), failed.Load())
	for _, err := range failures {
		assert.ErrorIs(t, err, boom)
	}
}

func TestJobPanicIsLoggedVerbatim(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })

	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	var got error
	js.Submit(JobTask{
		Run:       func() error { panic("100% of %d frames") },
		OnFailure: func(err error) { got = err },
	})
	require.NoError(t, js.Shutdown())

	require.Error(t, got)
	assert.Contains(t, buf.String(), "job panicked: 100% of %d frames")
	assert.NotContains(t, buf.String(), "%!")
}
