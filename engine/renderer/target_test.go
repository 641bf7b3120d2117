package renderer

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-rhi/engine/config"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/platform"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearColorCountMismatch(t *testing.T) {
	r, backend := newTestRenderer(t)
	target := backend.NewTarget(64, 64, 2)

	err := r.Clear(target, []gputypes.Color{gputypes.ColorBlack}, 1, 0, metadata.ClearAll)
	var mismatch *core.TargetMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Expected)
	assert.Empty(t, backend.Clears())

	require.NoError(t, r.Clear(target, []gputypes.Color{gputypes.ColorBlack, gputypes.ColorWhite}, 1, 0, metadata.ClearAll))
	require.Len(t, backend.Clears(), 1)
}

func TestClearColorConvenience(t *testing.T) {
	r, backend := newTestRenderer(t)
	target := backend.NewTarget(8, 8, 1)

	require.NoError(t, r.ClearColor(target, gputypes.ColorRed))
	clears := backend.Clears()
	require.Len(t, clears, 1)
	assert.Equal(t, metadata.ClearColor, clears[0].Mask)
	assert.Equal(t, []gputypes.Color{gputypes.ColorRed}, clears[0].Colors)
	assert.Zero(t, clears[0].Depth)
	assert.Zero(t, clears[0].Stencil)

	assert.ErrorIs(t, r.ClearColor(backend.NewTarget(8, 8, 3), gputypes.ColorRed), core.ErrTargetMismatch)
}

func TestClearOffCommandThread(t *testing.T) {
	_, backend := newTestRenderer(t)
	err := ClearColor(backend.NewTarget(1, 1, 1), gputypes.ColorRed)
	assert.ErrorIs(t, err, core.ErrFatalUsage)
	assert.ErrorIs(t, Clear(nil, nil, 0, 0, metadata.ClearDepth), core.ErrFatalUsage)
}

func TestNewFromConfigSoftware(t *testing.T) {
	thread := platform.NewDispatcher(8)
	thread.Start()
	t.Cleanup(thread.Shutdown)

	cfg := config.Default()
	r, err := NewFromConfig(cfg, thread, nil)
	require.NoError(t, err)
	assert.Equal(t, metadata.DriverPrivate, r.Driver())

	var surface *software.Surface
	require.NoError(t, r.Do(func(b Backend) error {
		var err error
		surface, err = b.(*software.Backend).NewSurface(4, 4, 1)
		return err
	}))
	require.NoError(t, r.ClearColor(surface, gputypes.ColorGreen))

	require.NoError(t, r.Do(func(Backend) error {
		img, err := surface.Snapshot(0)
		if err != nil {
			return err
		}
		assert.Equal(t, uint8(255), img.RGBAAt(3, 3).G)
		return nil
	}))
	require.NoError(t, r.Shutdown())
}

func TestNewFromConfigNativeDriverNeedsHost(t *testing.T) {
	thread := platform.NewDispatcher(1)
	thread.Start()
	t.Cleanup(thread.Shutdown)

	cfg := config.Default()
	cfg.Renderer.Driver = "metal"
	_, err := NewFromConfig(cfg, thread, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
