package testbed

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rhi/engine"
	"github.com/spaghettifunk/anima-rhi/engine/config"
)

func TestHue(t *testing.T) {
	red := hue(0)
	assert.InDelta(t, 1.0, red.R, 1e-9)
	assert.InDelta(t, 0.25, red.G, 1e-9)
	assert.InDelta(t, 0.25, red.B, 1e-9)
	assert.Equal(t, 1.0, red.A)

	// Whole turns wrap around.
	a, b := hue(0.4), hue(2.4)
	assert.InDelta(t, a.R, b.R, 1e-9)
	assert.InDelta(t, a.G, b.G, 1e-9)
	assert.InDelta(t, a.B, b.B, 1e-9)
	assert.InDelta(t, hue(1.0/3).G, 1.0, 1e-9)
}

func TestGameRendersBundledShaders(t *testing.T) {
	cfg := config.Default()
	cfg.Shaders.Dir = filepath.Join("..", "assets", "shaders")
	cfg.Shaders.Watch = false
	cfg.Window.Width = 4
	cfg.Window.Height = 4

	game := NewTestGame(cfg, nil, 2)
	e, err := engine.New(game.Game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	_, ok := game.SystemManager.ShaderSystem.Get("gradient")
	assert.True(t, ok)

	require.NoError(t, e.Run())
	assert.Equal(t, 2, e.FrameCount())
	assert.Greater(t, game.state().elapsed, 0.0)
	assert.Equal(t, 4, game.state().width)
	require.NoError(t, e.Shutdown())
}
