package testbed

import (
	gomath "math"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-rhi/engine"
	"github.com/spaghettifunk/anima-rhi/engine/config"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

// uniformAlignment is a common minUniformBufferOffsetAlignment of desktop
// GPUs, used to report how big each shader's uniform slot would be.
const uniformAlignment = 256

type TestGame struct {
	*engine.Game
}

type gameState struct {
	elapsed float64
	width   int
	height  int
}

func NewTestGame(cfg *config.Config, openWindow engine.OpenWindow, frames int) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:       "Anima RHI testbed",
				Config:     cfg,
				OpenWindow: openWindow,
				Frames:     frames,
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	shaders := g.SystemManager.ShaderSystem
	for _, name := range shaders.Names() {
		s, _ := shaders.Get(name)
		core.LogInfo("shader %s: %d uniforms, %d bytes merged, %d bytes per %d-aligned slot",
			s, len(s.Uniforms()), s.MergedUniformSizeInBytes(), s.UniformBufferStride(uniformAlignment), uniformAlignment)
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().elapsed += deltaTime
	return nil
}

// Render clears the target to a colour cycling through the hue wheel,
// with depth reset to the far plane.
func (g *TestGame) Render(r *renderer.Renderer, target renderer.DrawableTarget, deltaTime float64) error {
	c := hue(g.state().elapsed * 0.25)
	colors := make([]gputypes.Color, target.ColorAttachmentCount())
	for i := range colors {
		colors[i] = c
	}
	return r.Clear(target, colors, 1.0, 0, metadata.ClearAll)
}

func (g *TestGame) OnResize(width, height int) error {
	s := g.state()
	s.width, s.height = width, height
	core.LogDebug("testbed target is now %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed ran for %.2fs", g.state().elapsed)
	return nil
}

// hue maps t in turns to a fully saturated colour.
func hue(t float64) gputypes.Color {
	t -= gomath.Floor(t)
	channel := func(offset float64) float64 {
		return 0.5 + 0.5*gomath.Cos(2*gomath.Pi*(t+offset))
	}
	return gputypes.Color{R: channel(0), G: channel(-1.0 / 3), B: channel(-2.0 / 3), A: 1}
}
