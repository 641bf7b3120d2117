package engine

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/anima-rhi/engine/assets"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/platform"
	"github.com/spaghettifunk/anima-rhi/engine/renderer"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/software"
	"github.com/spaghettifunk/anima-rhi/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutdown
)

const targetFrameSeconds = 1.0 / 60.0
const targetFrameDuration = time.Second / 60

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	isSuspended   bool
	dispatcher    *platform.Dispatcher
	events        *core.EventSystem
	renderer      *renderer.Renderer
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	window        Window
	surface       *software.Surface
	width         int
	height        int
	clock         *core.Clock
	frameCount    int
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil || g.ApplicationConfig.Config == nil {
		return nil, core.NewConfigurationError("application", "a game with an application config is required")
	}
	cfg := g.ApplicationConfig.Config
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		dispatcher:   platform.NewDispatcher(cfg.Renderer.CommandQueueSize),
		events:       core.NewEventSystem(),
		clock:        core.NewClock(),
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return core.NewFatalUsageError("Initialize", "engine already initialized")
	}
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig
	cfg := app.Config

	e.dispatcher.Start()

	r, err := renderer.NewFromConfig(cfg, e.dispatcher, e.events)
	if err != nil {
		return err
	}
	e.renderer = r

	if cfg.Window.Enabled && app.OpenWindow != nil {
		w, err := app.OpenWindow(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height, e.events)
		if err != nil {
			return err
		}
		e.window = w
		e.width, e.height = w.FramebufferSize()
	}

	backend, ok := r.Backend().(*software.Backend)
	if !ok {
		return fmt.Errorf("backend %s cannot create off-screen surfaces", r.Backend().Name())
	}
	err = r.Do(func(renderer.Backend) error {
		var err error
		e.surface, err = backend.NewSurface(e.width, e.height, 1)
		return err
	})
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Shaders.Dir); err == nil {
		e.assetManager = assets.NewAssetManager(r.Driver(), e.events)
		if err := e.assetManager.Initialize(cfg.Shaders.Dir, cfg.Shaders.Watch); err != nil {
			return err
		}
	} else {
		core.LogWarn("shader directory %s not available, no shaders will be loaded: %s", cfg.Shaders.Dir, err)
	}

	sm, err := systems.NewSystemManager(cfg, r, e.assetManager)
	if err != nil {
		return err
	}
	e.systemManager = sm
	e.gameInstance.SystemManager = sm
	if err := sm.Initialize(); err != nil {
		// Shaders that failed stay unloaded, the rest are usable.
		core.LogWarn("some shaders failed to load: %s", err)
	}

	e.events.Register(core.EVENT_CODE_TARGET_RESIZED, e, e.onResized)

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized (%dx%d, driver %s)", app.Name, e.width, e.height, r.Driver())
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.NewFatalUsageError("Run", "engine is not initialized")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	defer e.clock.Stop()

	frames := e.gameInstance.ApplicationConfig.Frames
	for e.isRunning.Load() {
		if e.window != nil {
			e.window.PumpMessages()
			if e.window.ShouldClose() {
				break
			}
		}
		if e.isSuspended {
			time.Sleep(targetFrameDuration)
			continue
		}

		frameStart := time.Now()
		delta := e.clock.Tick().Seconds()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(e.renderer, e.surface, delta); err != nil {
				core.LogError("Game render failed, shutting down: %s", err)
				return err
			}
		}
		e.frameCount++

		if e.window == nil && frames > 0 && e.frameCount >= frames {
			break
		}
		// Give the remaining frame time back to the OS.
		if remaining := targetFrameSeconds - time.Since(frameStart).Seconds(); remaining > 0 {
			time.Sleep(time.Duration(remaining * float64(time.Second)))
		}
	}
	e.isRunning.Store(false)
	e.currentStage = EngineStageInitialized
	return nil
}

// Stop makes Run return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) FrameCount() int {
	return e.frameCount
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Surface() *software.Surface {
	return e.surface
}

func (e *Engine) Events() *core.EventSystem {
	return e.events
}

// GetFramebufferSize returns the width and height (in this order) of the
// render target.
func (e *Engine) GetFramebufferSize() (int, int) {
	return e.width, e.height
}

// Snapshot writes the first colour attachment of the render target to path
// as a BMP image.
func (e *Engine) Snapshot(path string) error {
	var snapshot *image.RGBA
	err := e.renderer.Do(func(renderer.Backend) error {
		var err error
		snapshot, err = e.surface.Snapshot(0)
		return err
	})
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bmp.Encode(f, snapshot); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	core.LogInfo("snapshot written to %s", path)
	return nil
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown || e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	e.events.Unregister(core.EVENT_CODE_TARGET_RESIZED, e)
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown())
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
	}
	if e.window != nil {
		e.window.Shutdown()
	}
	e.dispatcher.Shutdown()
	e.events.Shutdown()

	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	size, ok := context.Data.([2]int)
	if !ok {
		core.LogError("wrong data associated with the event code `%d`", code)
		return false
	}
	width, height := size[0], size[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.renderer.Do(func(renderer.Backend) error { return e.surface.Resize(width, height) }); err != nil {
		core.LogError("failed to resize render target: %s", err)
		return false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("%s", err)
		}
	}
	return false
}
