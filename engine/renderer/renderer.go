package renderer

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-rhi/engine/config"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/platform"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/software"
)

// Renderer pairs a backend with the dispatcher owning its command thread.
// Every backend call made through it is marshaled onto that thread.
type Renderer struct {
	backend Backend
	thread  *platform.Dispatcher
	events  *core.EventSystem
}

// New wraps a backend. thread must be the dispatcher the backend checks its
// callers against. events may be nil.
func New(backend Backend, thread *platform.Dispatcher, events *core.EventSystem) *Renderer {
	return &Renderer{
		backend: backend,
		thread:  thread,
		events:  events,
	}
}

// NewFromConfig builds the backend named by the configuration. Only the
// in-process drivers can be created without a host device; native drivers
// are built by their own packages (see vulkan.New) and passed to New.
func NewFromConfig(cfg *config.Config, thread *platform.Dispatcher, events *core.EventSystem) (*Renderer, error) {
	driver, err := metadata.ParseDriver(cfg.Renderer.Driver)
	if err != nil {
		return nil, err
	}

	switch driver {
	case metadata.DriverNone, metadata.DriverPrivate:
		var backend *software.Backend
		err := thread.Call(func() error {
			var err error
			backend, err = software.New(software.Options{
				Driver:     driver,
				MaxHandles: cfg.Renderer.MaxHandles,
				Thread:     thread,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		core.LogInfo("renderer backend '%s' initialized (driver %s)", backend.Name(), driver)
		return New(backend, thread, events), nil
	}
	return nil, core.NewConfigurationError("renderer.driver", "driver %s needs a host device and cannot be created from configuration", driver)
}

func (r *Renderer) Backend() Backend {
	return r.backend
}

func (r *Renderer) Driver() metadata.Driver {
	return r.backend.Driver()
}

func (r *Renderer) Dispatcher() *platform.Dispatcher {
	return r.thread
}

func (r *Renderer) Events() *core.EventSystem {
	return r.events
}

// Do runs fn on the command thread and waits for it.
func (r *Renderer) Do(fn func(backend Backend) error) error {
	return r.thread.Call(func() error {
		return fn(r.backend)
	})
}

// Clear marshals a clear of target onto the command thread.
func (r *Renderer) Clear(target DrawableTarget, colors []gputypes.Color, depth float32, stencil uint32, mask metadata.ClearMask) error {
	return r.thread.Call(func() error {
		return Clear(target, colors, depth, stencil, mask)
	})
}

// ClearColor marshals ClearColor onto the command thread.
func (r *Renderer) ClearColor(target DrawableTarget, c gputypes.Color) error {
	return r.thread.Call(func() error {
		return ClearColor(target, c)
	})
}

func (r *Renderer) Stats() core.ResourceStats {
	return r.backend.Stats()
}

// Shutdown tears the backend down on its command thread. Resources still
// alive are released by the backend and their later Dispose only logs.
func (r *Renderer) Shutdown() error {
	err := r.thread.Call(r.backend.Shutdown)
	if err != nil {
		core.LogError("renderer shutdown failed: %s", err)
		return err
	}
	core.LogInfo("renderer backend '%s' shut down", r.backend.Name())
	return nil
}
