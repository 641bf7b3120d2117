package engine

import (
	"github.com/spaghettifunk/anima-rhi/engine/config"
	"github.com/spaghettifunk/anima-rhi/engine/core"
)

// Window is the OS window an application presents in. Every method is
// called from the goroutine running Engine.Run.
type Window interface {
	ShouldClose() bool
	PumpMessages()
	FramebufferSize() (int, int)
	Shutdown()
}

// OpenWindow creates the application window. Resizes must be reported with
// EVENT_CODE_TARGET_RESIZED on events.
type OpenWindow func(title string, width, height int, events *core.EventSystem) (Window, error)

type ApplicationConfig struct {
	// The application name used in windowing and logs.
	Name string
	// Engine configuration, usually loaded from a TOML file.
	Config *config.Config
	// Opens the window when Config.Window.Enabled is set. Without it the
	// engine runs headless.
	OpenWindow OpenWindow
	// Frames to render before Run returns when headless. Zero runs until
	// Stop is called.
	Frames int
}
