package window

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-rhi/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Window is an OS window whose framebuffer a backend renders into. All
// methods must be called from the main thread.
type Window struct {
	handle *glfw.Window
	events *core.EventSystem
	width  int
	height int
}

// New opens a window without a client API, ready for a Vulkan surface.
// Resizes are reported through events with EVENT_CODE_TARGET_RESIZED when
// events is not nil.
func New(title string, width, height int, events *core.EventSystem) (*Window, error) {
	if width <= 0 || height <= 0 {
		return nil, core.NewConfigurationError("window", "size must be positive, got %dx%d", width, height)
	}
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return nil, err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	handle, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return nil, err
	}

	w := &Window{
		handle: handle,
		events: events,
	}
	w.width, w.height = handle.GetFramebufferSize()
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	handle.Show()

	core.LogInfo("window '%s' opened (%dx%d)", title, w.width, w.height)
	return w, nil
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	w.width, w.height = width, height
	if w.events != nil {
		w.events.Fire(core.EVENT_CODE_TARGET_RESIZED, w, core.EventContext{Data: [2]int{width, height}})
	}
}

// FramebufferSize is the size in pixels of the drawable area.
func (w *Window) FramebufferSize() (int, int) {
	return w.width, w.height
}

func (w *Window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *Window) PumpMessages() {
	glfw.PollEvents()
}

// RequiredInstanceExtensions lists the Vulkan instance extensions needed to
// create a surface for this window.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

func (w *Window) Handle() *glfw.Window {
	return w.handle
}

func (w *Window) Shutdown() {
	w.handle.Destroy()
	glfw.Terminate()
}
