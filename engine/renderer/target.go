package renderer

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

// Clear resets the masked channels of target through its backend. When the
// mask includes colour there must be one colour per attachment, otherwise a
// TargetMismatchError is returned and nothing is cleared. The caller must be
// on the backend's command thread.
func Clear(target DrawableTarget, colors []gputypes.Color, depth float32, stencil uint32, mask metadata.ClearMask) error {
	if target == nil {
		return core.NewFatalUsageError("Clear", "nil target")
	}
	backend := target.Backend()
	if backend == nil {
		return core.NewFatalUsageError("Clear", "target has no backend")
	}
	if err := metadata.CheckClear(target, colors, mask); err != nil {
		return err
	}
	return backend.Clear(target, colors, depth, stencil, mask)
}

// ClearColor is the single attachment form of Clear: colour only, depth and
// stencil untouched. A target with several attachments needs Clear.
func ClearColor(target DrawableTarget, c gputypes.Color) error {
	return Clear(target, []gputypes.Color{c}, 0, 0, metadata.ClearColor)
}
