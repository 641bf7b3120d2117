package metadata

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-rhi/engine/core"
)

// ThreadChecker tells a backend whether the caller runs on its command
// thread. platform.Dispatcher implements it.
type ThreadChecker interface {
	OnDesignatedThread() bool
}

// Backend owns the native resources of one device. Every method except
// Name, Driver, SupportedBytecodeFormats and Stats must be called on the
// command thread; other callers get a FatalUsageError.
type Backend interface {
	Name() string
	Driver() Driver
	// SupportedBytecodeFormats lists the bytecode file extensions accepted by
	// CreateShader, see ShaderBytecodeExtension.
	SupportedBytecodeFormats() []string
	// CreateShader allocates a native program from two validated stages.
	CreateShader(desc *ShaderDescriptor) (Handle, error)
	// DestroyResource releases a handle issued by this backend. Releasing a
	// stale or foreign handle is a FatalUsageError.
	DestroyResource(handle Handle) error
	// Clear resets the masked channels of target. When mask has ClearColor,
	// len(colors) must equal the colour attachment count of target.
	Clear(target Target, colors []gputypes.Color, depth float32, stencil uint32, mask ClearMask) error
	Stats() core.ResourceStats
	// Shutdown releases every live handle. Any later call fails.
	Shutdown() error
}

// DrawableTarget is a Target that knows the backend able to clear it.
type DrawableTarget interface {
	Target
	Backend() Backend
}

// CheckClear validates the colour count of a clear request against target.
// Backends call it before touching any attachment.
func CheckClear(target Target, colors []gputypes.Color, mask ClearMask) error {
	if mask.Has(ClearColor) && len(colors) != target.ColorAttachmentCount() {
		return &core.TargetMismatchError{Expected: target.ColorAttachmentCount(), Got: len(colors)}
	}
	return nil
}
