package software

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rhi/engine/shaders"
)

const name = "software"

type Options struct {
	// DriverPrivate (the default) validates SPIR-V bytecode. DriverNone
	// accepts any bytecode and behaves as a null device.
	Driver metadata.Driver
	// Upper bound of live handles.
	MaxHandles int
	// Thread is consulted on every call when not nil.
	Thread metadata.ThreadChecker
}

type program struct {
	label    string
	vertex   []uint32
	fragment []uint32
	entries  [2]string
}

// Backend is a CPU implementation of metadata.Backend. Programs are checked
// and kept in memory; surfaces are plain images.
type Backend struct {
	driver   metadata.Driver
	thread   metadata.ThreadChecker
	programs *core.HandleTable[*program]
	metrics  core.ResourceMetrics
	shutdown bool
	logger   *log.Logger
}

func New(opts Options) (*Backend, error) {
	switch opts.Driver {
	case metadata.DriverNone, metadata.DriverPrivate:
	default:
		return nil, core.NewConfigurationError("renderer.driver", "software backend cannot emulate %s", opts.Driver)
	}
	if opts.MaxHandles < 1 {
		return nil, core.NewConfigurationError("renderer.max_handles", "must be at least 1, got %d", opts.MaxHandles)
	}
	b := &Backend{
		driver:   opts.Driver,
		thread:   opts.Thread,
		programs: core.NewHandleTable[*program](opts.MaxHandles),
		logger:   core.Logger().WithPrefix("software"),
	}
	b.logger.Debug("backend created", "driver", opts.Driver, "max_handles", opts.MaxHandles)
	return b, nil
}

func (b *Backend) check(op string) error {
	if b.shutdown {
		return core.NewFatalUsageError(op, "%s backend is shut down", name)
	}
	if b.thread != nil && !b.thread.OnDesignatedThread() {
		return core.NewFatalUsageError(op, "called off the command thread")
	}
	return nil
}

func (b *Backend) Name() string {
	return name
}

func (b *Backend) Driver() metadata.Driver {
	return b.driver
}

func (b *Backend) SupportedBytecodeFormats() []string {
	if ext := metadata.ShaderBytecodeExtension(b.driver); ext != "" {
		return []string{ext}
	}
	return nil
}

func (b *Backend) CreateShader(desc *metadata.ShaderDescriptor) (metadata.Handle, error) {
	if err := b.check("CreateShader"); err != nil {
		return metadata.InvalidHandle, err
	}
	if desc == nil || desc.Vertex == nil || desc.Fragment == nil {
		return metadata.InvalidHandle, core.NewConfigurationError("descriptor", "both stages are required")
	}

	p := &program{
		label:   desc.Label,
		entries: [2]string{desc.Vertex.EntryPoint(), desc.Fragment.EntryPoint()},
	}
	if b.driver == metadata.DriverPrivate {
		var err error
		if p.vertex, err = shaders.SPIRVWords(desc.Vertex.Bytecode()); err != nil {
			b.metrics.RecordFailure()
			return metadata.InvalidHandle, &core.BackendAllocationError{Backend: name, Diagnostic: fmt.Sprintf("%s: vertex stage: %s", desc.Label, err)}
		}
		if p.fragment, err = shaders.SPIRVWords(desc.Fragment.Bytecode()); err != nil {
			b.metrics.RecordFailure()
			return metadata.InvalidHandle, &core.BackendAllocationError{Backend: name, Diagnostic: fmt.Sprintf("%s: fragment stage: %s", desc.Label, err)}
		}
	}

	token, err := b.programs.Acquire(p)
	if err != nil {
		b.metrics.RecordFailure()
		return metadata.InvalidHandle, err
	}
	b.metrics.RecordAllocation()
	b.logger.Debug("shader created", "label", desc.Label, "handle", metadata.Handle(token))
	return metadata.Handle(token), nil
}

func (b *Backend) DestroyResource(handle metadata.Handle) error {
	if err := b.check("DestroyResource"); err != nil {
		return err
	}
	p, err := b.programs.Release(uint64(handle))
	if err != nil {
		return err
	}
	b.metrics.RecordRelease()
	b.logger.Debug("shader destroyed", "label", p.label, "handle", handle)
	return nil
}

func (b *Backend) Clear(target metadata.Target, colors []gputypes.Color, depth float32, stencil uint32, mask metadata.ClearMask) error {
	if err := b.check("Clear"); err != nil {
		return err
	}
	surface, ok := target.(*Surface)
	if !ok || surface.backend != b {
		return core.NewFatalUsageError("Clear", "target %T was not created by this backend", target)
	}
	if err := metadata.CheckClear(target, colors, mask); err != nil {
		return err
	}
	surface.clear(colors, depth, stencil, mask)
	return nil
}

// NewSurface creates an off-screen target with the given number of colour
// attachments plus a depth and a stencil plane.
func (b *Backend) NewSurface(width, height, colorAttachments int) (*Surface, error) {
	if err := b.check("NewSurface"); err != nil {
		return nil, err
	}
	if width < 0 || height < 0 {
		return nil, core.NewConfigurationError("surface", "size must not be negative, got %dx%d", width, height)
	}
	if colorAttachments < 0 {
		return nil, core.NewConfigurationError("surface", "colour attachment count must not be negative, got %d", colorAttachments)
	}
	return newSurface(b, width, height, colorAttachments), nil
}

func (b *Backend) Stats() core.ResourceStats {
	return b.metrics.Snapshot()
}

// Shutdown releases the programs still alive. It is safe to call twice.
func (b *Backend) Shutdown() error {
	if b.shutdown {
		return nil
	}
	if err := b.check("Shutdown"); err != nil {
		return err
	}
	var leaked []uint64
	b.programs.Each(func(token uint64, p *program) {
		b.logger.Warn("shader still alive at shutdown", "label", p.label, "handle", metadata.Handle(token))
		leaked = append(leaked, token)
	})
	for _, token := range leaked {
		if _, err := b.programs.Release(token); err == nil {
			b.metrics.RecordRelease()
		}
	}
	b.shutdown = true
	b.logger.Debug("backend shut down", "stats", fmt.Sprintf("%+v", b.metrics.Snapshot()))
	return nil
}

// Program returns the decoded words of a live program. For tests and tools.
func (b *Backend) Program(handle metadata.Handle) (vertex, fragment []uint32, ok bool) {
	p, ok := b.programs.Get(uint64(handle))
	if !ok {
		return nil, nil, false
	}
	return p.vertex, p.fragment, true
}
