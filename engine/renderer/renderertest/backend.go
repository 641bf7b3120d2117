// Package renderertest provides a recording backend for tests of code built
// on the renderer.
package renderertest

import (
	"encoding/binary"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

// ClearCall records the arguments of one successful Clear.
type ClearCall struct {
	Target  *Target
	Colors  []gputypes.Color
	Depth   float32
	Stencil uint32
	Mask    metadata.ClearMask
}

// Backend implements metadata.Backend without doing any work. It records
// every allocation and release so tests can count them. It is safe for
// concurrent use.
type Backend struct {
	// FailCreate, when set, is returned by CreateShader.
	FailCreate error

	mu        sync.Mutex
	thread    metadata.ThreadChecker
	next      uint64
	live      map[metadata.Handle]string
	created   []string
	destroyed []metadata.Handle
	clears    []ClearCall
	shutdown  bool
	metrics   core.ResourceMetrics
}

// NewBackend returns a recording backend. thread may be nil to accept calls
// from any goroutine.
func NewBackend(thread metadata.ThreadChecker) *Backend {
	return &Backend{
		thread: thread,
		live:   make(map[metadata.Handle]string),
	}
}

func (b *Backend) check(op string) error {
	if b.shutdown {
		return core.NewFatalUsageError(op, "backend is shut down")
	}
	if b.thread != nil && !b.thread.OnDesignatedThread() {
		return core.NewFatalUsageError(op, "called off the command thread")
	}
	return nil
}

func (b *Backend) Name() string {
	return "recording"
}

func (b *Backend) Driver() metadata.Driver {
	return metadata.DriverPrivate
}

func (b *Backend) SupportedBytecodeFormats() []string {
	return []string{metadata.ShaderBytecodeExtension(metadata.DriverPrivate)}
}

func (b *Backend) CreateShader(desc *metadata.ShaderDescriptor) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("CreateShader"); err != nil {
		return metadata.InvalidHandle, err
	}
	b.created = append(b.created, desc.Label)
	if b.FailCreate != nil {
		b.metrics.RecordFailure()
		return metadata.InvalidHandle, b.FailCreate
	}
	b.next++
	h := metadata.Handle(b.next)
	b.live[h] = desc.Label
	b.metrics.RecordAllocation()
	return h, nil
}

func (b *Backend) DestroyResource(handle metadata.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("DestroyResource"); err != nil {
		return err
	}
	b.destroyed = append(b.destroyed, handle)
	if _, ok := b.live[handle]; !ok {
		return core.NewFatalUsageError("DestroyResource", "handle %s is not live", handle)
	}
	delete(b.live, handle)
	b.metrics.RecordRelease()
	return nil
}

func (b *Backend) Clear(target metadata.Target, colors []gputypes.Color, depth float32, stencil uint32, mask metadata.ClearMask) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check("Clear"); err != nil {
		return err
	}
	t, ok := target.(*Target)
	if !ok || t.backend != b {
		return core.NewFatalUsageError("Clear", "foreign target %T", target)
	}
	if err := metadata.CheckClear(target, colors, mask); err != nil {
		return err
	}
	b.clears = append(b.clears, ClearCall{
		Target:  t,
		Colors:  append([]gputypes.Color(nil), colors...),
		Depth:   depth,
		Stencil: stencil,
		Mask:    mask,
	})
	return nil
}

func (b *Backend) Stats() core.ResourceStats {
	return b.metrics.Snapshot()
}

func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdown = true
	return nil
}

// CreateCalls counts CreateShader calls that reached the backend, failed
// ones included.
func (b *Backend) CreateCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created)
}

// DestroyCalls counts DestroyResource calls for handle.
func (b *Backend) DestroyCalls(handle metadata.Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, h := range b.destroyed {
		if h == handle {
			n++
		}
	}
	return n
}

// DestroyedTotal counts every DestroyResource call.
func (b *Backend) DestroyedTotal() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.destroyed)
}

func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

func (b *Backend) Clears() []ClearCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ClearCall(nil), b.clears...)
}

// Target is a drawable target of the recording backend. It has no pixels.
type Target struct {
	backend     *Backend
	width       int
	height      int
	attachments int
}

func (b *Backend) NewTarget(width, height, colorAttachments int) *Target {
	return &Target{backend: b, width: width, height: height, attachments: colorAttachments}
}

func (t *Target) Width() int                { return t.width }
func (t *Target) Height() int               { return t.height }
func (t *Target) ColorAttachmentCount() int { return t.attachments }
func (t *Target) Backend() metadata.Backend { return t.backend }

// SPIRVModule returns the smallest well-formed SPIR-V module: a header
// without instructions.
func SPIRVModule() []byte {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code[0:], 0x07230203)
	binary.LittleEndian.PutUint32(code[4:], 0x00010300)
	binary.LittleEndian.PutUint32(code[12:], 1)
	return code
}
