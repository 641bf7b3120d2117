package renderer

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/math"
	"github.com/spaghettifunk/anima-rhi/engine/platform"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

// handleOwner holds what is needed to release a native handle. It is the
// argument of the cleanup attached to a ShaderResource and must never point
// back to the resource.
type handleOwner struct {
	handle   metadata.Handle
	backend  Backend
	thread   *platform.Dispatcher
	label    string
	released atomic.Bool
}

// release destroys the handle at most once. Must run on the command thread.
func (o *handleOwner) release() error {
	if !o.released.CompareAndSwap(false, true) {
		return nil
	}
	return o.backend.DestroyResource(o.handle)
}

// releaseUnreachable runs when a ShaderResource was collected without being
// disposed. It only enqueues the release, the collector's goroutine is not
// the command thread.
func releaseUnreachable(o *handleOwner) {
	if o.released.Load() {
		return
	}
	core.LogWarn("shader '%s' was not disposed, releasing %s from cleanup", o.label, o.handle)
	err := o.thread.RunOnDesignatedThread(func() {
		if err := o.release(); err != nil {
			core.LogError("failed to release shader '%s' (%s): %s", o.label, o.handle, err)
		}
	})
	if err != nil {
		core.LogError("leaked shader '%s' (%s): %s", o.label, o.handle, err)
	}
}

// ShaderResource is a shader program made of a vertex and a fragment stage
// whose uniform layouts agree. It owns one backend handle, released by
// Dispose or, if the resource is dropped without Dispose, by a cleanup once
// it is collected.
type ShaderResource struct {
	mu   sync.Mutex
	name string

	vertex   *metadata.ProgramReflection
	fragment *metadata.ProgramReflection
	merged   []metadata.UniformDescriptor

	owner    *handleOwner
	cleanup  runtime.Cleanup
	disposed atomic.Bool
	events   *core.EventSystem
}

// CreateShader validates both stages and allocates the native program on the
// renderer's command thread. A uniform declared by both stages must have the
// same type and element count, otherwise a UniformConflictError is returned
// and the backend is never called. An empty name is replaced by a generated
// one.
func CreateShader(r *Renderer, name string, vertex, fragment *metadata.ProgramReflection) (*ShaderResource, error) {
	if r == nil {
		return nil, core.NewFatalUsageError("CreateShader", "nil renderer")
	}
	if vertex == nil || fragment == nil {
		return nil, core.NewConfigurationError("stages", "both a vertex and a fragment stage are required")
	}
	merged, err := mergeUniforms(vertex, fragment)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "shader-" + uuid.NewString()
	}

	desc := &metadata.ShaderDescriptor{
		Label:    name,
		Vertex:   vertex,
		Fragment: fragment,
	}
	var handle metadata.Handle
	err = r.thread.Call(func() error {
		var err error
		handle, err = r.backend.CreateShader(desc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shader '%s': %w", name, err)
	}

	owner := &handleOwner{
		handle:  handle,
		backend: r.backend,
		thread:  r.thread,
		label:   name,
	}
	s := &ShaderResource{
		name:     name,
		vertex:   vertex,
		fragment: fragment,
		merged:   merged,
		owner:    owner,
		events:   r.events,
	}
	s.cleanup = runtime.AddCleanup(s, releaseUnreachable, owner)

	core.LogDebug("shader '%s' created (%s)", name, handle)
	if s.events != nil {
		s.events.Fire(core.EVENT_CODE_SHADER_CREATED, s, core.EventContext{Name: name})
	}
	return s, nil
}

// CreateShaderFromInfo builds both reflections from info, then behaves like
// CreateShader.
func CreateShaderFromInfo(r *Renderer, info metadata.ShaderCreateInfo) (*ShaderResource, error) {
	vertex, fragment, err := info.Reflections()
	if err != nil {
		return nil, err
	}
	return CreateShader(r, info.Name, vertex, fragment)
}

// mergeUniforms checks every fragment uniform against the vertex uniform of
// the same name and returns the union, vertex uniforms first.
func mergeUniforms(vertex, fragment *metadata.ProgramReflection) ([]metadata.UniformDescriptor, error) {
	vertexUniforms := vertex.Uniforms()
	byName := make(map[string]metadata.UniformDescriptor, len(vertexUniforms))
	for _, u := range vertexUniforms {
		byName[u.Name()] = u
	}

	merged := vertexUniforms
	for _, u := range fragment.Uniforms() {
		v, shared := byName[u.Name()]
		if !shared {
			merged = append(merged, u)
			continue
		}
		if !v.SameLayout(u) {
			return nil, &core.UniformConflictError{
				Name:   u.Name(),
				Detail: fmt.Sprintf("vertex %s[%d], fragment %s[%d]", v.Type(), v.ArrayElements(), u.Type(), u.ArrayElements()),
			}
		}
	}
	return merged, nil
}

func (s *ShaderResource) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetName renames the resource. The name is only used in diagnostics.
func (s *ShaderResource) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.owner.label = name
}

// Handle returns the native handle, or InvalidHandle once disposed.
func (s *ShaderResource) Handle() metadata.Handle {
	if s.disposed.Load() {
		return metadata.InvalidHandle
	}
	return s.owner.handle
}

func (s *ShaderResource) Backend() Backend {
	return s.owner.backend
}

func (s *ShaderResource) IsDisposed() bool {
	return s.disposed.Load()
}

func (s *ShaderResource) Vertex() *metadata.ProgramReflection {
	return s.vertex
}

func (s *ShaderResource) Fragment() *metadata.ProgramReflection {
	return s.fragment
}

func (s *ShaderResource) VertexUniformSizeInBytes() uint32 {
	return s.vertex.UniformSizeInBytes()
}

func (s *ShaderResource) FragmentUniformSizeInBytes() uint32 {
	return s.fragment.UniformSizeInBytes()
}

// Uniforms is the union of both stages, shared uniforms listed once.
func (s *ShaderResource) Uniforms() []metadata.UniformDescriptor {
	out := make([]metadata.UniformDescriptor, len(s.merged))
	copy(out, s.merged)
	return out
}

func (s *ShaderResource) MergedUniformSizeInBytes() uint32 {
	var total uint32
	for _, u := range s.merged {
		total += u.SizeInBytes()
	}
	return total
}

// UniformBufferStride is the merged uniform size rounded up to the uniform
// buffer offset alignment of a device, e.g. 256 on many discrete GPUs.
func (s *ShaderResource) UniformBufferStride(alignment uint64) uint64 {
	return math.AlignUp(uint64(s.MergedUniformSizeInBytes()), alignment)
}

// Dispose releases the native handle on the command thread. Only the first
// call does anything. Release failures are logged, never returned.
func (s *ShaderResource) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	s.cleanup.Stop()

	name := s.Name()
	if err := s.owner.thread.Call(s.owner.release); err != nil {
		core.LogError("failed to dispose shader '%s' (%s): %s", name, s.owner.handle, err)
	} else {
		core.LogDebug("shader '%s' disposed", name)
	}
	if s.events != nil {
		s.events.Fire(core.EVENT_CODE_SHADER_DISPOSED, s, core.EventContext{Name: name})
	}
}

func (s *ShaderResource) String() string {
	return fmt.Sprintf("shader(%s, %s)", s.Name(), s.owner.handle)
}
