package renderer

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/platform"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/renderertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) (*Renderer, *renderertest.Backend) {
	t.Helper()
	thread := platform.NewDispatcher(16)
	thread.Start()
	t.Cleanup(thread.Shutdown)

	backend := renderertest.NewBackend(thread)
	return New(backend, thread, nil), backend
}

func stage(t *testing.T, entry string, uniforms ...metadata.UniformDescriptor) *metadata.ProgramReflection {
	t.Helper()
	p, err := metadata.NewProgramReflection(renderertest.SPIRVModule(), 0, uniforms, entry)
	require.NoError(t, err)
	return p
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	t.Cleanup(func() { core.SetLogOutput(os.Stderr) })
	return &buf
}

func TestCreateShaderDisjointUniforms(t *testing.T) {
	r, backend := newTestRenderer(t)

	s, err := CreateShader(r, "disjoint",
		stage(t, "vs_main", metadata.MustUniform("mvp", metadata.UniformTypeMat4, 1)),
		stage(t, "fs_main", metadata.MustUniform("tint", metadata.UniformTypeVec4, 1)),
	)
	require.NoError(t, err)
	defer s.Dispose()

	assert.Equal(t, 1, backend.CreateCalls())
	assert.True(t, s.Handle().Valid())
	assert.Equal(t, uint32(64), s.VertexUniformSizeInBytes())
	assert.Equal(t, uint32(16), s.FragmentUniformSizeInBytes())
	assert.Equal(t, uint32(80), s.MergedUniformSizeInBytes())

	var names []string
	for _, u := range s.Uniforms() {
		names = append(names, u.Name())
	}
	assert.Equal(t, []string{"mvp", "tint"}, names)
}

func TestCreateShaderConflictAllocatesNothing(t *testing.T) {
	tests := []struct {
		name     string
		vertex   metadata.UniformDescriptor
		fragment metadata.UniformDescriptor
	}{
		{"type", metadata.MustUniform("color", metadata.UniformTypeVec4, 1), metadata.MustUniform("color", metadata.UniformTypeFloat, 1)},
		{"elements", metadata.MustUniform("bones", metadata.UniformTypeMat4, 4), metadata.MustUniform("bones", metadata.UniformTypeMat4, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, backend := newTestRenderer(t)

			_, err := CreateShader(r, "conflict", stage(t, "vs", tt.vertex), stage(t, "fs", tt.fragment))
			require.ErrorIs(t, err, core.ErrUniformConflict)

			var conflict *core.UniformConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, tt.vertex.Name(), conflict.Name)
			assert.Zero(t, backend.CreateCalls())
		})
	}
}

func TestCreateShaderColorConflictNamesUniform(t *testing.T) {
	r, _ := newTestRenderer(t)
	_, err := CreateShader(r, "",
		stage(t, "vs", metadata.MustUniform("color", metadata.UniformTypeVec4, 1)),
		stage(t, "fs", metadata.MustUniform("color", metadata.UniformTypeFloat, 1)),
	)
	var conflict *core.UniformConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "color", conflict.Name)
}

func TestSharedUniformCountedOnce(t *testing.T) {
	r, _ := newTestRenderer(t)
	a := metadata.MustUniform("a", metadata.UniformTypeFloat, 1)

	s, err := CreateShader(r, "shared", stage(t, "vs", a), stage(t, "fs", a))
	require.NoError(t, err)
	defer s.Dispose()

	assert.Equal(t, uint32(4), s.MergedUniformSizeInBytes())
	assert.Len(t, s.Uniforms(), 1)
}

func TestStageSizesWithSharedMatrix(t *testing.T) {
	r, _ := newTestRenderer(t)
	mvp := metadata.MustUniform("mvp", metadata.UniformTypeMat4, 1)

	s, err := CreateShader(r, "sprite",
		stage(t, "vs", mvp),
		stage(t, "fs", mvp, metadata.MustUniform("tint", metadata.UniformTypeVec4, 1)),
	)
	require.NoError(t, err)
	defer s.Dispose()

	assert.Equal(t, uint32(64), s.VertexUniformSizeInBytes())
	assert.Equal(t, uint32(80), s.FragmentUniformSizeInBytes())
	assert.Equal(t, uint32(80), s.MergedUniformSizeInBytes())
	assert.Equal(t, uint64(256), s.UniformBufferStride(256))
	assert.Equal(t, uint64(80), s.UniformBufferStride(16))
}

func TestCreateShaderGeneratesName(t *testing.T) {
	r, _ := newTestRenderer(t)
	s, err := CreateShader(r, "", stage(t, "vs"), stage(t, "fs"))
	require.NoError(t, err)
	defer s.Dispose()

	assert.True(t, strings.HasPrefix(s.Name(), "shader-"), s.Name())
	s.SetName("renamed")
	assert.Equal(t, "renamed", s.Name())
}

func TestCreateShaderRequiresBothStages(t *testing.T) {
	r, backend := newTestRenderer(t)
	_, err := CreateShader(r, "half", stage(t, "vs"), nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Zero(t, backend.CreateCalls())
}

func TestCreateShaderReturnsBackendFailure(t *testing.T) {
	r, backend := newTestRenderer(t)
	backend.FailCreate = &core.BackendAllocationError{Backend: "recording", Diagnostic: "out of device memory"}

	_, err := CreateShader(r, "big", stage(t, "vs"), stage(t, "fs"))
	require.ErrorIs(t, err, core.ErrBackendAllocation)
	assert.Contains(t, err.Error(), "out of device memory")
	assert.Zero(t, backend.Live())
}

func TestCreateShaderFromInfo(t *testing.T) {
	r, backend := newTestRenderer(t)
	info := metadata.ShaderCreateInfo{
		Name: "from-info",
		Vertex: metadata.ProgramInfo{
			Bytecode:   renderertest.SPIRVModule(),
			EntryPoint: "vs_main",
			Uniforms:   []metadata.UniformInfo{{Name: "mvp", Type: metadata.UniformTypeMat4, ArrayElements: 1}},
		},
		Fragment: metadata.ProgramInfo{
			Bytecode:     renderertest.SPIRVModule(),
			EntryPoint:   "fs_main",
			SamplerCount: 2,
			Uniforms:     []metadata.UniformInfo{{Name: "mvp", Type: metadata.UniformTypeVec4, ArrayElements: 1}},
		},
	}
	_, err := CreateShaderFromInfo(r, info)
	assert.ErrorIs(t, err, core.ErrUniformConflict)

	info.Fragment.Uniforms[0].ArrayElements = 0
	_, err = CreateShaderFromInfo(r, info)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Zero(t, backend.CreateCalls())

	info.Fragment.Uniforms = nil
	s, err := CreateShaderFromInfo(r, info)
	require.NoError(t, err)
	defer s.Dispose()
	assert.Equal(t, 2, s.Fragment().SamplerCount())
	assert.Equal(t, "vs_main", s.Vertex().EntryPoint())
}

func TestDisposeTwiceReleasesOnce(t *testing.T) {
	r, backend := newTestRenderer(t)
	s, err := CreateShader(r, "twice", stage(t, "vs"), stage(t, "fs"))
	require.NoError(t, err)
	handle := s.Handle()

	s.Dispose()
	s.Dispose()

	assert.True(t, s.IsDisposed())
	assert.Equal(t, metadata.InvalidHandle, s.Handle())
	assert.Equal(t, 1, backend.DestroyCalls(handle))
}

func TestCleanupAfterDisposeIsNoop(t *testing.T) {
	r, backend := newTestRenderer(t)
	s, err := CreateShader(r, "cleanup", stage(t, "vs"), stage(t, "fs"))
	require.NoError(t, err)
	handle := s.Handle()

	s.Dispose()
	releaseUnreachable(s.owner)
	require.NoError(t, r.Dispatcher().Call(func() error { return nil }))

	assert.Equal(t, 1, backend.DestroyCalls(handle))
}

func TestUnreachableShaderIsReleasedByCleanup(t *testing.T) {
	r, backend := newTestRenderer(t)
	captureLog(t)

	func() {
		_, err := CreateShader(r, "leaked", stage(t, "vs"), stage(t, "fs"))
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return backend.DestroyedTotal() == 1
	}, 5*time.Second, 10*time.Millisecond)

	runtime.GC()
	require.NoError(t, r.Dispatcher().Call(func() error { return nil }))
	assert.Equal(t, 1, backend.DestroyedTotal())
	assert.Zero(t, backend.Live())
}

func TestCleanupDoesNotBlockOnBusyCommandThread(t *testing.T) {
	thread := platform.NewDispatcher(1)
	thread.Start()
	t.Cleanup(thread.Shutdown)
	backend := renderertest.NewBackend(thread)
	r := New(backend, thread, nil)
	captureLog(t)

	shaders := make([]*ShaderResource, 8)
	for i := range shaders {
		s, err := CreateShader(r, "", stage(t, "vs"), stage(t, "fs"))
		require.NoError(t, err)
		shaders[i] = s
	}

	release := make(chan struct{})
	require.NoError(t, thread.RunOnDesignatedThread(func() { <-release }))

	released := make(chan struct{})
	go func() {
		defer close(released)
		for _, s := range shaders {
			releaseUnreachable(s.owner)
		}
	}()
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup blocked on the command thread")
	}

	close(release)
	require.NoError(t, thread.Call(func() error { return nil }))
	for _, s := range shaders {
		assert.Equal(t, 1, backend.DestroyCalls(s.Handle()))
		s.Dispose()
		assert.Equal(t, 1, backend.DestroyCalls(s.Handle()))
	}
	assert.Zero(t, backend.Live())
}

func TestDisposeAfterBackendShutdownLogs(t *testing.T) {
	r, backend := newTestRenderer(t)
	buf := captureLog(t)

	s, err := CreateShader(r, "late", stage(t, "vs"), stage(t, "fs"))
	require.NoError(t, err)
	require.NoError(t, r.Shutdown())

	assert.NotPanics(t, s.Dispose)
	assert.Contains(t, buf.String(), "failed to dispose shader 'late'")
	assert.Zero(t, backend.DestroyedTotal())
}

func TestDisposeAfterDispatcherShutdownLogs(t *testing.T) {
	r, _ := newTestRenderer(t)
	buf := captureLog(t)

	s, err := CreateShader(r, "orphan", stage(t, "vs"), stage(t, "fs"))
	require.NoError(t, err)
	r.Dispatcher().Shutdown()

	s.Dispose()
	assert.Contains(t, buf.String(), "fatal usage error")
}

func TestShaderEventsFire(t *testing.T) {
	thread := platform.NewDispatcher(4)
	thread.Start()
	t.Cleanup(thread.Shutdown)
	events := core.NewEventSystem()
	r := New(renderertest.NewBackend(thread), thread, events)

	var got []core.SystemEventCode
	record := func(code core.SystemEventCode, _ interface{}, _ interface{}, data core.EventContext) bool {
		got = append(got, code)
		assert.Equal(t, "evented", data.Name)
		return false
	}
	events.Register(core.EVENT_CODE_SHADER_CREATED, &got, record)
	events.Register(core.EVENT_CODE_SHADER_DISPOSED, &got, record)

	s, err := CreateShader(r, "evented", stage(t, "vs"), stage(t, "fs"))
	require.NoError(t, err)
	s.Dispose()

	assert.Equal(t, []core.SystemEventCode{core.EVENT_CODE_SHADER_CREATED, core.EVENT_CODE_SHADER_DISPOSED}, got)
}

func TestBackendRejectsCallsOffCommandThread(t *testing.T) {
	_, backend := newTestRenderer(t)
	_, err := backend.CreateShader(&metadata.ShaderDescriptor{Label: "direct"})
	assert.True(t, errors.Is(err, core.ErrFatalUsage))
}
