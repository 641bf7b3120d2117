package systems

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-rhi/engine/assets"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/platform"
	"github.com/spaghettifunk/anima-rhi/engine/renderer"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/renderertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatManifest = `
[vertex]
bytecode = "flat"
entry_point = "main"
uniforms = [{ name = "mvp", type = "mat4", array_elements = 1 }]

[fragment]
bytecode = "flat"
entry_point = "main"
uniforms = [{ name = "color", type = "vec4", array_elements = 1 }]
`

// Same stages, but the fragment redeclares mvp with another type.
const conflictingManifest = `
[vertex]
bytecode = "flat"
entry_point = "main"
uniforms = [{ name = "mvp", type = "mat4", array_elements = 1 }]

[fragment]
bytecode = "flat"
entry_point = "main"
uniforms = [{ name = "mvp", type = "vec4", array_elements = 1 }]
`

type fixture struct {
	dir      string
	events   *core.EventSystem
	backend  *renderertest.Backend
	renderer *renderer.Renderer
	assets   *assets.AssetManager
}

func newFixture(t *testing.T, watch bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flat.spv"), renderertest.SPIRVModule(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flat.shadercfg"), []byte(flatManifest), 0o644))

	thread := platform.NewDispatcher(16)
	thread.Start()
	t.Cleanup(thread.Shutdown)

	events := core.NewEventSystem()
	backend := renderertest.NewBackend(thread)
	am := assets.NewAssetManager(metadata.DriverPrivate, events)
	require.NoError(t, am.Initialize(dir, watch))
	t.Cleanup(func() { _ = am.Shutdown() })

	return &fixture{
		dir:      dir,
		events:   events,
		backend:  backend,
		renderer: renderer.New(backend, thread, events),
		assets:   am,
	}
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

func info(t *testing.T, name string) metadata.ShaderCreateInfo {
	t.Helper()
	stage := metadata.ProgramInfo{
		Bytecode:   renderertest.SPIRVModule(),
		EntryPoint: "main",
		Uniforms:   []metadata.UniformInfo{{Name: "mvp", Type: metadata.UniformTypeMat4, ArrayElements: 1}},
	}
	return metadata.ShaderCreateInfo{Name: name, Vertex: stage, Fragment: stage}
}

func TestNewShaderSystemConfig(t *testing.T) {
	f := newFixture(t, false)

	_, err := NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: 0}, f.renderer, nil, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: 4, HotReload: true}, f.renderer, nil, nil)
	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "shaders.watch", cfg.Field)
}

func TestShaderSystemCreateAndLimits(t *testing.T) {
	f := newFixture(t, false)
	ss, err := NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: 2}, f.renderer, nil, nil)
	require.NoError(t, err)

	a, err := ss.Create(info(t, "a"))
	require.NoError(t, err)
	got, ok := ss.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, err = ss.Create(info(t, "a"))
	assert.ErrorIs(t, err, core.ErrConfiguration, "duplicate name")

	_, err = ss.Create(info(t, "b"))
	require.NoError(t, err)
	_, err = ss.Create(info(t, "c"))
	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "shaders.max_count", cfg.Field)

	assert.Equal(t, []string{"a", "b"}, ss.Names())
	assert.Equal(t, 2, f.backend.Live())

	assert.True(t, ss.Destroy("a"))
	assert.False(t, ss.Destroy("a"))
	assert.True(t, a.IsDisposed())
	assert.Equal(t, 1, ss.Count())
}

func TestShaderSystemLoadAll(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, "copy.shadercfg", flatManifest)
	f.write(t, "broken.shadercfg", "[vertex]\nbytecode = \"missing\"\n[fragment]\nbytecode = \"flat\"\n")
	require.NoError(t, f.assets.Watch(f.dir))

	jobs, err := NewJobSystem(2, 4)
	require.NoError(t, err)
	defer jobs.Shutdown()

	ss, err := NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: 8}, f.renderer, f.assets, jobs)
	require.NoError(t, err)

	err = ss.LoadAll([]string{"flat", "broken", "copy"})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, []string{"copy", "flat"}, ss.Names())

	flat, _ := ss.Get("flat")
	assert.Equal(t, uint32(80), flat.MergedUniformSizeInBytes())
}

func TestShaderSystemReloadSwapsAndDisposesOld(t *testing.T) {
	f := newFixture(t, false)
	ss, err := NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: 8}, f.renderer, f.assets, nil)
	require.NoError(t, err)

	var reloaded atomic.Int32
	f.events.Register(core.EVENT_CODE_SHADER_RELOADED, &reloaded, func(core.SystemEventCode, interface{}, interface{}, core.EventContext) bool {
		reloaded.Add(1)
		return false
	})

	old, err := ss.Load("flat")
	require.NoError(t, err)
	oldHandle := old.Handle()

	fresh, err := ss.Reload("flat")
	require.NoError(t, err)
	assert.NotEqual(t, oldHandle, fresh.Handle())
	assert.True(t, old.IsDisposed())
	assert.Equal(t, 1, f.backend.DestroyCalls(oldHandle))
	assert.Equal(t, int32(1), reloaded.Load())

	got, _ := ss.Get("flat")
	assert.Same(t, fresh, got)
	assert.Equal(t, 1, f.backend.Live())
}

func TestShaderSystemReloadFailureKeepsPrevious(t *testing.T) {
	f := newFixture(t, false)
	ss, err := NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: 8}, f.renderer, f.assets, nil)
	require.NoError(t, err)

	old, err := ss.Load("flat")
	require.NoError(t, err)
	creates := f.backend.CreateCalls()

	f.write(t, "flat.shadercfg", conflictingManifest)
	_, err = ss.Reload("flat")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUniformConflict)
	assert.Equal(t, creates, f.backend.CreateCalls(), "a conflicting shader never reaches the backend")

	got, ok := ss.Get("flat")
	require.True(t, ok)
	assert.Same(t, old, got)
	assert.False(t, old.IsDisposed())

	_, err = ss.Replace(info(t, "unknown"))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestShaderSystemHotReload(t *testing.T) {
	f := newFixture(t, true)
	ss, err := NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: 8, HotReload: true}, f.renderer, f.assets, nil)
	require.NoError(t, err)
	defer ss.Shutdown()

	old, err := ss.Load("flat")
	require.NoError(t, err)

	f.write(t, "flat.spv", string(renderertest.SPIRVModule()))
	require.Eventually(t, func() bool {
		got, ok := ss.Get("flat")
		return ok && got != old
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, old.IsDisposed, time.Second, 10*time.Millisecond)
}

func TestShaderSystemShutdownDisposesAll(t *testing.T) {
	f := newFixture(t, false)
	ss, err := NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: 8}, f.renderer, f.assets, nil)
	require.NoError(t, err)

	_, err = ss.Load("flat")
	require.NoError(t, err)
	_, err = ss.Create(info(t, "inline"))
	require.NoError(t, err)
	require.Equal(t, 2, f.backend.Live())

	require.NoError(t, ss.Shutdown())
	assert.Zero(t, f.backend.Live())
	assert.Zero(t, ss.Count())
}
