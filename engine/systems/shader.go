package systems

import (
	"errors"
	"slices"
	"sync"

	"github.com/spaghettifunk/anima-rhi/engine/assets"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

/** @brief Configuration for the shader system. */
type ShaderSystemConfig struct {
	/** @brief The maximum number of shaders held in the system. */
	MaxShaderCount int
	/** @brief Rebuild a shader when one of its files changes. Needs an asset manager. */
	HotReload bool
}

// ShaderSystem owns the shaders of an application by name. Replacing a
// shader always creates the new one first, so a failed rebuild leaves the
// previous shader in place.
type ShaderSystem struct {
	Config *ShaderSystemConfig

	mu      sync.RWMutex
	shaders map[string]*renderer.ShaderResource
	// reload serializes rebuilds of the same system.
	reload sync.Mutex

	renderer *renderer.Renderer
	assets   *assets.AssetManager
	jobs     *JobSystem
	events   *core.EventSystem
}

// NewShaderSystem builds the system. am and jobs may be nil when shaders
// are only created from in-memory descriptions.
func NewShaderSystem(config *ShaderSystemConfig, r *renderer.Renderer, am *assets.AssetManager, jobs *JobSystem) (*ShaderSystem, error) {
	if config.MaxShaderCount <= 0 {
		return nil, core.NewConfigurationError("shaders.max_count", "must be greater than 0, got %d", config.MaxShaderCount)
	}
	if config.HotReload && am == nil {
		return nil, core.NewConfigurationError("shaders.watch", "hot reload needs an asset manager")
	}

	shaderSystem := &ShaderSystem{
		Config:   config,
		shaders:  make(map[string]*renderer.ShaderResource),
		renderer: r,
		assets:   am,
		jobs:     jobs,
		events:   r.Events(),
	}
	if config.HotReload && shaderSystem.events != nil {
		shaderSystem.events.Register(core.EVENT_CODE_SHADER_SOURCE_CHANGED, shaderSystem, shaderSystem.onSourceChanged)
	}
	return shaderSystem, nil
}

// Create builds a shader and registers it under its name.
func (shaderSystem *ShaderSystem) Create(info metadata.ShaderCreateInfo) (*renderer.ShaderResource, error) {
	shaderSystem.mu.RLock()
	_, exists := shaderSystem.shaders[info.Name]
	full := len(shaderSystem.shaders) >= shaderSystem.Config.MaxShaderCount
	shaderSystem.mu.RUnlock()
	if info.Name != "" && exists {
		return nil, core.NewConfigurationError("name", "shader '%s' already exists", info.Name)
	}
	if full {
		return nil, core.NewConfigurationError("shaders.max_count", "limit of %d shaders reached", shaderSystem.Config.MaxShaderCount)
	}

	shader, err := renderer.CreateShaderFromInfo(shaderSystem.renderer, info)
	if err != nil {
		core.LogError("failed to create shader '%s': %s", info.Name, err)
		return nil, err
	}

	shaderSystem.mu.Lock()
	defer shaderSystem.mu.Unlock()
	if _, raced := shaderSystem.shaders[shader.Name()]; raced || len(shaderSystem.shaders) >= shaderSystem.Config.MaxShaderCount {
		shader.Dispose()
		return nil, core.NewConfigurationError("name", "shader '%s' was registered concurrently or the limit was reached", shader.Name())
	}
	shaderSystem.shaders[shader.Name()] = shader
	return shader, nil
}

// Load creates the shader described by the manifest named name.
func (shaderSystem *ShaderSystem) Load(name string) (*renderer.ShaderResource, error) {
	if shaderSystem.assets == nil {
		return nil, core.NewFatalUsageError("Load", "shader system has no asset manager")
	}
	info, err := shaderSystem.assets.LoadShader(name)
	if err != nil {
		core.LogError("failed to load shader '%s': %s", name, err)
		return nil, err
	}
	return shaderSystem.Create(info)
}

// LoadAll loads every named manifest. Manifests are read and compiled on
// the job system, then created in the order given. The shaders that could
// be created are kept, the returned error joins every failure.
func (shaderSystem *ShaderSystem) LoadAll(names []string) error {
	if shaderSystem.assets == nil {
		return core.NewFatalUsageError("LoadAll", "shader system has no asset manager")
	}

	infos := make([]metadata.ShaderCreateInfo, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		load := func() error {
			var err error
			infos[i], err = shaderSystem.assets.LoadShader(name)
			return err
		}
		if shaderSystem.jobs == nil {
			errs[i] = load()
			continue
		}
		wg.Add(1)
		shaderSystem.jobs.Submit(JobTask{
			Run:        load,
			OnComplete: wg.Done,
			OnFailure: func(err error) {
				errs[i] = err
				wg.Done()
			},
		})
	}
	wg.Wait()

	for i, name := range names {
		if errs[i] != nil {
			core.LogError("failed to load shader '%s': %s", name, errs[i])
			continue
		}
		_, errs[i] = shaderSystem.Create(infos[i])
	}
	return errors.Join(errs...)
}

func (shaderSystem *ShaderSystem) Get(name string) (*renderer.ShaderResource, bool) {
	shaderSystem.mu.RLock()
	defer shaderSystem.mu.RUnlock()
	shader, ok := shaderSystem.shaders[name]
	return shader, ok
}

// Names returns the registered shader names, sorted.
func (shaderSystem *ShaderSystem) Names() []string {
	shaderSystem.mu.RLock()
	defer shaderSystem.mu.RUnlock()
	names := make([]string, 0, len(shaderSystem.shaders))
	for name := range shaderSystem.shaders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (shaderSystem *ShaderSystem) Count() int {
	shaderSystem.mu.RLock()
	defer shaderSystem.mu.RUnlock()
	return len(shaderSystem.shaders)
}

// Replace swaps the shader registered under info.Name for a new one built
// from info and disposes the old one. Nothing changes when the new shader
// cannot be created.
func (shaderSystem *ShaderSystem) Replace(info metadata.ShaderCreateInfo) (*renderer.ShaderResource, error) {
	shaderSystem.reload.Lock()
	defer shaderSystem.reload.Unlock()

	if _, ok := shaderSystem.Get(info.Name); !ok {
		return nil, core.NewConfigurationError("name", "no shader named '%s'", info.Name)
	}
	shader, err := renderer.CreateShaderFromInfo(shaderSystem.renderer, info)
	if err != nil {
		core.LogError("failed to rebuild shader '%s', keeping the previous one: %s", info.Name, err)
		return nil, err
	}

	shaderSystem.mu.Lock()
	old := shaderSystem.shaders[info.Name]
	shaderSystem.shaders[info.Name] = shader
	shaderSystem.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
	core.LogInfo("shader '%s' reloaded", info.Name)
	if shaderSystem.events != nil {
		shaderSystem.events.Fire(core.EVENT_CODE_SHADER_RELOADED, shaderSystem, core.EventContext{Name: info.Name})
	}
	return shader, nil
}

// Reload rebuilds a shader from its manifest.
func (shaderSystem *ShaderSystem) Reload(name string) (*renderer.ShaderResource, error) {
	if shaderSystem.assets == nil {
		return nil, core.NewFatalUsageError("Reload", "shader system has no asset manager")
	}
	info, err := shaderSystem.assets.LoadShader(name)
	if err != nil {
		core.LogError("failed to reload shader '%s', keeping the previous one: %s", name, err)
		return nil, err
	}
	return shaderSystem.Replace(info)
}

// Destroy disposes the named shader and forgets it.
func (shaderSystem *ShaderSystem) Destroy(name string) bool {
	shaderSystem.mu.Lock()
	shader, ok := shaderSystem.shaders[name]
	delete(shaderSystem.shaders, name)
	shaderSystem.mu.Unlock()

	if ok {
		shader.Dispose()
	}
	return ok
}

func (shaderSystem *ShaderSystem) onSourceChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if _, ok := shaderSystem.Get(data.Name); !ok {
		core.LogDebug("ignoring change of %s, shader '%s' is not loaded", data.Path, data.Name)
		return false
	}
	// Errors are logged by Reload and the previous shader stays in use.
	_, _ = shaderSystem.Reload(data.Name)
	return false
}

/**
 * @brief Shuts down the shader system, disposing every shader it holds.
 */
func (shaderSystem *ShaderSystem) Shutdown() error {
	if shaderSystem.events != nil {
		shaderSystem.events.Unregister(core.EVENT_CODE_SHADER_SOURCE_CHANGED, shaderSystem)
	}

	shaderSystem.mu.Lock()
	shaders := shaderSystem.shaders
	shaderSystem.shaders = make(map[string]*renderer.ShaderResource)
	shaderSystem.mu.Unlock()

	for _, shader := range shaders {
		shader.Dispose()
	}
	return nil
}
