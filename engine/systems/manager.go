package systems

import (
	"runtime"

	"github.com/spaghettifunk/anima-rhi/engine/assets"
	"github.com/spaghettifunk/anima-rhi/engine/config"
	"github.com/spaghettifunk/anima-rhi/engine/renderer"
)

type SystemManager struct {
	JobSystem    *JobSystem
	ShaderSystem *ShaderSystem

	assetManager *assets.AssetManager
}

func NewSystemManager(cfg *config.Config, r *renderer.Renderer, am *assets.AssetManager) (*SystemManager, error) {
	js, err := NewJobSystem(runtime.NumCPU(), cfg.Shaders.MaxCount)
	if err != nil {
		return nil, err
	}
	ss, err := NewShaderSystem(&ShaderSystemConfig{
		MaxShaderCount: cfg.Shaders.MaxCount,
		HotReload:      cfg.Shaders.Watch && am != nil,
	}, r, am, js)
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		JobSystem:    js,
		ShaderSystem: ss,
		assetManager: am,
	}, nil
}

// Initialize loads every shader manifest the asset manager indexed.
func (sm *SystemManager) Initialize() error {
	if sm.assetManager == nil {
		return nil
	}
	return sm.ShaderSystem.LoadAll(sm.assetManager.ShaderNames())
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.ShaderSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
