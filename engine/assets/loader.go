package assets

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rhi/engine/shaders"
)

// ShaderLoader turns a .shadercfg manifest into a ShaderCreateInfo for one
// driver. A stage names either a WGSL source, compiled and reflected on
// load, or a bytecode stem whose extension follows the driver. Paths are
// relative to the manifest.
//
//	name = "sprite"
//
//	[vertex]
//	bytecode = "sprite.vert"
//	entry_point = "main"
//	sampler_count = 0
//	uniforms = [{ name = "mvp", type = "mat4", array_elements = 1 }]
//
//	[fragment]
//	source = "sprite.wgsl"
type ShaderLoader struct {
	Driver metadata.Driver
}

// Load returns the create info and the absolute paths of every file it was
// built from, the manifest included.
func (sl *ShaderLoader) Load(path string) (metadata.ShaderCreateInfo, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return metadata.ShaderCreateInfo{}, nil, err
	}
	info, err := DecodeManifest(data)
	if err != nil {
		return metadata.ShaderCreateInfo{}, nil, err
	}
	if info.Name == "" {
		info.Name = strings.TrimSuffix(filepath.Base(path), ManifestExtension)
	}

	deps := []string{path}
	dir := filepath.Dir(path)
	compiled := make(map[string]*shaders.Module)

	stages := []struct {
		stage metadata.ShaderStage
		info  *metadata.ProgramInfo
	}{
		{metadata.ShaderStageVertex, &info.Vertex},
		{metadata.ShaderStageFragment, &info.Fragment},
	}
	for _, s := range stages {
		dep, err := sl.resolve(dir, s.stage, s.info, compiled)
		if err != nil {
			return metadata.ShaderCreateInfo{}, nil, err
		}
		if dep != "" {
			deps = append(deps, dep)
		}
	}
	return info, deps, nil
}

// DecodeManifest strictly decodes a manifest. Unknown keys are errors.
func DecodeManifest(data []byte) (metadata.ShaderCreateInfo, error) {
	var info metadata.ShaderCreateInfo
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&info); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return info, core.NewConfigurationError("manifest", "unknown keys:\n%s", strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return info, core.NewConfigurationError("manifest", "line %d, column %d: %s", row, col, decodeErr.Error())
		}
		return info, core.NewConfigurationError("manifest", "%s", err)
	}
	return info, nil
}

// resolve fills in the stage bytecode and returns the file it came from.
func (sl *ShaderLoader) resolve(dir string, stage metadata.ShaderStage, p *metadata.ProgramInfo, compiled map[string]*shaders.Module) (string, error) {
	switch {
	case p.Source != "" && p.BytecodeFile != "":
		return "", core.NewConfigurationError(stage.String()+".source", "a stage names either a source or a bytecode file, not both")

	case p.Source != "":
		if len(p.Uniforms) > 0 || p.SamplerCount != 0 || p.EntryPoint != "" {
			return "", core.NewConfigurationError(stage.String()+".source", "uniforms, samplers and entry point are reflected from the source")
		}
		file := filepath.Join(dir, p.Source)
		m, ok := compiled[file]
		if !ok {
			var err error
			if m, err = shaders.ParseFile(file); err != nil {
				return "", err
			}
			compiled[file] = m
		}
		reflection, err := m.Program(sl.Driver, stage)
		if err != nil {
			return "", err
		}
		source := p.Source
		*p = metadata.ProgramInfoFrom(reflection)
		p.Source = source
		return file, nil

	case p.BytecodeFile != "":
		ext := metadata.ShaderBytecodeExtension(sl.Driver)
		if ext == "" {
			// The null driver runs nothing and needs no bytecode.
			return "", nil
		}
		file := filepath.Join(dir, p.BytecodeFile+"."+ext)
		code, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		p.Bytecode = code
		return file, nil
	}
	return "", core.NewConfigurationError(stage.String()+".source", "a stage needs a source or a bytecode file")
}
