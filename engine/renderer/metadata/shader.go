package metadata

import (
	"errors"

	"github.com/spaghettifunk/anima-rhi/engine/core"
)

/** @brief Shader stages a program is made of. */
type ShaderStage int

const (
	ShaderStageVertex   ShaderStage = 0x00000001
	ShaderStageFragment ShaderStage = 0x00000004
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageFragment:
		return "fragment"
	}
	return "unknown"
}

/** @brief Configuration for a uniform. */
type UniformInfo struct {
	/** @brief The name of the uniform. */
	Name string `toml:"name"`
	/** @brief The type of the uniform, e.g. "vec4". */
	Type UniformType `toml:"type"`
	/** @brief The number of array elements, 1 for a plain value. */
	ArrayElements uint32 `toml:"array_elements"`
}

/**
 * @brief Configuration for one shader stage. Typically decoded from a
 * .shadercfg file, where the stage names either a WGSL source or a
 * precompiled bytecode file stem.
 */
type ProgramInfo struct {
	/** @brief WGSL source file, relative to the manifest. */
	Source string `toml:"source,omitempty"`
	/** @brief Bytecode file stem, relative to the manifest. The extension depends on the driver. */
	BytecodeFile string `toml:"bytecode,omitempty"`
	/** @brief The compiled bytecode. Filled by the loader. */
	Bytecode []byte `toml:"-"`
	/** @brief The number of samplers the stage binds. */
	SamplerCount int `toml:"sampler_count"`
	/** @brief The uniforms declared by the stage, in declaration order. */
	Uniforms []UniformInfo `toml:"uniforms"`
	/** @brief The entry point function name. */
	EntryPoint string `toml:"entry_point"`
}

// Reflection validates the stage description and builds its reflection.
func (p *ProgramInfo) Reflection() (*ProgramReflection, error) {
	uniforms := make([]UniformDescriptor, 0, len(p.Uniforms))
	for _, u := range p.Uniforms {
		d, err := NewUniformDescriptor(u.Name, u.Type, u.ArrayElements)
		if err != nil {
			return nil, err
		}
		uniforms = append(uniforms, d)
	}
	return NewProgramReflection(p.Bytecode, p.SamplerCount, uniforms, p.EntryPoint)
}

// ProgramInfoFrom is the inverse of ProgramInfo.Reflection.
func ProgramInfoFrom(p *ProgramReflection) ProgramInfo {
	info := ProgramInfo{
		Bytecode:     p.Bytecode(),
		SamplerCount: p.SamplerCount(),
		EntryPoint:   p.EntryPoint(),
	}
	for _, u := range p.Uniforms() {
		info.Uniforms = append(info.Uniforms, UniformInfo{Name: u.Name(), Type: u.Type(), ArrayElements: u.ArrayElements()})
	}
	return info
}

/**
 * @brief Describes a shader program to be created: a name and both stages.
 */
type ShaderCreateInfo struct {
	/** @brief The name of the shader. A unique name is generated when empty. */
	Name     string      `toml:"name"`
	Vertex   ProgramInfo `toml:"vertex"`
	Fragment ProgramInfo `toml:"fragment"`
}

// Reflections validates both stages. Errors name the failing stage.
func (c *ShaderCreateInfo) Reflections() (vertex, fragment *ProgramReflection, err error) {
	if vertex, err = c.Vertex.Reflection(); err != nil {
		return nil, nil, stageError(ShaderStageVertex, err)
	}
	if fragment, err = c.Fragment.Reflection(); err != nil {
		return nil, nil, stageError(ShaderStageFragment, err)
	}
	return vertex, fragment, nil
}

func stageError(stage ShaderStage, err error) error {
	var cfg *core.ConfigurationError
	if errors.As(err, &cfg) {
		return core.NewConfigurationError(stage.String()+"."+cfg.Field, "%s", cfg.Reason)
	}
	return err
}

// ShaderDescriptor is what a backend receives when asked to create a shader
// program. Both stages are validated.
type ShaderDescriptor struct {
	Label    string
	Vertex   *ProgramReflection
	Fragment *ProgramReflection
}
