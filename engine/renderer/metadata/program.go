package metadata

import (
	"slices"

	"github.com/spaghettifunk/anima-rhi/engine/core"
)

// ProgramReflection describes one compiled shader stage: its bytecode, how
// many samplers it binds, the uniforms it declares and its entry point.
// It copies its inputs and hands out copies, so it cannot be changed after
// construction.
type ProgramReflection struct {
	bytecode     []byte
	samplerCount int
	uniforms     []UniformDescriptor
	entryPoint   string
}

// NewProgramReflection fails when samplerCount is negative or a uniform name
// is declared twice.
func NewProgramReflection(bytecode []byte, samplerCount int, uniforms []UniformDescriptor, entryPoint string) (*ProgramReflection, error) {
	if samplerCount < 0 {
		return nil, core.NewConfigurationError("samplerCount", "must not be negative, got %d", samplerCount)
	}
	seen := make(map[string]struct{}, len(uniforms))
	for _, u := range uniforms {
		if _, dup := seen[u.Name()]; dup {
			return nil, core.NewConfigurationError("uniforms", "uniform '%s' is declared more than once", u.Name())
		}
		seen[u.Name()] = struct{}{}
	}
	return &ProgramReflection{
		bytecode:     slices.Clone(bytecode),
		samplerCount: samplerCount,
		uniforms:     slices.Clone(uniforms),
		entryPoint:   entryPoint,
	}, nil
}

func (p *ProgramReflection) Bytecode() []byte {
	return slices.Clone(p.bytecode)
}

func (p *ProgramReflection) BytecodeSize() int {
	return len(p.bytecode)
}

func (p *ProgramReflection) SamplerCount() int {
	return p.samplerCount
}

func (p *ProgramReflection) Uniforms() []UniformDescriptor {
	return slices.Clone(p.uniforms)
}

func (p *ProgramReflection) EntryPoint() string {
	return p.entryPoint
}

// Uniform looks up a uniform by name.
func (p *ProgramReflection) Uniform(name string) (UniformDescriptor, bool) {
	for _, u := range p.uniforms {
		if u.Name() == name {
			return u, true
		}
	}
	return UniformDescriptor{}, false
}

// UniformSizeInBytes sums the sizes of every uniform of the stage.
func (p *ProgramReflection) UniformSizeInBytes() uint32 {
	var total uint32
	for _, u := range p.uniforms {
		total += u.SizeInBytes()
	}
	return total
}

// WithBytecode returns a copy of p carrying other bytecode. Used when a
// manifest names a precompiled file.
func (p *ProgramReflection) WithBytecode(bytecode []byte) *ProgramReflection {
	return &ProgramReflection{
		bytecode:     slices.Clone(bytecode),
		samplerCount: p.samplerCount,
		uniforms:     p.uniforms,
		entryPoint:   p.entryPoint,
	}
}
