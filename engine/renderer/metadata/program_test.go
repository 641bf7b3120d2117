package metadata

import (
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramReflectionUniformSize(t *testing.T) {
	vertex, err := NewProgramReflection(nil, 0, []UniformDescriptor{
		MustUniform("mvp", UniformTypeMat4, 1),
	}, "vs_main")
	require.NoError(t, err)
	assert.Equal(t, uint32(64), vertex.UniformSizeInBytes())

	fragment, err := NewProgramReflection(nil, 1, []UniformDescriptor{
		MustUniform("mvp", UniformTypeMat4, 1),
		MustUniform("tint", UniformTypeVec4, 1),
	}, "fs_main")
	require.NoError(t, err)
	assert.Equal(t, uint32(80), fragment.UniformSizeInBytes())

	empty, err := NewProgramReflection(nil, 0, nil, "main")
	require.NoError(t, err)
	assert.Zero(t, empty.UniformSizeInBytes())
}

func TestProgramReflectionRejects(t *testing.T) {
	_, err := NewProgramReflection(nil, -1, nil, "main")
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewProgramReflection(nil, 0, []UniformDescriptor{
		MustUniform("a", UniformTypeFloat, 1),
		MustUniform("a", UniformTypeVec2, 1),
	}, "main")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestProgramReflectionIsImmutable(t *testing.T) {
	code := []byte{1, 2, 3, 4}
	uniforms := []UniformDescriptor{MustUniform("a", UniformTypeFloat, 1)}
	p, err := NewProgramReflection(code, 0, uniforms, "main")
	require.NoError(t, err)

	code[0] = 9
	uniforms[0] = MustUniform("b", UniformTypeMat4, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, p.Bytecode())
	assert.Equal(t, "a", p.Uniforms()[0].Name())

	p.Bytecode()[1] = 9
	assert.Equal(t, byte(2), p.Bytecode()[1])

	_, ok := p.Uniform("a")
	assert.True(t, ok)
	_, ok = p.Uniform("b")
	assert.False(t, ok)
}

func TestShaderCreateInfoFromTOML(t *testing.T) {
	doc := `
name = "sprite"

[vertex]
source = "sprite.wgsl"
entry_point = "vs_main"
sampler_count = 0
uniforms = [{ name = "mvp", type = "mat4", array_elements = 1 }]

[fragment]
bytecode = "sprite.frag"
entry_point = "fs_main"
sampler_count = 1
uniforms = [
  { name = "mvp", type = "mat4", array_elements = 1 },
  { name = "tint", type = "vec4", array_elements = 1 },
]
`
	var info ShaderCreateInfo
	require.NoError(t, toml.NewDecoder(strings.NewReader(doc)).DisallowUnknownFields().Decode(&info))
	assert.Equal(t, "sprite", info.Name)
	assert.Equal(t, "sprite.wgsl", info.Vertex.Source)
	assert.Equal(t, "sprite.frag", info.Fragment.BytecodeFile)

	vertex, fragment, err := info.Reflections()
	require.NoError(t, err)
	assert.Equal(t, uint32(64), vertex.UniformSizeInBytes())
	assert.Equal(t, uint32(80), fragment.UniformSizeInBytes())
	assert.Equal(t, 1, fragment.SamplerCount())

	back := ProgramInfoFrom(fragment)
	assert.Equal(t, info.Fragment.Uniforms, back.Uniforms)
}

func TestShaderCreateInfoNamesFailingStage(t *testing.T) {
	info := ShaderCreateInfo{
		Fragment: ProgramInfo{Uniforms: []UniformInfo{{Name: "x", Type: UniformTypeFloat}}},
	}
	_, _, err := info.Reflections()
	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "fragment.arrayElements", cfg.Field)
}

func TestClearMask(t *testing.T) {
	assert.True(t, ClearAll.Has(ClearStencil))
	assert.False(t, ClearColor.Has(ClearDepth))
	assert.Equal(t, "color|stencil", (ClearColor | ClearStencil).String())
	assert.Equal(t, "none", ClearNone.String())
	assert.False(t, InvalidHandle.Valid())
}
