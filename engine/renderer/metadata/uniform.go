package metadata

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-rhi/engine/core"
)

/** @brief Available uniform types. Values are tightly packed, without std140 padding. */
type UniformType int

const (
	UniformTypeFloat UniformType = iota + 1
	UniformTypeVec2
	UniformTypeVec3
	UniformTypeVec4
	UniformTypeInt
	UniformTypeIVec2
	UniformTypeIVec3
	UniformTypeIVec4
	UniformTypeUInt
	UniformTypeUVec2
	UniformTypeUVec3
	UniformTypeUVec4
	UniformTypeMat3
	UniformTypeMat4
)

type uniformTypeInfo struct {
	name string
	size uint32
}

var uniformTypes = map[UniformType]uniformTypeInfo{
	UniformTypeFloat: {"float", 4},
	UniformTypeVec2:  {"vec2", 8},
	UniformTypeVec3:  {"vec3", 12},
	UniformTypeVec4:  {"vec4", 16},
	UniformTypeInt:   {"int", 4},
	UniformTypeIVec2: {"ivec2", 8},
	UniformTypeIVec3: {"ivec3", 12},
	UniformTypeIVec4: {"ivec4", 16},
	UniformTypeUInt:  {"uint", 4},
	UniformTypeUVec2: {"uvec2", 8},
	UniformTypeUVec3: {"uvec3", 12},
	UniformTypeUVec4: {"uvec4", 16},
	UniformTypeMat3:  {"mat3", 36},
	UniformTypeMat4:  {"mat4", 64},
}

// Size returns the byte width of one element of the type, 0 if unknown.
func (t UniformType) Size() uint32 {
	return uniformTypes[t].size
}

func (t UniformType) Valid() bool {
	_, ok := uniformTypes[t]
	return ok
}

func (t UniformType) String() string {
	if info, ok := uniformTypes[t]; ok {
		return info.name
	}
	return fmt.Sprintf("UniformType(%d)", int(t))
}

func ParseUniformType(s string) (UniformType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, info := range uniformTypes {
		if info.name == name {
			return t, nil
		}
	}
	return 0, core.NewConfigurationError("type", "unknown uniform type %q", s)
}

func (t UniformType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, core.NewConfigurationError("type", "unknown uniform type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *UniformType) UnmarshalText(text []byte) error {
	parsed, err := ParseUniformType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UniformDescriptor is one named uniform of a shader stage. It is immutable
// once built.
type UniformDescriptor struct {
	name          string
	uniformType   UniformType
	arrayElements uint32
}

// NewUniformDescriptor validates its inputs. arrayElements must be at least
// one; a plain (non array) uniform has one element.
func NewUniformDescriptor(name string, uniformType UniformType, arrayElements uint32) (UniformDescriptor, error) {
	if name == "" {
		return UniformDescriptor{}, core.NewConfigurationError("name", "uniform name must not be empty")
	}
	if !uniformType.Valid() {
		return UniformDescriptor{}, core.NewConfigurationError("type", "uniform '%s' has unknown type %d", name, int(uniformType))
	}
	if arrayElements == 0 {
		return UniformDescriptor{}, core.NewConfigurationError("arrayElements", "uniform '%s' must have at least 1 element", name)
	}
	return UniformDescriptor{name: name, uniformType: uniformType, arrayElements: arrayElements}, nil
}

// MustUniform is NewUniformDescriptor for static tables. It panics on error.
func MustUniform(name string, uniformType UniformType, arrayElements uint32) UniformDescriptor {
	u, err := NewUniformDescriptor(name, uniformType, arrayElements)
	if err != nil {
		panic(err)
	}
	return u
}

func (u UniformDescriptor) Name() string {
	return u.name
}

func (u UniformDescriptor) Type() UniformType {
	return u.uniformType
}

func (u UniformDescriptor) ArrayElements() uint32 {
	return u.arrayElements
}

// SizeInBytes is the element size times the element count.
func (u UniformDescriptor) SizeInBytes() uint32 {
	return u.uniformType.Size() * u.arrayElements
}

// SameLayout reports whether both descriptors have the same type and element
// count. Names are not compared.
func (u UniformDescriptor) SameLayout(other UniformDescriptor) bool {
	return u.uniformType == other.uniformType && u.arrayElements == other.arrayElements
}

func (u UniformDescriptor) String() string {
	return fmt.Sprintf("%s %s[%d]", u.name, u.uniformType, u.arrayElements)
}
