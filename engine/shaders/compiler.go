package shaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/dxil"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/msl"
	"github.com/gogpu/naga/spirv"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

// CompileError reports WGSL that could not be turned into bytecode. It
// matches core.ErrConfiguration as well as the underlying compiler error.
type CompileError struct {
	Label string
	Phase string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: failed to %s shader '%s': %s", core.ErrConfiguration, e.Phase, e.Label, e.Err)
}

func (e *CompileError) Unwrap() []error {
	return []error{core.ErrConfiguration, e.Err}
}

// Module is a parsed and validated WGSL module holding one vertex and one
// fragment entry point.
type Module struct {
	label  string
	source string
	ir     *ir.Module
}

// Parse parses, lowers and validates WGSL source. The label is only used in
// diagnostics.
func Parse(label, source string) (*Module, error) {
	module, err := lower(label, source)
	if err != nil {
		return nil, err
	}
	validationErrors, err := naga.Validate(module)
	if err != nil {
		return nil, &CompileError{Label: label, Phase: "validate", Err: err}
	}
	if len(validationErrors) > 0 {
		return nil, &CompileError{Label: label, Phase: "validate", Err: validationErrors[0]}
	}
	m := &Module{label: label, source: source, ir: module}
	for _, stage := range []metadata.ShaderStage{metadata.ShaderStageVertex, metadata.ShaderStageFragment} {
		if _, err := m.entryPoint(stage); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ParseFile reads and parses a WGSL file, labelled by its base name.
func ParseFile(path string) (*Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(filepath.Base(path), string(source))
}

func lower(label, source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, &CompileError{Label: label, Phase: "parse", Err: err}
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, &CompileError{Label: label, Phase: "lower", Err: err}
	}
	return module, nil
}

func (m *Module) Label() string {
	return m.label
}

func irStage(stage metadata.ShaderStage) (ir.ShaderStage, error) {
	switch stage {
	case metadata.ShaderStageVertex:
		return ir.StageVertex, nil
	case metadata.ShaderStageFragment:
		return ir.StageFragment, nil
	}
	return 0, core.NewConfigurationError("stage", "unsupported shader stage %s", stage)
}

// entryPoint returns the single entry point of the stage.
func (m *Module) entryPoint(stage metadata.ShaderStage) (*ir.EntryPoint, error) {
	want, err := irStage(stage)
	if err != nil {
		return nil, err
	}
	var found *ir.EntryPoint
	for i := range m.ir.EntryPoints {
		ep := &m.ir.EntryPoints[i]
		if ep.Stage != want {
			continue
		}
		if found != nil {
			return nil, &CompileError{Label: m.label, Phase: "reflect", Err: fmt.Errorf("more than one %s entry point (%s, %s)", stage, found.Name, ep.Name)}
		}
		found = ep
	}
	if found == nil {
		return nil, &CompileError{Label: m.label, Phase: "reflect", Err: fmt.Errorf("no %s entry point", stage)}
	}
	return found, nil
}

// EntryPoint is the WGSL name of the stage's entry function.
func (m *Module) EntryPoint(stage metadata.ShaderStage) (string, error) {
	ep, err := m.entryPoint(stage)
	if err != nil {
		return "", err
	}
	return ep.Name, nil
}

// Emit generates the bytecode for one stage in the driver's format. It also
// returns the entry point name as it appears in the generated code.
func (m *Module) Emit(driver metadata.Driver, stage metadata.ShaderStage) ([]byte, string, error) {
	ep, err := m.entryPoint(stage)
	if err != nil {
		return nil, "", err
	}
	// Backends get a freshly lowered module each time, some of them rewrite
	// the IR they are given.
	module, err := lower(m.label, m.source)
	if err != nil {
		return nil, "", err
	}

	switch driver {
	case metadata.DriverPrivate, metadata.DriverVulkan:
		code, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
		if err != nil {
			return nil, "", &CompileError{Label: m.label, Phase: "emit SPIR-V for", Err: err}
		}
		return code, ep.Name, nil
	case metadata.DriverD3D12:
		// DXIL containers hold a single entry point.
		for i := range module.EntryPoints {
			if module.EntryPoints[i].Name == ep.Name {
				module.EntryPoints = []ir.EntryPoint{module.EntryPoints[i]}
				break
			}
		}
		code, err := dxil.Compile(module, dxil.DefaultOptions())
		if err != nil {
			return nil, "", &CompileError{Label: m.label, Phase: "emit DXIL for", Err: err}
		}
		return code, ep.Name, nil
	case metadata.DriverMetal:
		opts := msl.DefaultOptions()
		opts.FakeMissingBindings = true
		code, info, err := msl.Compile(module, opts)
		if err != nil {
			return nil, "", &CompileError{Label: m.label, Phase: "emit MSL for", Err: err}
		}
		name := ep.Name
		if renamed, ok := info.EntryPointNames[ep.Name]; ok {
			name = renamed
		}
		return []byte(code), name, nil
	case metadata.DriverOpenGL:
		opts := glsl.DefaultOptions()
		opts.EntryPoint = ep.Name
		code, _, err := glsl.Compile(module, opts)
		if err != nil {
			return nil, "", &CompileError{Label: m.label, Phase: "emit GLSL for", Err: err}
		}
		// GLSL always enters through main.
		return []byte(code), "main", nil
	}
	return nil, "", core.NewConfigurationError("renderer.driver", "driver %s has no bytecode format", driver)
}

// Reflect lists the samplers and uniforms the stage uses. Members of a
// uniform struct become uniforms of their own, a uniform of any other type
// keeps the variable name. Globals touched by helper functions count for
// every stage.
func (m *Module) Reflect(stage metadata.ShaderStage) (samplerCount int, uniforms []metadata.UniformDescriptor, err error) {
	ep, err := m.entryPoint(stage)
	if err != nil {
		return 0, nil, err
	}
	used := make(map[ir.GlobalVariableHandle]struct{})
	collectGlobals(&ep.Function, used)
	for i := range m.ir.Functions {
		collectGlobals(&m.ir.Functions[i], used)
	}

	for i, global := range m.ir.GlobalVariables {
		if _, ok := used[ir.GlobalVariableHandle(i)]; !ok {
			continue
		}
		switch global.Space {
		case ir.SpaceHandle:
			samplerCount += m.samplers(global.Type)
		case ir.SpaceUniform:
			found, err := m.uniforms(global)
			if err != nil {
				return 0, nil, &CompileError{Label: m.label, Phase: "reflect", Err: err}
			}
			uniforms = append(uniforms, found...)
		}
	}
	return samplerCount, uniforms, nil
}

func collectGlobals(fn *ir.Function, used map[ir.GlobalVariableHandle]struct{}) {
	for _, expr := range fn.Expressions {
		if g, ok := expr.Kind.(ir.ExprGlobalVariable); ok {
			used[g.Variable] = struct{}{}
		}
	}
}

func (m *Module) samplers(handle ir.TypeHandle) int {
	switch t := m.ir.Types[handle].Inner.(type) {
	case ir.SamplerType:
		return 1
	case ir.BindingArrayType:
		if _, ok := m.ir.Types[t.Base].Inner.(ir.SamplerType); ok && t.Size != nil {
			return int(*t.Size)
		}
	}
	return 0
}

func (m *Module) uniforms(global ir.GlobalVariable) ([]metadata.UniformDescriptor, error) {
	st, ok := m.ir.Types[global.Type].Inner.(ir.StructType)
	if !ok {
		u, err := m.uniform(global.Name, global.Type)
		if err != nil {
			return nil, err
		}
		return []metadata.UniformDescriptor{u}, nil
	}
	out := make([]metadata.UniformDescriptor, 0, len(st.Members))
	for _, member := range st.Members {
		u, err := m.uniform(member.Name, member.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *Module) uniform(name string, handle ir.TypeHandle) (metadata.UniformDescriptor, error) {
	elements := uint32(1)
	inner := m.ir.Types[handle].Inner
	if arr, ok := inner.(ir.ArrayType); ok {
		if arr.Size.Constant == nil {
			return metadata.UniformDescriptor{}, fmt.Errorf("uniform '%s' is a runtime-sized array", name)
		}
		elements = *arr.Size.Constant
		inner = m.ir.Types[arr.Base].Inner
	}
	t, ok := uniformType(inner)
	if !ok {
		return metadata.UniformDescriptor{}, fmt.Errorf("uniform '%s' has unsupported type %s", name, m.typeName(inner))
	}
	return metadata.NewUniformDescriptor(name, t, elements)
}

var vectorTypes = map[ir.ScalarKind][5]metadata.UniformType{
	ir.ScalarFloat: {2: metadata.UniformTypeVec2, 3: metadata.UniformTypeVec3, 4: metadata.UniformTypeVec4},
	ir.ScalarSint:  {2: metadata.UniformTypeIVec2, 3: metadata.UniformTypeIVec3, 4: metadata.UniformTypeIVec4},
	ir.ScalarUint:  {2: metadata.UniformTypeUVec2, 3: metadata.UniformTypeUVec3, 4: metadata.UniformTypeUVec4},
}

var scalarTypes = map[ir.ScalarKind]metadata.UniformType{
	ir.ScalarFloat: metadata.UniformTypeFloat,
	ir.ScalarSint:  metadata.UniformTypeInt,
	ir.ScalarUint:  metadata.UniformTypeUInt,
}

// uniformType maps 32-bit scalars, vectors and square mat3/mat4 of f32.
func uniformType(inner ir.TypeInner) (metadata.UniformType, bool) {
	switch t := inner.(type) {
	case ir.ScalarType:
		if t.Width != 4 {
			return 0, false
		}
		u, ok := scalarTypes[t.Kind]
		return u, ok
	case ir.VectorType:
		if t.Scalar.Width != 4 {
			return 0, false
		}
		sizes, ok := vectorTypes[t.Scalar.Kind]
		if !ok || int(t.Size) >= len(sizes) {
			return 0, false
		}
		u := sizes[t.Size]
		return u, u.Valid()
	case ir.MatrixType:
		if t.Scalar.Kind != ir.ScalarFloat || t.Scalar.Width != 4 || t.Columns != t.Rows {
			return 0, false
		}
		switch t.Columns {
		case ir.Vec3:
			return metadata.UniformTypeMat3, true
		case ir.Vec4:
			return metadata.UniformTypeMat4, true
		}
	}
	return 0, false
}

func (m *Module) typeName(inner ir.TypeInner) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", inner), "ir.")
}

// Program emits and reflects one stage into a ProgramReflection. The null
// driver gets the reflection without bytecode.
func (m *Module) Program(driver metadata.Driver, stage metadata.ShaderStage) (*metadata.ProgramReflection, error) {
	samplers, uniforms, err := m.Reflect(stage)
	if err != nil {
		return nil, err
	}
	if driver == metadata.DriverNone {
		entry, err := m.EntryPoint(stage)
		if err != nil {
			return nil, err
		}
		return metadata.NewProgramReflection(nil, samplers, uniforms, entry)
	}
	code, entry, err := m.Emit(driver, stage)
	if err != nil {
		return nil, err
	}
	return metadata.NewProgramReflection(code, samplers, uniforms, entry)
}

// CompileProgram turns WGSL holding a vertex and a fragment entry point into
// both stage reflections for the driver.
func CompileProgram(label, source string, driver metadata.Driver) (vertex, fragment *metadata.ProgramReflection, err error) {
	if driver == metadata.DriverNone {
		return nil, nil, core.NewConfigurationError("renderer.driver", "driver %s has no bytecode format", driver)
	}
	m, err := Parse(label, source)
	if err != nil {
		return nil, nil, err
	}
	if vertex, err = m.Program(driver, metadata.ShaderStageVertex); err != nil {
		return nil, nil, err
	}
	if fragment, err = m.Program(driver, metadata.ShaderStageFragment); err != nil {
		return nil, nil, err
	}
	return vertex, fragment, nil
}

// OutputName is the file name a stage's bytecode is written to, e.g.
// "sprite.vert.spv".
func OutputName(stem string, stage metadata.ShaderStage, driver metadata.Driver) string {
	suffix := "vert"
	if stage == metadata.ShaderStageFragment {
		suffix = "frag"
	}
	return fmt.Sprintf("%s.%s.%s", stem, suffix, metadata.ShaderBytecodeExtension(driver))
}
