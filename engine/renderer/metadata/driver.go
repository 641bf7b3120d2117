package metadata

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-rhi/engine/core"
)

/** @brief The native graphics APIs a renderer can be built on. */
type Driver int

const (
	/** @brief No backend. Nothing is ever compiled for it. */
	DriverNone Driver = iota
	/** @brief In-process backend that consumes SPIR-V, used off-screen and in tests. */
	DriverPrivate
	DriverVulkan
	DriverD3D12
	DriverMetal
	DriverOpenGL
)

var driverNames = [...]string{
	DriverNone:    "none",
	DriverPrivate: "private",
	DriverVulkan:  "vulkan",
	DriverD3D12:   "d3d12",
	DriverMetal:   "metal",
	DriverOpenGL:  "opengl",
}

// Drivers lists every known driver in declaration order.
func Drivers() []Driver {
	return []Driver{DriverNone, DriverPrivate, DriverVulkan, DriverD3D12, DriverMetal, DriverOpenGL}
}

func (d Driver) valid() bool {
	return d >= DriverNone && d <= DriverOpenGL
}

func (d Driver) String() string {
	if !d.valid() {
		return fmt.Sprintf("Driver(%d)", int(d))
	}
	return driverNames[d]
}

// ParseDriver accepts the lower-case driver names, ignoring case.
func ParseDriver(s string) (Driver, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d, n := range driverNames {
		if n == name {
			return Driver(d), nil
		}
	}
	return DriverNone, core.NewConfigurationError("renderer.driver", "unknown driver %q", s)
}

func (d Driver) MarshalText() ([]byte, error) {
	if !d.valid() {
		return nil, core.NewConfigurationError("renderer.driver", "unknown driver %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Driver) UnmarshalText(text []byte) error {
	parsed, err := ParseDriver(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ShaderBytecodeExtension returns the file extension of the compiled shader
// format the driver consumes. DriverNone has no format and maps to "".
// Passing a value outside the enum is a programming error and panics with a
// FatalUsageError.
func ShaderBytecodeExtension(d Driver) string {
	switch d {
	case DriverNone:
		return ""
	case DriverPrivate, DriverVulkan:
		return "spv"
	case DriverD3D12:
		return "dxil"
	case DriverMetal:
		return "msl"
	case DriverOpenGL:
		return "glsl"
	}
	panic(core.NewFatalUsageError("ShaderBytecodeExtension", "unknown driver %d", int(d)))
}

// GPUBackend maps the driver to the matching gputypes backend. The second
// result is false for drivers without a native API.
func (d Driver) GPUBackend() (gputypes.Backend, bool) {
	switch d {
	case DriverVulkan:
		return gputypes.BackendVulkan, true
	case DriverD3D12:
		return gputypes.BackendDX12, true
	case DriverMetal:
		return gputypes.BackendMetal, true
	case DriverOpenGL:
		return gputypes.BackendGL, true
	}
	return gputypes.BackendEmpty, false
}
