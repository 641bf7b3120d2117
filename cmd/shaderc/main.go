// Command shaderc compiles WGSL shaders into the bytecode each renderer
// driver loads.
//
// Usage:
//
//	shaderc [options] <dir>
//
// Examples:
//
//	shaderc assets/shaders                    # Every driver, next to the sources
//	shaderc -driver vulkan assets/shaders     # SPIR-V only
//	shaderc -o build/shaders assets/shaders   # Write into another directory
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rhi/engine/shaders"
)

var (
	output   = flag.String("o", "", "output directory (default: next to each source)")
	driver   = flag.String("driver", "all", "driver to compile for, or \"all\"")
	logLevel = flag.String("log", "info", "log level")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if err := core.SetLogLevel(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one shader directory expected")
		usage()
		os.Exit(2)
	}
	drivers, err := targetDrivers(*driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	written, err := compileDir(args[0], *output, drivers)
	if err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
	core.LogInfo("wrote %d files", written)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: shaderc [options] <dir>\n\n")
	fmt.Fprintf(os.Stderr, "Compiles every .wgsl file under dir into <stem>.vert.<ext> and <stem>.frag.<ext>.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}

// targetDrivers lists the drivers to compile for. The private driver shares
// SPIR-V with Vulkan, so "all" only names the latter.
func targetDrivers(name string) ([]metadata.Driver, error) {
	if name == "all" {
		return []metadata.Driver{metadata.DriverVulkan, metadata.DriverD3D12, metadata.DriverMetal, metadata.DriverOpenGL}, nil
	}
	d, err := metadata.ParseDriver(name)
	if err != nil {
		return nil, err
	}
	if metadata.ShaderBytecodeExtension(d) == "" {
		return nil, fmt.Errorf("driver %s has no bytecode format", d)
	}
	return []metadata.Driver{d}, nil
}

// compileDir compiles every WGSL file under dir. A failing file does not
// stop the others, all failures are returned together.
func compileDir(dir, out string, drivers []metadata.Driver) (int, error) {
	var errs []error
	written := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".wgsl" {
			return nil
		}
		n, err := compileFile(dir, path, out, drivers)
		written += n
		if err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if err != nil {
		return written, err
	}
	return written, errors.Join(errs...)
}

func compileFile(root, path, out string, drivers []metadata.Driver) (int, error) {
	m, err := shaders.ParseFile(path)
	if err != nil {
		return 0, err
	}

	destDir := filepath.Dir(path)
	if out != "" {
		rel, err := filepath.Rel(root, destDir)
		if err != nil {
			return 0, err
		}
		destDir = filepath.Join(out, rel)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return 0, err
		}
	}
	stem := strings.TrimSuffix(filepath.Base(path), ".wgsl")

	written := 0
	for _, d := range drivers {
		for _, stage := range []metadata.ShaderStage{metadata.ShaderStageVertex, metadata.ShaderStageFragment} {
			code, entry, err := m.Emit(d, stage)
			if err != nil {
				return written, fmt.Errorf("%s (%s): %w", path, d, err)
			}
			dest := filepath.Join(destDir, shaders.OutputName(stem, stage, d))
			if err := os.WriteFile(dest, code, 0o644); err != nil {
				return written, err
			}
			written++
			core.LogDebug("%s -> %s (%s, entry %s, %d bytes)", path, dest, stage, entry, len(code))
		}
	}
	return written, nil
}
