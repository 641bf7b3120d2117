//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every WGSL shader in assets/shaders for all drivers.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed and the shader compiler into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/testbed", "."), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/shaderc", "./cmd/shaderc"), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	_, err := executeCmd("go", withArgs("run", "./cmd/shaderc", shaderDir), withStream())
	return err
}
