package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rhi/engine/shaders"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The shader module creation info. */
	CreateInfo vk.ShaderModuleCreateInfo
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// stageCode checks the SPIR-V of a stage before any native call.
func stageCode(stage metadata.ShaderStage, p *metadata.ProgramReflection) ([]uint32, error) {
	words, err := shaders.SPIRVWords(p.Bytecode())
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", stage, err)
	}
	return words, nil
}

func stageFlag(stage metadata.ShaderStage) vk.ShaderStageFlagBits {
	if stage == metadata.ShaderStageFragment {
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

// NewShaderStage creates the shader module of one stage from checked
// SPIR-V words.
func NewShaderStage(context *VulkanContext, stage metadata.ShaderStage, code []uint32, entryPoint string) (*VulkanShaderStage, vk.Result) {
	s := &VulkanShaderStage{}
	s.CreateInfo.SType = vk.StructureTypeShaderModuleCreateInfo
	s.CreateInfo.CodeSize = uint64(len(code) * 4)
	s.CreateInfo.PCode = code

	if res := vk.CreateShaderModule(context.Device, &s.CreateInfo, context.Allocator, &s.Handle); res != vk.Success {
		return nil, res
	}

	if entryPoint == "" {
		entryPoint = "main"
	}
	// Shader stage info
	s.ShaderStageCreateInfo.SType = vk.StructureTypePipelineShaderStageCreateInfo
	s.ShaderStageCreateInfo.Stage = stageFlag(stage)
	s.ShaderStageCreateInfo.Module = s.Handle
	s.ShaderStageCreateInfo.PName = VulkanSafeString(entryPoint)
	return s, vk.Success
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s == nil || s.Handle == vk.NullShaderModule {
		return
	}
	vk.DestroyShaderModule(context.Device, s.Handle, context.Allocator)
	s.Handle = vk.NullShaderModule
}
