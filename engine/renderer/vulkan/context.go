package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rhi/engine/core"
)

// VulkanContext is the part of a host Vulkan setup the backend needs. The
// host creates the instance, device and swapchain and owns their lifetime.
type VulkanContext struct {
	Device    vk.Device
	Allocator *vk.AllocationCallbacks
	// CommandBuffer receives clear commands. It must be recording inside a
	// render pass whenever Clear is called.
	CommandBuffer vk.CommandBuffer
}

func (vc *VulkanContext) validate() error {
	if vc == nil || vc.Device == nil {
		return core.NewConfigurationError("vulkan", "a logical device is required")
	}
	return nil
}
