package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

// VulkanFramebuffer is a drawable target of the Vulkan backend: colour image
// views followed by an optional depth/stencil view.
type VulkanFramebuffer struct {
	Handle          vk.Framebuffer
	Attachments     []vk.ImageView
	HasDepthStencil bool
	width           uint32
	height          uint32
	colorCount      uint32
	owned           bool
	backend         *Backend
}

// FramebufferCreate builds a framebuffer for renderpass. The colour views
// come first, matching the attachment order of the render pass.
func (b *Backend) FramebufferCreate(renderpass vk.RenderPass, width, height uint32, colorViews []vk.ImageView, depthStencilView vk.ImageView) (*VulkanFramebuffer, error) {
	if err := b.check("FramebufferCreate"); err != nil {
		return nil, err
	}
	fb := &VulkanFramebuffer{
		HasDepthStencil: depthStencilView != vk.NullImageView,
		width:           width,
		height:          height,
		colorCount:      uint32(len(colorViews)),
		owned:           true,
		backend:         b,
	}
	// Take a copy of the attachments
	fb.Attachments = append(fb.Attachments, colorViews...)
	if fb.HasDepthStencil {
		fb.Attachments = append(fb.Attachments, depthStencilView)
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if res := vk.CreateFramebuffer(b.context.Device, &createInfo, b.context.Allocator, &handle); res != vk.Success {
		return nil, &core.BackendAllocationError{Backend: name, Diagnostic: "vkCreateFramebuffer: " + VulkanResultString(res, true)}
	}
	fb.Handle = handle
	return fb, nil
}

// WrapFramebuffer turns a framebuffer created by the host, e.g. one per
// swapchain image, into a target. Destroy leaves it alive.
func (b *Backend) WrapFramebuffer(handle vk.Framebuffer, width, height, colorAttachments uint32, hasDepthStencil bool) *VulkanFramebuffer {
	return &VulkanFramebuffer{
		Handle:          handle,
		HasDepthStencil: hasDepthStencil,
		width:           width,
		height:          height,
		colorCount:      colorAttachments,
		backend:         b,
	}
}

func (vfb *VulkanFramebuffer) Width() int {
	return int(vfb.width)
}

func (vfb *VulkanFramebuffer) Height() int {
	return int(vfb.height)
}

func (vfb *VulkanFramebuffer) ColorAttachmentCount() int {
	return int(vfb.colorCount)
}

func (vfb *VulkanFramebuffer) Backend() metadata.Backend {
	return vfb.backend
}

// Resized records the new extent after the host recreated a wrapped
// framebuffer.
func (vfb *VulkanFramebuffer) Resized(handle vk.Framebuffer, width, height uint32) {
	vfb.Handle = handle
	vfb.width, vfb.height = width, height
}

func (vfb *VulkanFramebuffer) Destroy() error {
	if err := vfb.backend.check("FramebufferDestroy"); err != nil {
		return err
	}
	if vfb.owned {
		vk.DestroyFramebuffer(vfb.backend.context.Device, vfb.Handle, vfb.backend.context.Allocator)
	}
	vfb.Attachments = nil
	vfb.Handle = vk.NullFramebuffer
	vfb.colorCount = 0
	return nil
}
