package vulkan

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

const name = "vulkan"

type Options struct {
	// Upper bound of live shader handles.
	MaxHandles int
	// Thread is consulted on every call when not nil.
	Thread metadata.ThreadChecker
}

type vulkanProgram struct {
	label    string
	vertex   *VulkanShaderStage
	fragment *VulkanShaderStage
}

func (p *vulkanProgram) destroy(context *VulkanContext) {
	p.vertex.Destroy(context)
	p.fragment.Destroy(context)
}

// Backend implements metadata.Backend on a Vulkan device owned by the host.
// Shader programs are pairs of shader modules; clears are recorded into the
// host command buffer.
type Backend struct {
	context  *VulkanContext
	thread   metadata.ThreadChecker
	programs *core.HandleTable[*vulkanProgram]
	metrics  core.ResourceMetrics
	shutdown bool
	logger   *log.Logger
}

func New(context *VulkanContext, opts Options) (*Backend, error) {
	if err := context.validate(); err != nil {
		return nil, err
	}
	if opts.MaxHandles < 1 {
		return nil, core.NewConfigurationError("renderer.max_handles", "must be at least 1, got %d", opts.MaxHandles)
	}
	return &Backend{
		context:  context,
		thread:   opts.Thread,
		programs: core.NewHandleTable[*vulkanProgram](opts.MaxHandles),
		logger:   core.Logger().WithPrefix(name),
	}, nil
}

func (b *Backend) check(op string) error {
	if b.shutdown {
		return core.NewFatalUsageError(op, "%s backend is shut down", name)
	}
	if b.thread != nil && !b.thread.OnDesignatedThread() {
		return core.NewFatalUsageError(op, "called off the command thread")
	}
	return nil
}

func (b *Backend) Name() string {
	return name
}

func (b *Backend) Driver() metadata.Driver {
	return metadata.DriverVulkan
}

func (b *Backend) SupportedBytecodeFormats() []string {
	return []string{metadata.ShaderBytecodeExtension(metadata.DriverVulkan)}
}

func (b *Backend) CreateShader(desc *metadata.ShaderDescriptor) (metadata.Handle, error) {
	if err := b.check("CreateShader"); err != nil {
		return metadata.InvalidHandle, err
	}
	if desc == nil || desc.Vertex == nil || desc.Fragment == nil {
		return metadata.InvalidHandle, core.NewConfigurationError("descriptor", "both stages are required")
	}

	vertexCode, err := stageCode(metadata.ShaderStageVertex, desc.Vertex)
	if err != nil {
		b.metrics.RecordFailure()
		return metadata.InvalidHandle, &core.BackendAllocationError{Backend: name, Diagnostic: fmt.Sprintf("%s: %s", desc.Label, err)}
	}
	fragmentCode, err := stageCode(metadata.ShaderStageFragment, desc.Fragment)
	if err != nil {
		b.metrics.RecordFailure()
		return metadata.InvalidHandle, &core.BackendAllocationError{Backend: name, Diagnostic: fmt.Sprintf("%s: %s", desc.Label, err)}
	}

	p := &vulkanProgram{label: desc.Label}
	var res vk.Result
	if p.vertex, res = NewShaderStage(b.context, metadata.ShaderStageVertex, vertexCode, desc.Vertex.EntryPoint()); res != vk.Success {
		b.metrics.RecordFailure()
		return metadata.InvalidHandle, b.allocationError(desc.Label, metadata.ShaderStageVertex, res)
	}
	if p.fragment, res = NewShaderStage(b.context, metadata.ShaderStageFragment, fragmentCode, desc.Fragment.EntryPoint()); res != vk.Success {
		p.vertex.Destroy(b.context)
		b.metrics.RecordFailure()
		return metadata.InvalidHandle, b.allocationError(desc.Label, metadata.ShaderStageFragment, res)
	}

	token, err := b.programs.Acquire(p)
	if err != nil {
		p.destroy(b.context)
		b.metrics.RecordFailure()
		return metadata.InvalidHandle, err
	}
	b.metrics.RecordAllocation()
	b.logger.Debug("shader modules created", "label", desc.Label, "handle", metadata.Handle(token))
	return metadata.Handle(token), nil
}

func (b *Backend) allocationError(label string, stage metadata.ShaderStage, res vk.Result) error {
	return &core.BackendAllocationError{
		Backend:    name,
		Diagnostic: fmt.Sprintf("%s: vkCreateShaderModule (%s stage): %s", label, stage, VulkanResultString(res, true)),
	}
}

// Stages returns the shader stage infos of a live program, for building
// pipelines.
func (b *Backend) Stages(handle metadata.Handle) ([]vk.PipelineShaderStageCreateInfo, error) {
	if err := b.check("Stages"); err != nil {
		return nil, err
	}
	p, ok := b.programs.Get(uint64(handle))
	if !ok {
		return nil, core.NewFatalUsageError("Stages", "handle %s is not live", handle)
	}
	return []vk.PipelineShaderStageCreateInfo{p.vertex.ShaderStageCreateInfo, p.fragment.ShaderStageCreateInfo}, nil
}

func (b *Backend) DestroyResource(handle metadata.Handle) error {
	if err := b.check("DestroyResource"); err != nil {
		return err
	}
	p, err := b.programs.Release(uint64(handle))
	if err != nil {
		return err
	}
	p.destroy(b.context)
	b.metrics.RecordRelease()
	b.logger.Debug("shader modules destroyed", "label", p.label, "handle", handle)
	return nil
}

func (b *Backend) Clear(target metadata.Target, colors []gputypes.Color, depth float32, stencil uint32, mask metadata.ClearMask) error {
	if err := b.check("Clear"); err != nil {
		return err
	}
	fb, ok := target.(*VulkanFramebuffer)
	if !ok || fb.backend != b {
		return core.NewFatalUsageError("Clear", "target %T was not created by this backend", target)
	}
	if err := metadata.CheckClear(target, colors, mask); err != nil {
		return err
	}
	attachments := clearAttachments(colors, depth, stencil, mask, fb.HasDepthStencil)
	if len(attachments) == 0 {
		return nil
	}
	rects := []vk.ClearRect{{
		Rect: vk.Rect2D{
			Extent: vk.Extent2D{Width: fb.width, Height: fb.height},
		},
		BaseArrayLayer: 0,
		LayerCount:     1,
	}}
	vk.CmdClearAttachments(b.context.CommandBuffer, uint32(len(attachments)), attachments, uint32(len(rects)), rects)
	return nil
}

// clearAttachments translates a clear request into vkCmdClearAttachments
// entries: one per colour attachment, then one for depth and stencil.
func clearAttachments(colors []gputypes.Color, depth float32, stencil uint32, mask metadata.ClearMask, hasDepthStencil bool) []vk.ClearAttachment {
	var out []vk.ClearAttachment
	if mask.Has(metadata.ClearColor) {
		for i, c := range colors {
			a := vk.ClearAttachment{
				AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
				ColorAttachment: uint32(i),
			}
			a.ClearValue.SetColor([]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)})
			out = append(out, a)
		}
	}
	if !hasDepthStencil {
		return out
	}
	var aspect vk.ImageAspectFlags
	if mask.Has(metadata.ClearDepth) {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if mask.Has(metadata.ClearStencil) {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if aspect != 0 {
		a := vk.ClearAttachment{AspectMask: aspect}
		a.ClearValue.SetDepthStencil(depth, stencil)
		out = append(out, a)
	}
	return out
}

func (b *Backend) Stats() core.ResourceStats {
	return b.metrics.Snapshot()
}

// Shutdown destroys the shader modules still alive. The device itself
// belongs to the host.
func (b *Backend) Shutdown() error {
	if b.shutdown {
		return nil
	}
	if err := b.check("Shutdown"); err != nil {
		return err
	}
	var live []uint64
	b.programs.Each(func(token uint64, p *vulkanProgram) {
		b.logger.Warn("shader still alive at shutdown", "label", p.label, "handle", metadata.Handle(token))
		live = append(live, token)
	})
	for _, token := range live {
		if p, err := b.programs.Release(token); err == nil {
			p.destroy(b.context)
			b.metrics.RecordRelease()
		}
	}
	b.shutdown = true
	return nil
}
