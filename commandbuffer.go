package vkframe

import (
	vk "github.com/vulkan-go/vulkan"
)

// CommandBuffer is an application owned primary buffer, typically recorded
// once per frame and handed to FrameCycle.QueueBeforeRender. Recording goes
// through the native vulkan command APIs.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

func (c *CommandBuffer) VK() vk.CommandBuffer {
	return c.VKCommandBuffer
}

// Reset discards previously recorded commands. The buffer must not be in
// flight.
func (c *CommandBuffer) Reset() error {
	return vkResult(vk.ResetCommandBuffer(c.VKCommandBuffer, 0))
}

// BeginOneTime starts recording for a single submission.
func (c *CommandBuffer) BeginOneTime() error {
	return beginCommandBuffer(c.VKCommandBuffer, true)
}

func (c *CommandBuffer) End() error {
	return vkResult(vk.EndCommandBuffer(c.VKCommandBuffer))
}

func beginCommandBuffer(cmd vk.CommandBuffer, oneTime bool) error {
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	if oneTime {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return vkResult(vk.BeginCommandBuffer(cmd, &beginInfo))
}

// TransitionImageLayout records a pipeline barrier moving image between
// layouts. Uploads queued with FrameCycle.QueueBeforeRender typically use it.
func TransitionImageLayout(cmd vk.CommandBuffer, image vk.Image, aspectMask vk.ImageAspectFlags, oldLayout, newLayout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectMask,
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	srcStage := vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	dstStage := vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)

	switch oldLayout {
	case vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutColorAttachmentOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}

	switch newLayout {
	case vk.ImageLayoutTransferDstOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case vk.ImageLayoutColorAttachmentOptimal:
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}

	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
