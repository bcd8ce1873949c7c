package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CreateSurfaceRenderPass creates a single subpass render pass writing one
// color attachment of the given format that ends ready for presentation. A
// depthFormat other than vk.FormatUndefined adds a depth attachment at index
// 1. If clearFirst is false the previous color contents are loaded instead of
// cleared.
func (d *Device) CreateSurfaceRenderPass(format, depthFormat vk.Format, clearFirst bool) (vk.RenderPass, error) {
	renderPassCreateInfo := surfaceRenderPassInfo(format, depthFormat, clearFirst)

	var renderPass vk.RenderPass
	err := vk.Error(vk.CreateRenderPass(d.VKDevice, &renderPassCreateInfo, nil, &renderPass))
	if err != nil {
		return vk.NullRenderPass, errors.Wrap(err, "create surface render pass")
	}
	return renderPass, nil
}

func surfaceRenderPassInfo(format, depthFormat vk.Format, clearFirst bool) vk.RenderPassCreateInfo {
	loadOp := vk.AttachmentLoadOpClear
	initialLayout := vk.ImageLayoutUndefined
	if !clearFirst {
		loadOp = vk.AttachmentLoadOpLoad
		initialLayout = vk.ImageLayoutPresentSrc
	}

	attachmentDescriptions := []vk.AttachmentDescription{{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initialLayout,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	colorAttachments := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachments,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	if depthFormat != vk.FormatUndefined {
		// Depth is always cleared; nothing reads it after the pass.
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		dependency.SrcStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dependency.DstStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dependency.DstAccessMask |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
}

// CreateFramebuffers creates one framebuffer per swapchain image view. When
// depth is not nil its view is attachment 1 of every framebuffer.
func (d *Device) CreateFramebuffers(renderPass vk.RenderPass, swapchain *Swapchain, depth *DepthBuffer) ([]vk.Framebuffer, error) {
	framebuffers := make([]vk.Framebuffer, 0, len(swapchain.Views))
	for _, view := range swapchain.Views {
		attachments := framebufferAttachments(view, depth)
		fbCreateInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      renderPass,
			Layers:          1,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           swapchain.Extent.Width,
			Height:          swapchain.Extent.Height,
		}
		var fb vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(d.VKDevice, &fbCreateInfo, nil, &fb)); err != nil {
			for _, created := range framebuffers {
				d.DestroyAny(created)
			}
			return nil, errors.Wrap(err, "create framebuffer")
		}
		framebuffers = append(framebuffers, fb)
	}
	return framebuffers, nil
}

func framebufferAttachments(view *ImageView, depth *DepthBuffer) []vk.ImageView {
	if depth == nil {
		return []vk.ImageView{view.VKImageView}
	}
	return []vk.ImageView{view.VKImageView, depth.View.VKImageView}
}

// surfaceClearValues returns the clear values for the surface render pass,
// color first and then depth when the pass has a depth attachment.
func surfaceClearValues(color [4]float32, depth float32, withDepth bool) []vk.ClearValue {
	n := 1
	if withDepth {
		n = 2
	}
	clearValues := make([]vk.ClearValue, n)
	clearValues[0].SetColor(color[:])
	if withDepth {
		clearValues[1].SetDepthStencil(depth, 0)
	}
	return clearValues
}
