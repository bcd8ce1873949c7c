package vkframe

import (
	vk "github.com/vulkan-go/vulkan"
)

// Destroyer releases a single handle of the given kind. Device implements it
// with the matching vkDestroy* or vkFreeMemory call.
type Destroyer interface {
	DestroyObject(kind ObjectKind, handle interface{})
}

// DestroyObject destroys handle immediately. The handle's Go type must match
// kind, which DeletionQueue guarantees for everything it hands over.
func (d *Device) DestroyObject(kind ObjectKind, handle interface{}) {
	switch kind {
	case KindDescriptorPool:
		vk.DestroyDescriptorPool(d.VKDevice, handle.(vk.DescriptorPool), nil)
	case KindShaderModule:
		vk.DestroyShaderModule(d.VKDevice, handle.(vk.ShaderModule), nil)
	case KindBuffer:
		vk.DestroyBuffer(d.VKDevice, handle.(vk.Buffer), nil)
	case KindBufferView:
		vk.DestroyBufferView(d.VKDevice, handle.(vk.BufferView), nil)
	case KindImage:
		vk.DestroyImage(d.VKDevice, handle.(vk.Image), nil)
	case KindImageView:
		vk.DestroyImageView(d.VKDevice, handle.(vk.ImageView), nil)
	case KindDeviceMemory:
		vk.FreeMemory(d.VKDevice, handle.(vk.DeviceMemory), nil)
	case KindSampler:
		vk.DestroySampler(d.VKDevice, handle.(vk.Sampler), nil)
	case KindPipelineCache:
		vk.DestroyPipelineCache(d.VKDevice, handle.(vk.PipelineCache), nil)
	}
}

// DestroyAny is a utility function which given a handle will try to figure
// out how to destroy it right away. Kinds outside the deletion queue's set
// (pipelines, fences, render passes, semaphores) are handled here as well.
func (d *Device) DestroyAny(i interface{}) {
	if kind, ok := kindOf(i); ok {
		d.DestroyObject(kind, i)
		return
	}
	switch t := i.(type) {
	case vk.Pipeline:
		vk.DestroyPipeline(d.VKDevice, t, nil)
	case vk.Fence:
		vk.DestroyFence(d.VKDevice, t, nil)
	case vk.RenderPass:
		vk.DestroyRenderPass(d.VKDevice, t, nil)
	case vk.Semaphore:
		vk.DestroySemaphore(d.VKDevice, t, nil)
	case vk.Framebuffer:
		vk.DestroyFramebuffer(d.VKDevice, t, nil)
	case IDestructable:
		t.Destroy()
	}
}

// IDestructable is implemented by the wrappers in this package.
type IDestructable interface {
	Destroy()
}

func kindOf(i interface{}) (ObjectKind, bool) {
	switch i.(type) {
	case vk.DescriptorPool:
		return KindDescriptorPool, true
	case vk.ShaderModule:
		return KindShaderModule, true
	case vk.Buffer:
		return KindBuffer, true
	case vk.BufferView:
		return KindBufferView, true
	case vk.Image:
		return KindImage, true
	case vk.ImageView:
		return KindImageView, true
	case vk.DeviceMemory:
		return KindDeviceMemory, true
	case vk.Sampler:
		return KindSampler, true
	case vk.PipelineCache:
		return KindPipelineCache, true
	}
	return 0, false
}
