package vkframe

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

// CreatePipelineCache creates a cache, seeded with initial when non-empty.
func (d *Device) CreatePipelineCache(initial []byte) (*PipelineCache, error) {
	createInfo := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if len(initial) > 0 {
		createInfo.InitialDataSize = uint(len(initial))
		createInfo.PInitialData = unsafePointer(initial)
	}

	var cache vk.PipelineCache
	if err := vk.Error(vk.CreatePipelineCache(d.VKDevice, &createInfo, nil, &cache)); err != nil {
		return nil, errors.Wrap(err, "create pipeline cache")
	}
	return &PipelineCache{Device: d, VKPipelineCache: cache}, nil
}

// Data returns the cache contents for saving to disk.
func (c *PipelineCache) Data() ([]byte, error) {
	var size uint
	if err := vk.Error(vk.GetPipelineCacheData(c.Device.VKDevice, c.VKPipelineCache, &size, nil)); err != nil {
		return nil, errors.Wrap(err, "size pipeline cache")
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if err := vk.Error(vk.GetPipelineCacheData(c.Device.VKDevice, c.VKPipelineCache, &size, unsafePointer(data))); err != nil {
		return nil, errors.Wrap(err, "read pipeline cache")
	}
	return data[:size], nil
}

func (c *PipelineCache) QueueDestroy(d Deleter) {
	d.QueueDelete(KindPipelineCache, c.VKPipelineCache)
	c.VKPipelineCache = vk.NullPipelineCache
}

func (c *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(c.Device.VKDevice, c.VKPipelineCache, nil)
}

func unsafePointer(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}
