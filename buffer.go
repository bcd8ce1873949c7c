package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Buffer is a Vulkan buffer along with the size it was created with.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer
	Size     uint64
}

// CreateBuffer creates a buffer usable for the given purposes. The buffer has
// no memory until Bind is called.
func (d *Device) CreateBuffer(size uint64, usage vk.BufferUsageFlagBits) (*Buffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(d.VKDevice, &bufferCreateInfo, nil, &buffer)); err != nil {
		return nil, errors.Wrapf(err, "create buffer of %d bytes", size)
	}
	return &Buffer{Device: d, VKBuffer: buffer, Size: size}, nil
}

func (b *Buffer) MemoryRequirements() vk.MemoryRequirements {
	var mr vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.Device.VKDevice, b.VKBuffer, &mr)
	mr.Deref()
	return mr
}

func (b *Buffer) Bind(memory *DeviceMemory, offset uint64) error {
	return errors.Wrap(vk.Error(vk.BindBufferMemory(b.Device.VKDevice, b.VKBuffer, memory.VKDeviceMemory, vk.DeviceSize(offset))), "bind buffer memory")
}

// QueueDestroy defers destruction of the buffer to d.
func (b *Buffer) QueueDestroy(d Deleter) {
	d.QueueDelete(KindBuffer, b.VKBuffer)
	b.VKBuffer = vk.NullBuffer
}

func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
}
