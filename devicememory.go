package vkframe

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// DeviceMemory is an allocation on the device or host visible to it.
type DeviceMemory struct {
	Device         *Device
	VKDeviceMemory vk.DeviceMemory
	Size           uint64
}

// Allocate allocates size bytes from a memory type matching typeBits and
// props.
func (d *Device) Allocate(size uint64, typeBits uint32, props vk.MemoryPropertyFlagBits) (*DeviceMemory, error) {
	memoryType, err := d.FindMemoryType(typeBits, props)
	if err != nil {
		return nil, err
	}

	var memory vk.DeviceMemory
	err = vk.Error(vk.AllocateMemory(d.VKDevice, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryType,
	}, nil, &memory))
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes", size)
	}
	return &DeviceMemory{Device: d, VKDeviceMemory: memory, Size: size}, nil
}

// Map maps size bytes starting at offset.
func (m *DeviceMemory) Map(offset, size uint64) (unsafe.Pointer, error) {
	var res unsafe.Pointer
	err := vk.Error(vk.MapMemory(m.Device.VKDevice, m.VKDeviceMemory, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &res))
	if err != nil {
		return nil, errors.Wrap(err, "map memory")
	}
	return res, nil
}

func (m *DeviceMemory) Unmap() {
	vk.UnmapMemory(m.Device.VKDevice, m.VKDeviceMemory)
}

// MapCopyUnmap copies data to the start of the allocation.
func (m *DeviceMemory) MapCopyUnmap(data []byte) error {
	ptr, err := m.Map(0, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	m.Unmap()
	return nil
}

// QueueDestroy defers freeing the memory to d. Anything bound to it must be
// queued on the same Deleter; the queue frees memory last.
func (m *DeviceMemory) QueueDestroy(d Deleter) {
	d.QueueDelete(KindDeviceMemory, m.VKDeviceMemory)
	m.VKDeviceMemory = vk.NullDeviceMemory
}

func (m *DeviceMemory) Destroy() {
	vk.FreeMemory(m.Device.VKDevice, m.VKDeviceMemory, nil)
}
