package vkframe

import (
	"fmt"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Device is a logical device together with the physical device it was
// created from.
type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device
}

func (d *Device) Destroy() {
	vk.DestroyDevice(d.VKDevice, nil)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

// WaitIdle blocks until every queue of the device is idle.
func (d *Device) WaitIdle() error {
	return errors.Wrap(vkResult(vk.DeviceWaitIdle(d.VKDevice)), "device wait idle")
}

// GetQueue returns the first queue of the given family.
func (d *Device) GetQueue(familyIndex int) *Queue {
	var vkq vk.Queue

	vk.GetDeviceQueue(d.VKDevice, uint32(familyIndex), 0, &vkq)

	return &Queue{
		Device:      d,
		FamilyIndex: familyIndex,
		VKQueue:     vkq,
	}
}

// FindMemoryType returns the index of a memory type allowed by typeBits that
// has every property in properties.
func (d *Device) FindMemoryType(typeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice.VKPhysicalDevice, &mp)
	mp.Deref()

	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		if typeBits&(1<<i) != 0 &&
			vk.MemoryPropertyFlagBits(mt.PropertyFlags)&properties == properties {
			return i, nil
		}
	}
	return 0, errors.New("no matching memory type found")
}
