package vkframe

import (
	vk "github.com/vulkan-go/vulkan"
)

// CreateSemaphore creates a native vulkan semaphore object
func (d *Device) CreateSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var sema vk.Semaphore

	err := vk.Error(vk.CreateSemaphore(d.VKDevice, &semaphoreCreateInfo, nil, &sema))

	return sema, err
}

func (d *Device) DestroySemaphore(s vk.Semaphore) {
	vk.DestroySemaphore(d.VKDevice, s, nil)
}
