package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type Sampler struct {
	Device    *Device
	VKSampler vk.Sampler
}

// CreateSampler creates a sampler with the same filter and address mode on
// every axis.
func (d *Device) CreateSampler(filter vk.Filter, mode vk.SamplerAddressMode) (*Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: mode,
		AddressModeV: mode,
		AddressModeW: mode,
		MaxLod:       1,
		BorderColor:  vk.BorderColorFloatOpaqueBlack,
	}

	var sampler vk.Sampler
	if err := vk.Error(vk.CreateSampler(d.VKDevice, &createInfo, nil, &sampler)); err != nil {
		return nil, errors.Wrap(err, "create sampler")
	}
	return &Sampler{Device: d, VKSampler: sampler}, nil
}

func (s *Sampler) QueueDestroy(d Deleter) {
	d.QueueDelete(KindSampler, s.VKSampler)
	s.VKSampler = vk.NullSampler
}

func (s *Sampler) Destroy() {
	vk.DestroySampler(s.Device.VKDevice, s.VKSampler, nil)
}
