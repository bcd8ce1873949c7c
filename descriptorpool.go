package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorPool hands out descriptor sets. Sizes are added with AddPoolSize
// before Create.
type DescriptorPool struct {
	Device           *Device
	VKDescriptorPool vk.DescriptorPool
	sizes            []vk.DescriptorPoolSize
}

func (d *Device) NewDescriptorPool() *DescriptorPool {
	return &DescriptorPool{Device: d}
}

// AddPoolSize reserves count descriptors of dtype.
func (p *DescriptorPool) AddPoolSize(dtype vk.DescriptorType, count int) *DescriptorPool {
	p.sizes = append(p.sizes, vk.DescriptorPoolSize{
		Type:            dtype,
		DescriptorCount: uint32(count),
	})
	return p
}

func (p *DescriptorPool) Create(maxSets int) error {
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(p.sizes)),
		PPoolSizes:    p.sizes,
	}
	err := vk.Error(vk.CreateDescriptorPool(p.Device.VKDevice, &createInfo, nil, &p.VKDescriptorPool))
	return errors.Wrap(err, "create descriptor pool")
}

// Allocate allocates one descriptor set per layout.
func (p *DescriptorPool) Allocate(layouts ...vk.DescriptorSetLayout) ([]vk.DescriptorSet, error) {
	if len(layouts) == 0 {
		return nil, nil
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.VKDescriptorPool,
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, len(layouts))
	if err := vk.Error(vk.AllocateDescriptorSets(p.Device.VKDevice, &allocateInfo, &sets[0])); err != nil {
		return nil, errors.Wrap(err, "allocate descriptor sets")
	}
	return sets, nil
}

func (p *DescriptorPool) Reset() error {
	return errors.Wrap(vk.Error(vk.ResetDescriptorPool(p.Device.VKDevice, p.VKDescriptorPool, 0)), "reset descriptor pool")
}

// QueueDestroy defers destruction of the pool, and every set allocated from
// it, to d.
func (p *DescriptorPool) QueueDestroy(d Deleter) {
	d.QueueDelete(KindDescriptorPool, p.VKDescriptorPool)
	p.VKDescriptorPool = vk.NullDescriptorPool
}

func (p *DescriptorPool) Destroy() {
	vk.DestroyDescriptorPool(p.Device.VKDevice, p.VKDescriptorPool, nil)
}
