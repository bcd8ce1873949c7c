package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CommandPool backs every command buffer the frame cycle records into. It is
// only touched from the submitting thread.
type CommandPool struct {
	Device        *Device
	FamilyIndex   int
	VKCommandPool vk.CommandPool
}

func (c *CommandPool) Destroy() {
	vk.DestroyCommandPool(c.Device.VKDevice, c.VKCommandPool, nil)
}

func (c *CommandPool) AllocateBuffers(count int) ([]vk.CommandBuffer, error) {
	var commandBufferAllocateInfo = vk.CommandBufferAllocateInfo{}
	commandBufferAllocateInfo.SType = vk.StructureTypeCommandBufferAllocateInfo
	commandBufferAllocateInfo.CommandPool = c.VKCommandPool
	commandBufferAllocateInfo.Level = vk.CommandBufferLevelPrimary
	commandBufferAllocateInfo.CommandBufferCount = uint32(count)

	cmdBuffers := make([]vk.CommandBuffer, count)

	err := vk.Error(vk.AllocateCommandBuffers(c.Device.VKDevice, &commandBufferAllocateInfo, cmdBuffers))
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d command buffers", count)
	}
	return cmdBuffers, nil
}

// AllocateBuffer allocates a single primary command buffer, typically for
// upload work handed to FrameCycle.QueueBeforeRender.
func (c *CommandPool) AllocateBuffer() (*CommandBuffer, error) {
	ret, err := c.AllocateBuffers(1)
	if err != nil {
		return nil, err
	}
	return &CommandBuffer{VKCommandBuffer: ret[0]}, nil
}

func (c *CommandPool) FreeBuffers(bs []vk.CommandBuffer) {
	if len(bs) == 0 {
		return
	}
	vk.FreeCommandBuffers(c.Device.VKDevice, c.VKCommandPool, uint32(len(bs)), bs)
}

func (c *CommandPool) FreeBuffer(b *CommandBuffer) {
	c.FreeBuffers([]vk.CommandBuffer{b.VKCommandBuffer})
}

// CreateCommandPool creates a pool whose buffers can be individually reset,
// which the frame cycle relies on when it re-begins a slot's buffers.
func (d *Device) CreateCommandPool(familyIndex int) (*CommandPool, error) {
	var commandPoolCreateInfo = vk.CommandPoolCreateInfo{}
	commandPoolCreateInfo.SType = vk.StructureTypeCommandPoolCreateInfo
	commandPoolCreateInfo.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit | vk.CommandPoolCreateTransientBit)
	commandPoolCreateInfo.QueueFamilyIndex = uint32(familyIndex)

	var commandPool vk.CommandPool

	err := vk.Error(vk.CreateCommandPool(d.VKDevice, &commandPoolCreateInfo, nil, &commandPool))
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	return &CommandPool{
		Device:        d,
		FamilyIndex:   familyIndex,
		VKCommandPool: commandPool,
	}, nil
}
