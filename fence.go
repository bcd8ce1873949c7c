package vkframe

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CreateFence creates a fence. A presignalled fence lets the first wait on it
// return immediately.
func (d *Device) CreateFence(presignalled bool) (vk.Fence, error) {
	var fence vk.Fence
	var fenceCreateInfo = vk.FenceCreateInfo{}
	fenceCreateInfo.SType = vk.StructureTypeFenceCreateInfo
	if presignalled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	err := vk.Error(vk.CreateFence(d.VKDevice, &fenceCreateInfo, nil, &fence))
	if err != nil {
		return vk.NullFence, errors.Wrap(err, "create fence")
	}
	return fence, nil
}

func (d *Device) DestroyFence(f vk.Fence) {
	vk.DestroyFence(d.VKDevice, f, nil)
}

// WaitForFence blocks until f signals or timeout elapses. A timeout comes
// back as ErrFenceTimeout.
func (d *Device) WaitForFence(f vk.Fence, timeout time.Duration) error {
	res := vk.WaitForFences(d.VKDevice, 1, []vk.Fence{f}, vk.True, uint64(timeout.Nanoseconds()))
	return vkResult(res)
}

func (d *Device) ResetFence(f vk.Fence) error {
	return vkResult(vk.ResetFences(d.VKDevice, 1, []vk.Fence{f}))
}
