package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

var (
	// ErrSwapchainOutOfDate is returned when the presentation engine reports
	// the swapchain as out of date. Swapchain-dependent resources must be
	// rebuilt before the next BeginRender; the render loop keeps going.
	ErrSwapchainOutOfDate = errors.New("vkframe: swapchain out of date")

	// ErrFenceTimeout is returned when a frame slot's fence does not signal
	// within the configured timeout. The GPU is considered hung.
	ErrFenceTimeout = errors.New("vkframe: timed out waiting for frame fence")

	// ErrDeviceLost is returned when any GPU call reports the device lost.
	ErrDeviceLost = errors.New("vkframe: device lost")
)

// IsFatal reports whether err means the render loop must stop and the
// context be torn down. Out-of-date swapchains are not fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFenceTimeout) || errors.Is(err, ErrDeviceLost)
}

// vkResult maps a vk.Result onto this package's sentinels where one applies.
// vk.Suboptimal is a success code: the image can still be presented.
func vkResult(res vk.Result) error {
	switch res {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.Timeout:
		return ErrFenceTimeout
	case vk.ErrorDeviceLost:
		return ErrDeviceLost
	case vk.ErrorOutOfDate:
		return ErrSwapchainOutOfDate
	}
	return vk.Error(res)
}
