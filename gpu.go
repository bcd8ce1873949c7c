package vkframe

import (
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// Submission is one batch handed to the device queue by EndRender.
type Submission struct {
	// Commands run in order: the init buffer if one was recorded, buffers
	// queued with QueueBeforeRender, then the render buffer.
	Commands []vk.CommandBuffer
	// Wait is the semaphore signaled by image acquisition.
	Wait vk.Semaphore
	// Signal is waited on by presentation.
	Signal vk.Semaphore
	// Fence signals once every command in the batch has completed.
	Fence vk.Fence
}

// GPU is the set of device operations a FrameCycle drives. DeviceGPU is the
// vulkan implementation.
type GPU interface {
	Destroyer

	CreateFence(presignalled bool) (vk.Fence, error)
	DestroyFence(fence vk.Fence)
	// WaitForFence returns ErrFenceTimeout if fence did not signal in time.
	WaitForFence(fence vk.Fence, timeout time.Duration) error
	ResetFence(fence vk.Fence) error

	CreateSemaphore() (vk.Semaphore, error)
	DestroySemaphore(s vk.Semaphore)

	AllocateCommandBuffers(count int) ([]vk.CommandBuffer, error)
	FreeCommandBuffers(cmds []vk.CommandBuffer)
	BeginCommandBuffer(cmd vk.CommandBuffer, oneTime bool) error
	EndCommandBuffer(cmd vk.CommandBuffer) error

	Submit(batch Submission) error
	WaitIdle() error
}

// Presenter is the presentation half of a swapchain.
type Presenter interface {
	// AcquireNextImage may block until an image is free. It returns
	// ErrSwapchainOutOfDate when the swapchain must be rebuilt.
	AcquireNextImage(signal vk.Semaphore) (uint32, error)
	// Present queues imageIndex for display once wait is signaled.
	Present(imageIndex uint32, wait vk.Semaphore) error
}

// DeviceGPU implements GPU on a vulkan device, one queue and the command
// pool owned by the frame cycle.
type DeviceGPU struct {
	Device      *Device
	Queue       *Queue
	CommandPool *CommandPool
}

var _ GPU = (*DeviceGPU)(nil)

func (g *DeviceGPU) DestroyObject(kind ObjectKind, handle interface{}) {
	g.Device.DestroyObject(kind, handle)
}

func (g *DeviceGPU) CreateFence(presignalled bool) (vk.Fence, error) {
	return g.Device.CreateFence(presignalled)
}

func (g *DeviceGPU) DestroyFence(fence vk.Fence) {
	g.Device.DestroyFence(fence)
}

func (g *DeviceGPU) WaitForFence(fence vk.Fence, timeout time.Duration) error {
	return g.Device.WaitForFence(fence, timeout)
}

func (g *DeviceGPU) ResetFence(fence vk.Fence) error {
	return g.Device.ResetFence(fence)
}

func (g *DeviceGPU) CreateSemaphore() (vk.Semaphore, error) {
	return g.Device.CreateSemaphore()
}

func (g *DeviceGPU) DestroySemaphore(s vk.Semaphore) {
	g.Device.DestroySemaphore(s)
}

func (g *DeviceGPU) AllocateCommandBuffers(count int) ([]vk.CommandBuffer, error) {
	return g.CommandPool.AllocateBuffers(count)
}

func (g *DeviceGPU) FreeCommandBuffers(cmds []vk.CommandBuffer) {
	g.CommandPool.FreeBuffers(cmds)
}

func (g *DeviceGPU) BeginCommandBuffer(cmd vk.CommandBuffer, oneTime bool) error {
	return beginCommandBuffer(cmd, oneTime)
}

func (g *DeviceGPU) EndCommandBuffer(cmd vk.CommandBuffer) error {
	return vkResult(vk.EndCommandBuffer(cmd))
}

func (g *DeviceGPU) Submit(batch Submission) error {
	return g.Queue.Submit(batch)
}

func (g *DeviceGPU) WaitIdle() error {
	return g.Device.WaitIdle()
}
