package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// NumFrameSlots is how many frames may be in flight at once.
const NumFrameSlots = 2

// slotIndex maps a frame counter onto the slot ring.
func slotIndex(frame uint64) int {
	return int(frame % NumFrameSlots)
}

// frameSlot holds everything one in-flight frame owns. The fence signals once
// all work submitted under the slot has finished, and deleteList is drained
// only after that has been observed.
type frameSlot struct {
	fence            vk.Fence
	acquireSemaphore vk.Semaphore
	renderSemaphore  vk.Semaphore

	// hasInitCommands is set when cmdInit has been begun during the current
	// cycle and must be submitted ahead of everything else.
	hasInitCommands bool
	cmdInit         vk.CommandBuffer
	cmdBuf          vk.CommandBuffer

	deleteList DeletionQueue
}

// init creates the slot's sync objects. The fence starts signaled so the
// first wait on a fresh slot does not block.
func (s *frameSlot) init(gpu GPU, cmdInit, cmdBuf vk.CommandBuffer) error {
	var err error
	s.cmdInit = cmdInit
	s.cmdBuf = cmdBuf

	if s.fence, err = gpu.CreateFence(true); err != nil {
		return errors.Wrap(err, "create frame fence")
	}
	if s.acquireSemaphore, err = gpu.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "create acquire semaphore")
	}
	if s.renderSemaphore, err = gpu.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "create render semaphore")
	}
	return nil
}

// release destroys the slot's sync objects and zeroes it. Command buffers go
// back to the pool with the rest of the ring.
func (s *frameSlot) release(gpu GPU) {
	if !isNull(s.renderSemaphore) {
		gpu.DestroySemaphore(s.renderSemaphore)
	}
	if !isNull(s.acquireSemaphore) {
		gpu.DestroySemaphore(s.acquireSemaphore)
	}
	if !isNull(s.fence) {
		gpu.DestroyFence(s.fence)
	}
	*s = frameSlot{}
}
