package vkframe

import (
	"fmt"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Queue is the single graphics and present capable queue the frame cycle
// submits to.
type Queue struct {
	Device      *Device
	FamilyIndex int
	VKQueue     vk.Queue
}

func (q *Queue) WaitIdle() error {
	return vkResult(vk.QueueWaitIdle(q.VKQueue))
}

// Submit hands one batch to the queue. It returns as soon as the batch is
// enqueued; batch.Fence signals once the GPU has finished it.
func (q *Queue) Submit(batch Submission) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(batch.Commands)),
		PCommandBuffers:    batch.Commands,
	}
	if !isNull(batch.Wait) {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{batch.Wait}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if !isNull(batch.Signal) {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{batch.Signal}
	}

	err := vkResult(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, batch.Fence))
	return errors.Wrapf(err, "submit %d command buffers", len(batch.Commands))
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s FamilyIndex: %d}", q.Device.String(), q.FamilyIndex)
}
