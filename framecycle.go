package vkframe

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

// FrameState is where the frame cycle is in the acquire, record, submit,
// present sequence.
type FrameState int

const (
	StateIdle FrameState = iota
	StateAcquiring
	StateRecording
	StateSubmitted
	StatePresented
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StatePresented:
		return "presented"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

type FrameCycleOptions struct {
	// FenceTimeout bounds the wait on a slot fence. Zero means
	// DefaultFenceTimeout.
	FenceTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *Metrics
}

// FrameCycle rotates two frame slots through acquire, record, submit and
// present, and destroys GPU objects only once the slot they were retired in
// has been observed idle. It must be driven from a single goroutine.
type FrameCycle struct {
	gpu       GPU
	presenter Presenter
	timeout   time.Duration
	log       *zap.Logger
	metrics   *Metrics

	frames     [NumFrameSlots]frameSlot
	curFrame   uint64
	state      FrameState
	imageIndex uint32

	// cmdQueue holds buffers to submit ahead of the render buffer.
	cmdQueue []vk.CommandBuffer

	// globalDeletes collects deletes made outside of a recording frame. It is
	// moved into a slot right after that slot has been drained.
	globalDeletes DeletionQueue

	cmdBufs   []vk.CommandBuffer
	destroyed bool
}

// NewFrameCycle allocates the command buffers and sync objects for every
// slot.
func NewFrameCycle(gpu GPU, presenter Presenter, opts *FrameCycleOptions) (*FrameCycle, error) {
	if opts == nil {
		opts = &FrameCycleOptions{}
	}
	fc := &FrameCycle{
		gpu:       gpu,
		presenter: presenter,
		timeout:   opts.FenceTimeout,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
	if fc.timeout <= 0 {
		fc.timeout = DefaultFenceTimeout
	}
	if fc.log == nil {
		fc.log = zap.NewNop()
	}

	cmds, err := gpu.AllocateCommandBuffers(2 * NumFrameSlots)
	if err != nil {
		return nil, errors.Wrap(err, "allocate frame command buffers")
	}
	fc.cmdBufs = cmds

	for i := range fc.frames {
		if err := fc.frames[i].init(gpu, cmds[2*i], cmds[2*i+1]); err != nil {
			fc.release()
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}
	}
	return fc, nil
}

func (fc *FrameCycle) slot() *frameSlot {
	return &fc.frames[slotIndex(fc.curFrame)]
}

// BeginRender waits until the current slot's previous work has completed,
// destroys everything retired under that slot, acquires the next swapchain
// image and begins the slot's render command buffer.
//
// ErrSwapchainOutOfDate leaves the cycle idle with the frame counter
// unchanged; rebuild the swapchain and call BeginRender again. Any error for
// which IsFatal reports true means the device is unusable.
func (fc *FrameCycle) BeginRender() (vk.CommandBuffer, uint32, error) {
	if fc.destroyed {
		panic("vkframe: BeginRender on a destroyed frame cycle")
	}
	if fc.state != StateIdle {
		panic(fmt.Sprintf("vkframe: BeginRender while %s", fc.state))
	}
	frame := fc.slot()
	fc.state = StateAcquiring

	start := time.Now()
	if err := fc.gpu.WaitForFence(frame.fence, fc.timeout); err != nil {
		fc.state = StateIdle
		if errors.Is(err, ErrFenceTimeout) {
			fc.log.Error("frame fence did not signal",
				zap.Uint64("frame", fc.curFrame),
				zap.Int("slot", slotIndex(fc.curFrame)),
				zap.Duration("timeout", fc.timeout))
		}
		return nil, 0, errors.Wrapf(err, "wait for frame %d", fc.curFrame)
	}
	fc.metrics.fenceWaited(time.Since(start))

	// Everything submitted under this slot has finished.
	fc.drain(&frame.deleteList, "slot")

	imageIndex, err := fc.presenter.AcquireNextImage(frame.acquireSemaphore)
	if err != nil {
		fc.state = StateIdle
		if errors.Is(err, ErrSwapchainOutOfDate) {
			fc.metrics.outOfDate()
			fc.log.Debug("swapchain out of date on acquire", zap.Uint64("frame", fc.curFrame))
			return nil, 0, err
		}
		return nil, 0, errors.Wrap(err, "acquire next image")
	}

	// The fence stays signaled until an image is in hand, so a retry after
	// ErrSwapchainOutOfDate does not block on it.
	if err := fc.gpu.ResetFence(frame.fence); err != nil {
		fc.abandon(false)
		return nil, 0, errors.Wrap(err, "reset frame fence")
	}
	frame.deleteList.Take(&fc.globalDeletes)

	if err := fc.gpu.BeginCommandBuffer(frame.cmdBuf, true); err != nil {
		fc.abandon(true)
		return nil, 0, errors.Wrap(err, "begin render command buffer")
	}
	fc.imageIndex = imageIndex
	fc.state = StateRecording
	return frame.cmdBuf, imageIndex, nil
}

// InitCommandBuffer returns the current slot's one-time command buffer,
// beginning it on first use in the cycle. EndRender submits it ahead of
// everything else.
func (fc *FrameCycle) InitCommandBuffer() (vk.CommandBuffer, error) {
	if fc.state != StateRecording {
		panic(fmt.Sprintf("vkframe: InitCommandBuffer while %s", fc.state))
	}
	frame := fc.slot()
	if !frame.hasInitCommands {
		if err := fc.gpu.BeginCommandBuffer(frame.cmdInit, true); err != nil {
			return nil, errors.Wrap(err, "begin init command buffer")
		}
		frame.hasInitCommands = true
	}
	return frame.cmdInit, nil
}

// QueueBeforeRender schedules cmd, already recorded, to run ahead of the
// render buffer in the next submission. Buffers run in the order queued.
func (fc *FrameCycle) QueueBeforeRender(cmd vk.CommandBuffer) {
	if isNull(cmd) {
		panic("vkframe: QueueBeforeRender with a null command buffer")
	}
	fc.cmdQueue = append(fc.cmdQueue, cmd)
}

// EndRender closes the render buffer, submits it with the slot's fence and
// presents the acquired image. It does not wait for the GPU. The frame
// counter advances even when presentation reports ErrSwapchainOutOfDate,
// since the submission is already in flight.
func (fc *FrameCycle) EndRender() error {
	if fc.state != StateRecording {
		panic(fmt.Sprintf("vkframe: EndRender while %s", fc.state))
	}
	frame := fc.slot()

	cmds := make([]vk.CommandBuffer, 0, len(fc.cmdQueue)+2)
	if frame.hasInitCommands {
		frame.hasInitCommands = false
		if err := fc.gpu.EndCommandBuffer(frame.cmdInit); err != nil {
			fc.abandon(true)
			return errors.Wrap(err, "end init command buffer")
		}
		cmds = append(cmds, frame.cmdInit)
	}
	cmds = append(cmds, fc.cmdQueue...)
	clear(fc.cmdQueue)
	fc.cmdQueue = fc.cmdQueue[:0]

	if err := fc.gpu.EndCommandBuffer(frame.cmdBuf); err != nil {
		fc.abandon(true)
		return errors.Wrap(err, "end render command buffer")
	}
	cmds = append(cmds, frame.cmdBuf)

	err := fc.gpu.Submit(Submission{
		Commands: cmds,
		Wait:     frame.acquireSemaphore,
		Signal:   frame.renderSemaphore,
		Fence:    frame.fence,
	})
	if err != nil {
		fc.abandon(true)
		return errors.Wrapf(err, "submit frame %d", fc.curFrame)
	}
	fc.state = StateSubmitted

	err = fc.presenter.Present(fc.imageIndex, frame.renderSemaphore)
	fc.state = StatePresented
	fc.curFrame++
	fc.state = StateIdle

	if err != nil {
		if errors.Is(err, ErrSwapchainOutOfDate) {
			fc.metrics.outOfDate()
			fc.log.Debug("swapchain out of date on present", zap.Uint64("frame", fc.curFrame-1))
			return err
		}
		return errors.Wrap(err, "present")
	}
	fc.metrics.framePresented()
	return nil
}

// abandon drops a frame that failed after its image was acquired. An empty
// batch waits on the acquire semaphore and, if reset is true, signals the
// slot fence, so the slot is usable again. Handles retired during the frame
// go back to the global queue: the other slot may still be running work
// that references them.
func (fc *FrameCycle) abandon(reset bool) {
	frame := fc.slot()
	clear(fc.cmdQueue)
	fc.cmdQueue = fc.cmdQueue[:0]
	frame.hasInitCommands = false

	frame.deleteList.Append(&fc.globalDeletes)
	fc.globalDeletes.Take(&frame.deleteList)

	release := Submission{Wait: frame.acquireSemaphore}
	if reset {
		release.Fence = frame.fence
	}
	if err := fc.gpu.Submit(release); err != nil {
		fc.log.Warn("could not release abandoned frame, recreating its sync objects",
			zap.Uint64("frame", fc.curFrame), zap.Error(err))
		if err := fc.recreateSync(frame); err != nil {
			fc.log.Error("frame slot unusable", zap.Int("slot", slotIndex(fc.curFrame)), zap.Error(err))
		}
	}
	fc.metrics.frameAbandoned()
	fc.state = StateIdle
}

// recreateSync replaces a slot's fence and acquire semaphore after the
// device has gone idle. The new fence starts signaled.
func (fc *FrameCycle) recreateSync(frame *frameSlot) error {
	if err := fc.gpu.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle")
	}
	fc.gpu.DestroyFence(frame.fence)
	fc.gpu.DestroySemaphore(frame.acquireSemaphore)
	frame.fence = vk.NullFence
	frame.acquireSemaphore = vk.NullSemaphore

	var err error
	if frame.fence, err = fc.gpu.CreateFence(true); err != nil {
		return errors.Wrap(err, "create frame fence")
	}
	if frame.acquireSemaphore, err = fc.gpu.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "create acquire semaphore")
	}
	return nil
}

// QueueDelete defers destruction of handle. While a frame is recording the
// handle joins that frame's slot and is destroyed once the slot comes around
// again; otherwise it waits in the global queue until the next frame begins.
func (fc *FrameCycle) QueueDelete(kind ObjectKind, handle interface{}) {
	if fc.state == StateRecording {
		fc.slot().deleteList.QueueDelete(kind, handle)
		return
	}
	fc.globalDeletes.QueueDelete(kind, handle)
}

// Delete returns the global pending-deletion queue.
func (fc *FrameCycle) Delete() *DeletionQueue {
	return &fc.globalDeletes
}

// CommandBuffer returns the render buffer of the current slot. It is only
// meaningful between BeginRender and EndRender.
func (fc *FrameCycle) CommandBuffer() vk.CommandBuffer {
	return fc.slot().cmdBuf
}

// ImageIndex returns the swapchain image acquired by the last BeginRender.
func (fc *FrameCycle) ImageIndex() uint32 {
	return fc.imageIndex
}

// FrameCount returns how many frames have been submitted.
func (fc *FrameCycle) FrameCount() uint64 {
	return fc.curFrame
}

func (fc *FrameCycle) State() FrameState {
	return fc.state
}

// WaitIdle blocks until the device has finished all submitted work.
func (fc *FrameCycle) WaitIdle() error {
	return fc.gpu.WaitIdle()
}

func (fc *FrameCycle) drain(q *DeletionQueue, owner string) {
	if q.IsEmpty() {
		return
	}
	fc.metrics.deletesPending(q)
	n := q.PerformDeletes(fc.gpu)
	fc.log.Debug("destroyed retired objects",
		zap.String("queue", owner),
		zap.Int("count", n),
		zap.Uint64("frame", fc.curFrame))
}

// Destroy waits for both slots, destroys everything still queued (slot 0,
// slot 1, then the global queue) and releases the cycle's sync objects and
// command buffers. The device itself is left to the caller.
func (fc *FrameCycle) Destroy() error {
	if fc.destroyed {
		return nil
	}
	var firstErr error

	idle := true
	for i := range fc.frames {
		// A recording slot's fence was reset and never submitted.
		if fc.state == StateRecording && i == slotIndex(fc.curFrame) {
			idle = false
			continue
		}
		if err := fc.gpu.WaitForFence(fc.frames[i].fence, fc.timeout); err != nil {
			fc.log.Warn("frame slot not idle at teardown", zap.Int("slot", i), zap.Error(err))
			idle = false
		}
	}
	if !idle {
		fc.log.Warn("waiting for device idle before teardown")
		if err := fc.gpu.WaitIdle(); err != nil {
			firstErr = errors.Wrap(err, "wait idle at teardown")
		}
	}

	for i := range fc.frames {
		fc.drain(&fc.frames[i].deleteList, fmt.Sprintf("slot %d", i))
	}
	fc.drain(&fc.globalDeletes, "global")

	fc.release()
	fc.state = StateIdle
	fc.destroyed = true
	return firstErr
}

func (fc *FrameCycle) release() {
	for i := range fc.frames {
		fc.frames[i].release(fc.gpu)
	}
	if len(fc.cmdBufs) > 0 {
		fc.gpu.FreeCommandBuffers(fc.cmdBufs)
		fc.cmdBufs = nil
	}
	clear(fc.cmdQueue)
	fc.cmdQueue = nil
}
