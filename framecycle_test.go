package vkframe

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap/zaptest"
)

func newTestCycle(t *testing.T, opts *FrameCycleOptions) (*FrameCycle, *fakeGPU, *fakePresenter) {
	t.Helper()
	gpu := newFakeGPU()
	presenter := &fakePresenter{gpu: gpu, images: 3}
	if opts == nil {
		opts = &FrameCycleOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	fc, err := NewFrameCycle(gpu, presenter, opts)
	require.NoError(t, err)
	return fc, gpu, presenter
}

func runFrame(t *testing.T, fc *FrameCycle) {
	t.Helper()
	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	require.NoError(t, fc.EndRender())
}

func TestSlotIndexAlternates(t *testing.T) {
	for n := uint64(0); n < 10; n++ {
		assert.Equal(t, slotIndex(n), slotIndex(n+2))
		assert.NotEqual(t, slotIndex(n), slotIndex(n+1))
	}
	assert.Equal(t, 0, slotIndex(0))
	assert.Equal(t, 1, slotIndex(1))
}

func TestNewFrameCycleSlotsAreDistinct(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)

	s0, s1 := &fc.frames[0], &fc.frames[1]
	assert.NotEqual(t, s0.fence, s1.fence)
	assert.NotEqual(t, s0.cmdBuf, s1.cmdBuf)
	assert.NotEqual(t, s0.cmdInit, s1.cmdInit)
	assert.NotEqual(t, s0.acquireSemaphore, s0.renderSemaphore)
	assert.True(t, gpu.signaled[s0.fence], "fences start signaled")
	assert.True(t, gpu.signaled[s1.fence], "fences start signaled")
	assert.Equal(t, StateIdle, fc.State())
	assert.Equal(t, uint64(0), fc.FrameCount())
}

func TestNewFrameCycleReleasesOnFailure(t *testing.T) {
	gpu := newFakeGPU()
	gpu.failSemaphore = 3 // first semaphore of slot 1
	_, err := NewFrameCycle(gpu, &fakePresenter{gpu: gpu, images: 2}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame slot 1")

	assert.Contains(t, gpu.events, "free 4 command buffers")
	destroyedFences := 0
	for _, e := range gpu.events {
		if strings.HasPrefix(e, "destroy fence") {
			destroyedFences++
		}
	}
	assert.Equal(t, 2, destroyedFences)
}

func TestFirstTwoFramesDoNotBlock(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	gpu.hold = true // nothing submitted ever completes

	runFrame(t, fc)
	runFrame(t, fc)
	assert.Equal(t, uint64(2), fc.FrameCount())

	_, _, err := fc.BeginRender()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFenceTimeout))
	assert.True(t, IsFatal(err))
	assert.Equal(t, StateIdle, fc.State())
	assert.Equal(t, uint64(2), fc.FrameCount())
}

func TestBeginRenderUsesCurrentSlot(t *testing.T) {
	fc, gpu, presenter := newTestCycle(t, nil)

	for n := 0; n < 4; n++ {
		slot := &fc.frames[n%2]
		mark := len(gpu.events)

		cmd, imageIndex, err := fc.BeginRender()
		require.NoError(t, err)
		assert.Equal(t, slot.cmdBuf, cmd)
		assert.Equal(t, cmd, fc.CommandBuffer())
		assert.Equal(t, imageIndex, fc.ImageIndex())
		assert.Equal(t, StateRecording, fc.State())

		assert.Equal(t, []string{
			"wait " + gpu.name(slot.fence),
			"acquire",
			"reset " + gpu.name(slot.fence),
			"begin " + gpu.name(slot.cmdBuf),
		}, gpu.events[mark:])

		require.NoError(t, fc.EndRender())
		last := gpu.submissions[len(gpu.submissions)-1]
		assert.Equal(t, slot.fence, last.Fence)
		assert.Equal(t, slot.acquireSemaphore, last.Wait)
		assert.Equal(t, slot.renderSemaphore, last.Signal)
	}
	assert.Equal(t, []uint32{0, 1, 2, 0}, presenter.presented)
}

func TestDeleteWhileRecordingWaitsTwoFrames(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	buf := fakeHandle[vk.Buffer](1000)

	// frame 0
	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	fc.QueueDelete(KindBuffer, buf)
	assert.Equal(t, 0, fc.Delete().Len(), "recording deletes belong to the slot")
	require.NoError(t, fc.EndRender())

	// frame 1 runs on the other slot
	runFrame(t, fc)
	assert.False(t, gpu.wasDestroyed(buf))

	// frame 2 reuses slot 0: destroyed after its fence wait, before acquire
	mark := len(gpu.events)
	_, _, err = fc.BeginRender()
	require.NoError(t, err)
	assert.True(t, gpu.wasDestroyed(buf))

	wait := gpu.indexOf("wait "+gpu.name(fc.frames[0].fence), mark)
	destroy := gpu.indexOf("destroy buffer "+gpu.name(buf), mark)
	acquire := gpu.indexOf("acquire", mark)
	require.NotEqual(t, -1, wait)
	require.NotEqual(t, -1, destroy)
	assert.Less(t, wait, destroy)
	assert.Less(t, destroy, acquire)
	require.NoError(t, fc.EndRender())
}

func TestDeleteOutsideFrameGoesThroughGlobalQueue(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	img := fakeHandle[vk.Image](1000)

	fc.QueueDelete(KindImage, img)
	assert.Equal(t, 1, fc.Delete().Len())

	// frame 0 takes the global queue into slot 0
	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	assert.True(t, fc.Delete().IsEmpty())
	assert.Equal(t, 1, fc.frames[0].deleteList.Len())
	require.NoError(t, fc.EndRender())

	runFrame(t, fc)
	assert.False(t, gpu.wasDestroyed(img))

	runFrame(t, fc)
	assert.True(t, gpu.wasDestroyed(img))
}

func TestDeleteBetweenFramesLandsInNextSlot(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	runFrame(t, fc)

	// Queued after frame 0 ended: frame 1 (slot 1) takes it.
	s := fakeHandle[vk.Sampler](1000)
	fc.QueueDelete(KindSampler, s)

	runFrame(t, fc)
	assert.Equal(t, 1, fc.frames[1].deleteList.Len())
	runFrame(t, fc)
	assert.False(t, gpu.wasDestroyed(s))
	runFrame(t, fc)
	assert.True(t, gpu.wasDestroyed(s))
}

func TestStaleAcquireDoesNotAdvance(t *testing.T) {
	metrics := NewMetrics(nil)
	fc, gpu, presenter := newTestCycle(t, &FrameCycleOptions{Metrics: metrics})
	presenter.acquireErrs = []error{ErrSwapchainOutOfDate}

	pending := fakeHandle[vk.Buffer](1000)
	fc.QueueDelete(KindBuffer, pending)

	_, _, err := fc.BeginRender()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSwapchainOutOfDate))
	assert.False(t, IsFatal(err))
	assert.Equal(t, StateIdle, fc.State())
	assert.Equal(t, uint64(0), fc.FrameCount())

	slot := &fc.frames[0]
	assert.True(t, gpu.signaled[slot.fence], "fence left signaled for the retry")
	assert.Equal(t, -1, gpu.indexOf("reset "+gpu.name(slot.fence), 0))
	assert.Equal(t, 1, fc.Delete().Len(), "global queue untouched")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SwapchainOutOfDate))

	// Retry after the caller rebuilds.
	cmd, _, err := fc.BeginRender()
	require.NoError(t, err)
	assert.Equal(t, slot.cmdBuf, cmd)
	assert.True(t, fc.Delete().IsEmpty())
	require.NoError(t, fc.EndRender())
	assert.Equal(t, uint64(1), fc.FrameCount())
	assert.False(t, gpu.wasDestroyed(pending))
}

func TestAcquireErrorIsWrapped(t *testing.T) {
	fc, _, presenter := newTestCycle(t, nil)
	presenter.acquireErrs = []error{ErrDeviceLost}

	_, _, err := fc.BeginRender()
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "acquire next image")
	assert.Equal(t, StateIdle, fc.State())
}

func TestSubmissionOrder(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	a := fakeHandle[vk.CommandBuffer](1000)
	b := fakeHandle[vk.CommandBuffer](1001)
	c := fakeHandle[vk.CommandBuffer](1002)

	// Queued before the frame starts still goes into it.
	fc.QueueBeforeRender(a)

	render, _, err := fc.BeginRender()
	require.NoError(t, err)
	initCmd, err := fc.InitCommandBuffer()
	require.NoError(t, err)
	fc.QueueBeforeRender(b)
	fc.QueueBeforeRender(c)
	require.NoError(t, fc.EndRender())

	require.Len(t, gpu.submissions, 1)
	assert.Equal(t, []vk.CommandBuffer{initCmd, a, b, c, render}, gpu.submissions[0].Commands)

	// Nothing carries over.
	runFrame(t, fc)
	require.Len(t, gpu.submissions, 2)
	assert.Equal(t, []vk.CommandBuffer{fc.frames[1].cmdBuf}, gpu.submissions[1].Commands)
}

func TestInitCommandBufferBegunOnce(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)

	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	first, err := fc.InitCommandBuffer()
	require.NoError(t, err)
	second, err := fc.InitCommandBuffer()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, fc.frames[0].cmdInit, first)

	begins := 0
	for _, e := range gpu.events {
		if e == "begin "+gpu.name(first) {
			begins++
		}
	}
	assert.Equal(t, 1, begins)

	require.NoError(t, fc.EndRender())
	assert.False(t, fc.frames[0].hasInitCommands)

	// Slot 0 again, no init requested this time.
	runFrame(t, fc)
	runFrame(t, fc)
	assert.Equal(t, []vk.CommandBuffer{fc.frames[0].cmdBuf}, gpu.submissions[2].Commands)
}

func TestMisuseOfFrameStatePanics(t *testing.T) {
	fc, _, _ := newTestCycle(t, nil)

	assert.Panics(t, func() { fc.EndRender() }, "end without begin")
	assert.Panics(t, func() { fc.InitCommandBuffer() }, "init outside a frame")
	assert.Panics(t, func() { fc.QueueBeforeRender(nil) }, "null command buffer")

	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	assert.Panics(t, func() { fc.BeginRender() }, "begin twice")
	require.NoError(t, fc.EndRender())
	assert.Panics(t, func() { fc.EndRender() }, "end twice")
}

func TestPresentOutOfDateStillAdvances(t *testing.T) {
	metrics := NewMetrics(nil)
	fc, _, presenter := newTestCycle(t, &FrameCycleOptions{Metrics: metrics})
	presenter.presentErrs = []error{ErrSwapchainOutOfDate}

	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	err = fc.EndRender()
	assert.True(t, errors.Is(err, ErrSwapchainOutOfDate))
	assert.Equal(t, uint64(1), fc.FrameCount())
	assert.Equal(t, StateIdle, fc.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SwapchainOutOfDate))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.FramesPresented))

	runFrame(t, fc)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FramesPresented))
}

func TestMetricsCountDeferredDeletes(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	metrics := NewMetrics(reg)
	fc, _, _ := newTestCycle(t, &FrameCycleOptions{Metrics: metrics})

	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	fc.QueueDelete(KindBuffer, fakeHandle[vk.Buffer](1000))
	fc.QueueDelete(KindBuffer, fakeHandle[vk.Buffer](1001))
	fc.QueueDelete(KindDeviceMemory, fakeHandle[vk.DeviceMemory](1002))
	require.NoError(t, fc.EndRender())
	runFrame(t, fc)
	runFrame(t, fc)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DeferredDeletes.WithLabelValues("buffer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeferredDeletes.WithLabelValues("device_memory")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.FramesPresented))

	n, err := testutil.GatherAndCount(reg, "vkframe_fence_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDestroyDrainsSlotsThenGlobal(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	a := fakeHandle[vk.Buffer](1000)
	b := fakeHandle[vk.Buffer](1001)
	c := fakeHandle[vk.Buffer](1002)

	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	fc.QueueDelete(KindBuffer, a)
	require.NoError(t, fc.EndRender())

	_, _, err = fc.BeginRender()
	require.NoError(t, err)
	fc.QueueDelete(KindBuffer, b)
	require.NoError(t, fc.EndRender())

	fc.QueueDelete(KindBuffer, c)

	fence0 := gpu.name(fc.frames[0].fence)
	fence1 := gpu.name(fc.frames[1].fence)
	mark := len(gpu.events)
	require.NoError(t, fc.Destroy())

	assert.Equal(t, []destroyedObject{
		{KindBuffer, a},
		{KindBuffer, b},
		{KindBuffer, c},
	}, gpu.destroyed)
	assert.Equal(t, 0, gpu.waitIdles, "both slots were idle")

	// Both fences are waited on before anything is destroyed.
	wait0 := gpu.indexOf("wait "+fence0, mark)
	wait1 := gpu.indexOf("wait "+fence1, mark)
	firstDestroy := gpu.indexOf("destroy buffer "+gpu.name(a), mark)
	require.NotEqual(t, -1, wait0)
	require.NotEqual(t, -1, wait1)
	assert.Less(t, wait0, firstDestroy)
	assert.Less(t, wait1, firstDestroy)

	assert.Contains(t, gpu.events, "destroy fence "+fence0)
	assert.Contains(t, gpu.events, "destroy fence "+fence1)
	assert.Contains(t, gpu.events, "free 4 command buffers")
	assert.Len(t, gpu.freed, 4)

	require.NoError(t, fc.Destroy(), "second destroy is a no-op")
	assert.Len(t, gpu.destroyed, 3)
}

func TestDestroyWhileRecordingWaitsForDevice(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	gpu.hold = true

	runFrame(t, fc)
	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	fc.QueueDelete(KindImageView, fakeHandle[vk.ImageView](1000))

	require.NoError(t, fc.Destroy())
	assert.Equal(t, 1, gpu.waitIdles)
	assert.Len(t, gpu.destroyed, 1)
	assert.Equal(t, StateIdle, fc.State())
	assert.Panics(t, func() { fc.BeginRender() })
}

func TestSubmitFailureReleasesSlot(t *testing.T) {
	metrics := NewMetrics(nil)
	fc, gpu, presenter := newTestCycle(t, &FrameCycleOptions{Metrics: metrics})
	slot := &fc.frames[0]
	buf := fakeHandle[vk.Buffer](1000)

	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	fc.QueueDelete(KindBuffer, buf)
	gpu.submitErrs = []error{errors.New("out of host memory")}

	err = fc.EndRender()
	require.Error(t, err)
	assert.False(t, IsFatal(err))
	assert.Contains(t, err.Error(), "submit frame 0")
	assert.Equal(t, StateIdle, fc.State())
	assert.Equal(t, uint64(0), fc.FrameCount())
	assert.Empty(t, presenter.presented)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FramesAbandoned))

	// An empty batch consumes the acquire semaphore and signals the fence.
	require.Len(t, gpu.submissions, 1)
	release := gpu.submissions[0]
	assert.Empty(t, release.Commands)
	assert.Equal(t, slot.acquireSemaphore, release.Wait)
	assert.Equal(t, slot.fence, release.Fence)
	assert.True(t, gpu.signaled[slot.fence])

	// The retired buffer went back to the global queue.
	assert.True(t, slot.deleteList.IsEmpty())
	assert.Equal(t, []interface{}{buf}, fc.Delete().Handles(KindBuffer))

	// The retry proceeds on the same slot and does not time out.
	cmd, _, err := fc.BeginRender()
	require.NoError(t, err)
	assert.Equal(t, slot.cmdBuf, cmd)
	assert.False(t, gpu.wasDestroyed(buf))
	require.NoError(t, fc.EndRender())
	assert.Equal(t, uint64(1), fc.FrameCount())

	runFrame(t, fc)
	runFrame(t, fc)
	assert.True(t, gpu.wasDestroyed(buf))
}

func TestBeginCommandBufferFailureReleasesSlot(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	pending := fakeHandle[vk.Sampler](1000)
	fc.QueueDelete(KindSampler, pending)
	gpu.beginErrs = []error{errors.New("begin failed")}

	_, _, err := fc.BeginRender()
	require.Error(t, err)
	assert.False(t, IsFatal(err))
	assert.Equal(t, StateIdle, fc.State())
	assert.True(t, gpu.signaled[fc.frames[0].fence])
	assert.Equal(t, 1, fc.Delete().Len(), "taken handles are handed back")

	runFrame(t, fc)
	assert.Equal(t, uint64(1), fc.FrameCount())
}

func TestEndCommandBufferFailureDropsQueuedBuffers(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	upload := fakeHandle[vk.CommandBuffer](1000)

	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	_, err = fc.InitCommandBuffer()
	require.NoError(t, err)
	fc.QueueBeforeRender(upload)
	gpu.endErrs = []error{errors.New("end failed")}

	err = fc.EndRender()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "end init command buffer")
	assert.False(t, fc.frames[0].hasInitCommands)

	runFrame(t, fc)
	last := gpu.submissions[len(gpu.submissions)-1]
	assert.Equal(t, []vk.CommandBuffer{fc.frames[0].cmdBuf}, last.Commands)
}

func TestFailedReleaseRecreatesSyncObjects(t *testing.T) {
	fc, gpu, _ := newTestCycle(t, nil)
	oldFence := fc.frames[0].fence
	oldSem := fc.frames[0].acquireSemaphore

	_, _, err := fc.BeginRender()
	require.NoError(t, err)
	gpu.submitErrs = []error{errors.New("submit failed"), errors.New("submit failed")}
	require.Error(t, fc.EndRender())

	slot := &fc.frames[0]
	assert.Equal(t, 1, gpu.waitIdles)
	assert.Contains(t, gpu.events, "destroy fence "+gpu.name(oldFence))
	assert.Contains(t, gpu.events, "destroy semaphore "+gpu.name(oldSem))
	assert.NotEqual(t, oldFence, slot.fence)
	assert.NotEqual(t, oldSem, slot.acquireSemaphore)
	assert.True(t, gpu.signaled[slot.fence])

	runFrame(t, fc)
	assert.Equal(t, slot.fence, gpu.submissions[0].Fence)
}

// Random interleavings of deletes, frames, stale swapchains and failed
// submissions must destroy every handle exactly once, and only after every
// submission that could have referenced it has completed.
func TestDeferredDeletesUnderRandomInterleavings(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			fc, gpu, presenter := newTestCycle(t, nil)

			// horizon[h] counts the submissions that may reference h.
			horizon := map[interface{}]int{}
			next := uintptr(5000)
			retire := func() {
				next++
				h := fakeHandle[vk.Buffer](next)
				n := len(gpu.submissions)
				if fc.State() == StateRecording {
					n++
				}
				horizon[h] = n
				fc.QueueDelete(KindBuffer, h)
			}

			for step := 0; step < 150; step++ {
				switch rng.Intn(8) {
				case 0, 1:
					retire()
				case 2:
					presenter.acquireErrs = append(presenter.acquireErrs, ErrSwapchainOutOfDate)
				case 3:
					presenter.presentErrs = append(presenter.presentErrs, ErrSwapchainOutOfDate)
				case 4:
					gpu.submitErrs = append(gpu.submitErrs, errors.New("transient"))
				case 5:
					gpu.beginErrs = append(gpu.beginErrs, errors.New("transient"))
				}

				_, _, err := fc.BeginRender()
				if err != nil {
					require.False(t, IsFatal(err), "step %d: %v", step, err)
					continue
				}
				for i := rng.Intn(3); i > 0; i-- {
					retire()
				}
				err = fc.EndRender()
				require.False(t, IsFatal(err), "step %d: %v", step, err)
			}

			if rng.Intn(2) == 0 {
				if _, _, err := fc.BeginRender(); err == nil {
					retire()
				}
			}
			require.NoError(t, fc.Destroy())

			count := map[interface{}]int{}
			for _, d := range gpu.destroyed {
				count[d.handle]++
			}
			require.Len(t, count, len(horizon))
			for h, n := range horizon {
				assert.Equal(t, 1, count[h], "destroyed exactly once")
				assert.GreaterOrEqual(t, gpu.pendingAtDestroy[h], n,
					"destroyed while a submission that could use it was in flight")
			}
		})
	}
}
