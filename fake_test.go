package vkframe

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// fakeHandle builds a distinct non-null handle of any vulkan handle type.
// Values sit well above the lowest legal pointer and outside the Go heap.
func fakeHandle[T any](n uintptr) T {
	v := fakeHandleBase + n*8
	return *(*T)(unsafe.Pointer(&v))
}

const fakeHandleBase uintptr = 1 << 20

type destroyedObject struct {
	kind   ObjectKind
	handle interface{}
}

// fakeGPU records every call in order. Fences signal as soon as work is
// submitted unless hold is set.
type fakeGPU struct {
	next   uintptr
	names  map[interface{}]string
	events []string

	signaled    map[vk.Fence]bool
	hold        bool
	submissions []Submission
	completed   []bool
	destroyed   []destroyedObject
	freed       []vk.CommandBuffer
	waitIdles   int

	// pendingAtDestroy maps each destroyed handle to the index of the oldest
	// submission not yet known complete when it was destroyed.
	pendingAtDestroy map[interface{}]int

	// Errors returned, one per call, before the call behaves normally.
	beginErrs  []error
	endErrs    []error
	submitErrs []error

	failSemaphore int
	semaphores    int
}

func newFakeGPU() *fakeGPU {
	return &fakeGPU{
		names:            map[interface{}]string{},
		signaled:         map[vk.Fence]bool{},
		pendingAtDestroy: map[interface{}]int{},
	}
}

func (g *fakeGPU) record(format string, args ...interface{}) {
	g.events = append(g.events, fmt.Sprintf(format, args...))
}

func (g *fakeGPU) name(h interface{}) string {
	if n, ok := g.names[h]; ok {
		return n
	}
	return fmt.Sprintf("%v", h)
}

func fakeNamed[T comparable](g *fakeGPU, prefix string) T {
	g.next++
	h := fakeHandle[T](g.next)
	g.names[h] = fmt.Sprintf("%s%d", prefix, g.next)
	return h
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// firstPending returns the index of the oldest submission whose completion
// has not been observed through a fence wait or WaitIdle.
func (g *fakeGPU) firstPending() int {
	for i, done := range g.completed {
		if !done {
			return i
		}
	}
	return len(g.completed)
}

func (g *fakeGPU) DestroyObject(kind ObjectKind, handle interface{}) {
	g.destroyed = append(g.destroyed, destroyedObject{kind, handle})
	g.pendingAtDestroy[handle] = g.firstPending()
	g.record("destroy %s %s", kind, g.name(handle))
}

func (g *fakeGPU) CreateFence(presignalled bool) (vk.Fence, error) {
	f := fakeNamed[vk.Fence](g, "fence")
	g.signaled[f] = presignalled
	return f, nil
}

func (g *fakeGPU) DestroyFence(fence vk.Fence) {
	g.record("destroy fence %s", g.name(fence))
}

func (g *fakeGPU) WaitForFence(fence vk.Fence, timeout time.Duration) error {
	g.record("wait %s", g.name(fence))
	if !g.signaled[fence] {
		return ErrFenceTimeout
	}
	for i, batch := range g.submissions {
		if batch.Fence == fence {
			g.completed[i] = true
		}
	}
	return nil
}

func (g *fakeGPU) ResetFence(fence vk.Fence) error {
	g.record("reset %s", g.name(fence))
	g.signaled[fence] = false
	return nil
}

func (g *fakeGPU) CreateSemaphore() (vk.Semaphore, error) {
	g.semaphores++
	if g.failSemaphore > 0 && g.semaphores == g.failSemaphore {
		var none vk.Semaphore
		return none, errors.New("out of semaphores")
	}
	return fakeNamed[vk.Semaphore](g, "sem"), nil
}

func (g *fakeGPU) DestroySemaphore(s vk.Semaphore) {
	g.record("destroy semaphore %s", g.name(s))
}

func (g *fakeGPU) AllocateCommandBuffers(count int) ([]vk.CommandBuffer, error) {
	cmds := make([]vk.CommandBuffer, count)
	for i := range cmds {
		cmds[i] = fakeNamed[vk.CommandBuffer](g, "cmd")
	}
	return cmds, nil
}

func (g *fakeGPU) FreeCommandBuffers(cmds []vk.CommandBuffer) {
	g.freed = append(g.freed, cmds...)
	g.record("free %d command buffers", len(cmds))
}

func (g *fakeGPU) BeginCommandBuffer(cmd vk.CommandBuffer, oneTime bool) error {
	g.record("begin %s", g.name(cmd))
	return popErr(&g.beginErrs)
}

func (g *fakeGPU) EndCommandBuffer(cmd vk.CommandBuffer) error {
	g.record("end %s", g.name(cmd))
	return popErr(&g.endErrs)
}

func (g *fakeGPU) Submit(batch Submission) error {
	if err := popErr(&g.submitErrs); err != nil {
		g.record("submit %d failed", len(batch.Commands))
		return err
	}
	g.submissions = append(g.submissions, batch)
	g.completed = append(g.completed, false)
	g.record("submit %d", len(batch.Commands))
	if !g.hold && !isNull(batch.Fence) {
		g.signaled[batch.Fence] = true
	}
	return nil
}

func (g *fakeGPU) WaitIdle() error {
	g.waitIdles++
	g.record("wait idle")
	for f := range g.signaled {
		g.signaled[f] = true
	}
	for i := range g.completed {
		g.completed[i] = true
	}
	return nil
}

// indexOf returns the position of the first event equal to e at or after
// from, or -1.
func (g *fakeGPU) indexOf(e string, from int) int {
	for i := from; i < len(g.events); i++ {
		if g.events[i] == e {
			return i
		}
	}
	return -1
}

func (g *fakeGPU) wasDestroyed(h interface{}) bool {
	for _, d := range g.destroyed {
		if d.handle == h {
			return true
		}
	}
	return false
}

type fakePresenter struct {
	gpu         *fakeGPU
	images      uint32
	acquired    int
	acquireErrs []error
	presentErrs []error
	presented   []uint32
}

func (p *fakePresenter) AcquireNextImage(signal vk.Semaphore) (uint32, error) {
	p.gpu.record("acquire")
	if len(p.acquireErrs) > 0 {
		err := p.acquireErrs[0]
		p.acquireErrs = p.acquireErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	idx := uint32(p.acquired) % p.images
	p.acquired++
	return idx, nil
}

func (p *fakePresenter) Present(imageIndex uint32, wait vk.Semaphore) error {
	p.gpu.record("present %d", imageIndex)
	p.presented = append(p.presented, imageIndex)
	if len(p.presentErrs) > 0 {
		err := p.presentErrs[0]
		p.presentErrs = p.presentErrs[1:]
		return err
	}
	return nil
}

// recordingDestroyer captures destroy calls for deletion queue tests.
type recordingDestroyer struct {
	destroyed []destroyedObject
}

func (r *recordingDestroyer) DestroyObject(kind ObjectKind, handle interface{}) {
	r.destroyed = append(r.destroyed, destroyedObject{kind, handle})
}
