package vkframe

import (
	"fmt"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Deleter accepts handles whose destruction has to wait until the GPU is
// done with them. Both DeletionQueue and FrameCycle implement it.
type Deleter interface {
	QueueDelete(kind ObjectKind, handle interface{})
}

// destroyOrder releases views before the objects they view and memory after
// the buffers and images bound to it.
var destroyOrder = [numObjectKinds]ObjectKind{
	KindDescriptorPool,
	KindShaderModule,
	KindBufferView,
	KindImageView,
	KindBuffer,
	KindImage,
	KindDeviceMemory,
	KindSampler,
	KindPipelineCache,
}

// DeletionQueue buckets GPU handles by kind until it is known that no
// submitted work references them. It does no synchronization of its own:
// PerformDeletes must only run once the owner has observed the GPU idle for
// everything that was queued.
type DeletionQueue struct {
	buckets [numObjectKinds][]interface{}
}

// QueueDelete appends handle to the bucket for kind. A null handle, or one
// whose Go type does not match kind, is a programming error and panics.
func (q *DeletionQueue) QueueDelete(kind ObjectKind, handle interface{}) {
	if err := checkHandle(kind, handle); err != nil {
		panic(err)
	}
	q.buckets[kind] = append(q.buckets[kind], handle)
}

func (q *DeletionQueue) QueueDeleteDescriptorPool(pool vk.DescriptorPool) {
	q.QueueDelete(KindDescriptorPool, pool)
}

func (q *DeletionQueue) QueueDeleteShaderModule(module vk.ShaderModule) {
	q.QueueDelete(KindShaderModule, module)
}

func (q *DeletionQueue) QueueDeleteBuffer(buffer vk.Buffer) {
	q.QueueDelete(KindBuffer, buffer)
}

func (q *DeletionQueue) QueueDeleteBufferView(view vk.BufferView) {
	q.QueueDelete(KindBufferView, view)
}

func (q *DeletionQueue) QueueDeleteImage(image vk.Image) {
	q.QueueDelete(KindImage, image)
}

func (q *DeletionQueue) QueueDeleteImageView(view vk.ImageView) {
	q.QueueDelete(KindImageView, view)
}

func (q *DeletionQueue) QueueDeleteDeviceMemory(memory vk.DeviceMemory) {
	q.QueueDelete(KindDeviceMemory, memory)
}

func (q *DeletionQueue) QueueDeleteSampler(sampler vk.Sampler) {
	q.QueueDelete(KindSampler, sampler)
}

func (q *DeletionQueue) QueueDeletePipelineCache(cache vk.PipelineCache) {
	q.QueueDelete(KindPipelineCache, cache)
}

// Len returns the number of handles waiting across every kind.
func (q *DeletionQueue) Len() int {
	n := 0
	for _, b := range q.buckets {
		n += len(b)
	}
	return n
}

// LenKind returns the number of handles of one kind waiting.
func (q *DeletionQueue) LenKind(kind ObjectKind) int {
	if !kind.Valid() {
		return 0
	}
	return len(q.buckets[kind])
}

func (q *DeletionQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Handles returns a copy of the handles waiting for kind, oldest first.
func (q *DeletionQueue) Handles(kind ObjectKind) []interface{} {
	if !kind.Valid() {
		return nil
	}
	return append([]interface{}(nil), q.buckets[kind]...)
}

// PerformDeletes destroys every queued handle through d and empties the
// queue. Handles of one kind are destroyed in the order they were queued.
// It returns how many handles were destroyed.
func (q *DeletionQueue) PerformDeletes(d Destroyer) int {
	n := 0
	for _, kind := range destroyOrder {
		for _, h := range q.buckets[kind] {
			d.DestroyObject(kind, h)
			n++
		}
		clear(q.buckets[kind])
		q.buckets[kind] = q.buckets[kind][:0]
	}
	return n
}

// Take moves every handle from other into q, leaving other empty. q must be
// empty; taking into a queue that still holds handles would risk destroying
// them before their fence, so it panics.
func (q *DeletionQueue) Take(other *DeletionQueue) {
	if !q.IsEmpty() {
		panic(fmt.Sprintf("vkframe: Take into a deletion queue holding %d handles", q.Len()))
	}
	if other == q {
		return
	}
	q.buckets = other.buckets
	other.buckets = [numObjectKinds][]interface{}{}
}

// Append moves every handle from other to the back of q, leaving other
// empty. Unlike Take, q may already hold handles.
func (q *DeletionQueue) Append(other *DeletionQueue) {
	if other == q {
		return
	}
	for kind := range other.buckets {
		q.buckets[kind] = append(q.buckets[kind], other.buckets[kind]...)
	}
	other.buckets = [numObjectKinds][]interface{}{}
}

func checkHandle(kind ObjectKind, handle interface{}) error {
	switch kind {
	case KindDescriptorPool:
		return checkTyped[vk.DescriptorPool](kind, handle)
	case KindShaderModule:
		return checkTyped[vk.ShaderModule](kind, handle)
	case KindBuffer:
		return checkTyped[vk.Buffer](kind, handle)
	case KindBufferView:
		return checkTyped[vk.BufferView](kind, handle)
	case KindImage:
		return checkTyped[vk.Image](kind, handle)
	case KindImageView:
		return checkTyped[vk.ImageView](kind, handle)
	case KindDeviceMemory:
		return checkTyped[vk.DeviceMemory](kind, handle)
	case KindSampler:
		return checkTyped[vk.Sampler](kind, handle)
	case KindPipelineCache:
		return checkTyped[vk.PipelineCache](kind, handle)
	}
	return errors.Errorf("vkframe: unknown object kind %d", int(kind))
}

func checkTyped[T comparable](kind ObjectKind, handle interface{}) error {
	h, ok := handle.(T)
	if !ok {
		return errors.Errorf("vkframe: %s queued for deletion with a %T handle", kind, handle)
	}
	if isNull(h) {
		return errors.Errorf("vkframe: null %s queued for deletion", kind)
	}
	return nil
}

func isNull[T comparable](h T) bool {
	var zero T
	return h == zero
}
