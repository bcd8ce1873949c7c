package vkframe

import "fmt"

// ObjectKind identifies which device-level destroy call releases a handle.
type ObjectKind int

const (
	KindDescriptorPool ObjectKind = iota
	KindShaderModule
	KindBuffer
	KindBufferView
	KindImage
	KindImageView
	KindDeviceMemory
	KindSampler
	KindPipelineCache

	numObjectKinds
)

var objectKindNames = [numObjectKinds]string{
	KindDescriptorPool: "descriptor_pool",
	KindShaderModule:   "shader_module",
	KindBuffer:         "buffer",
	KindBufferView:     "buffer_view",
	KindImage:          "image",
	KindImageView:      "image_view",
	KindDeviceMemory:   "device_memory",
	KindSampler:        "sampler",
	KindPipelineCache:  "pipeline_cache",
}

// ObjectKinds returns every kind in declaration order.
func ObjectKinds() []ObjectKind {
	kinds := make([]ObjectKind, numObjectKinds)
	for i := range kinds {
		kinds[i] = ObjectKind(i)
	}
	return kinds
}

func (k ObjectKind) Valid() bool {
	return k >= 0 && k < numObjectKinds
}

func (k ObjectKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("ObjectKind(%d)", int(k))
	}
	return objectKindNames[k]
}
