package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// DepthFormat is the format of the surface depth attachment.
const DepthFormat = vk.FormatD32Sfloat

// DepthBuffer is the depth attachment shared by every surface framebuffer.
// It is sized to the swapchain and recreated with it.
type DepthBuffer struct {
	Image *Image
	View  *ImageView
}

// CreateDepthBuffer creates a device local depth image of the given extent
// along with a depth view over it.
func (d *Device) CreateDepthBuffer(extent vk.Extent2D) (*DepthBuffer, error) {
	img, err := d.CreateBoundImage(extent, DepthFormat, vk.ImageTilingOptimal,
		vk.ImageUsageDepthStencilAttachmentBit, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return nil, errors.Wrap(err, "create depth image")
	}
	view, err := img.CreateView(vk.ImageAspectDepthBit)
	if err != nil {
		img.Destroy()
		return nil, errors.Wrap(err, "create depth view")
	}
	return &DepthBuffer{Image: img, View: view}, nil
}

// QueueDestroy defers destruction of the view, the image and its memory.
func (b *DepthBuffer) QueueDestroy(d Deleter) {
	b.View.QueueDestroy(d)
	b.Image.QueueDestroy(d)
}

func (b *DepthBuffer) Destroy() {
	b.View.Destroy()
	b.Image.Destroy()
}
