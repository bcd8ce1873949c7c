package vkframe

import (
	vk "github.com/vulkan-go/vulkan"
)

type ImageView struct {
	Device      *Device
	VKImageView vk.ImageView
}

// CreateImageView creates a 2D view over the first mip level and layer of
// image.
func (d *Device) CreateImageView(image vk.Image, format vk.Format, mask vk.ImageAspectFlags) (*ImageView, error) {
	createImage := &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: mask,
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView

	err := vk.Error(vk.CreateImageView(d.VKDevice, createImage, nil, &view))
	if err != nil {
		return nil, err
	}
	return &ImageView{Device: d, VKImageView: view}, nil
}

func (i *ImageView) Destroy() {
	vk.DestroyImageView(i.Device.VKDevice, i.VKImageView, nil)
}

// QueueDestroy defers destruction of the view to d.
func (i *ImageView) QueueDestroy(d Deleter) {
	d.QueueDelete(KindImageView, i.VKImageView)
	i.VKImageView = vk.NullImageView
}
