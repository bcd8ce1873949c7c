package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Image is a 2D image. When created with CreateBoundImage it also owns the
// memory backing it.
type Image struct {
	Device       *Device
	VKImage      vk.Image
	VKFormat     vk.Format
	Extent       vk.Extent2D
	DeviceMemory *DeviceMemory
}

func (d *Device) CreateImage(extent vk.Extent2D, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlagBits) (*Image, error) {
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(d.VKDevice, &imageInfo, nil, &image)); err != nil {
		return nil, errors.Wrapf(err, "create %dx%d image", extent.Width, extent.Height)
	}
	return &Image{Device: d, VKImage: image, VKFormat: format, Extent: extent}, nil
}

// CreateBoundImage creates an image and binds it to a fresh allocation with
// the given memory properties.
func (d *Device) CreateBoundImage(extent vk.Extent2D, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlagBits, props vk.MemoryPropertyFlagBits) (*Image, error) {
	img, err := d.CreateImage(extent, format, tiling, usage)
	if err != nil {
		return nil, err
	}

	mr := img.MemoryRequirements()
	mem, err := d.Allocate(uint64(mr.Size), mr.MemoryTypeBits, props)
	if err != nil {
		img.Destroy()
		return nil, err
	}

	if err := vk.Error(vk.BindImageMemory(d.VKDevice, img.VKImage, mem.VKDeviceMemory, 0)); err != nil {
		img.Destroy()
		mem.Destroy()
		return nil, errors.Wrap(err, "bind image memory")
	}
	img.DeviceMemory = mem
	return img, nil
}

func (i *Image) MemoryRequirements() vk.MemoryRequirements {
	var mr vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.Device.VKDevice, i.VKImage, &mr)
	mr.Deref()
	return mr
}

func (i *Image) CreateView(mask vk.ImageAspectFlagBits) (*ImageView, error) {
	return i.Device.CreateImageView(i.VKImage, i.VKFormat, vk.ImageAspectFlags(mask))
}

// QueueDestroy defers destruction of the image, and its memory if it owns
// any, to d.
func (i *Image) QueueDestroy(d Deleter) {
	d.QueueDelete(KindImage, i.VKImage)
	i.VKImage = vk.NullImage
	if i.DeviceMemory != nil {
		i.DeviceMemory.QueueDestroy(d)
		i.DeviceMemory = nil
	}
}

func (i *Image) Destroy() {
	vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
	if i.DeviceMemory != nil {
		i.DeviceMemory.Destroy()
		i.DeviceMemory = nil
	}
}
