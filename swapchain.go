package vkframe

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Swapchain is the set of presentable images for a surface. The images are
// owned by the presentation engine; the views are ours.
type Swapchain struct {
	Device      *Device
	Queue       *Queue
	VKSwapchain vk.Swapchain
	Extent      vk.Extent2D
	Format      vk.Format
	Images      []vk.Image
	Views       []*ImageView

	// Suboptimal is set once acquire or present reports that the swapchain
	// no longer matches the surface exactly. It is not rebuilt for that
	// alone; a resize or an out-of-date report does that.
	Suboptimal bool
}

type CreateSwapchainOptions struct {
	OldSwapchain              *Swapchain
	ActualSize                vk.Extent2D
	DesiredNumSwapchainImages int
	PresentMode               vk.PresentMode
}

// AcquireNextImage blocks until an image is available and arranges for
// signal to be signaled once it may be rendered to. A suboptimal swapchain
// still hands out an image.
func (s *Swapchain) AcquireNextImage(signal vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(s.Device.VKDevice, s.VKSwapchain, vk.MaxUint64, signal, vk.NullFence, &imageIndex)
	if res == vk.Suboptimal {
		s.Suboptimal = true
	}
	if err := vkResult(res); err != nil {
		return 0, err
	}
	return imageIndex, nil
}

// Present queues imageIndex for display once wait is signaled.
func (s *Swapchain) Present(imageIndex uint32, wait vk.Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{s.VKSwapchain},
		PImageIndices:  []uint32{imageIndex},
	}
	if !isNull(wait) {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{wait}
	}
	res := vk.QueuePresent(s.Queue.VKQueue, &presentInfo)
	if res == vk.Suboptimal {
		s.Suboptimal = true
	}
	return vkResult(res)
}

// ImageCount returns the number of images the presentation engine created.
func (s *Swapchain) ImageCount() int {
	return len(s.Images)
}

// Destroy destroys any remaining image views and the swapchain.
// Destroy destroys the views and then the swapchain that owns their images.
// The caller must have waited for the device to go idle.
func (s *Swapchain) Destroy() {
	s.destroyViews(s.Device)
	vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
}

func (s *Swapchain) destroyViews(d Destroyer) {
	for _, view := range s.Views {
		d.DestroyObject(KindImageView, view.VKImageView)
	}
	s.Views = nil
}

func (d *Device) DefaultNumSwapchainImages(surface vk.Surface) (int, error) {
	caps, err := d.PhysicalDevice.GetSurfaceCapabilities(surface)
	if err != nil {
		return 0, err
	}
	n := int(caps.MinImageCount) + 1
	if caps.MaxImageCount > 0 && n > int(caps.MaxImageCount) {
		n = int(caps.MaxImageCount)
	}
	return n, nil
}

// CreateSwapchain creates a swapchain presenting on queue, along with a view
// for each of its images.
func (d *Device) CreateSwapchain(surface vk.Surface, queue *Queue, options *CreateSwapchainOptions) (*Swapchain, error) {
	if options == nil {
		options = &CreateSwapchainOptions{}
	}

	modes, err := d.PhysicalDevice.GetSurfacePresentModes(surface)
	if err != nil {
		return nil, errors.Wrap(err, "query present modes")
	}

	presentMode := vk.PresentModeFifo
	for _, m := range modes {
		if m == options.PresentMode {
			presentMode = m
			break
		}
	}

	formats, err := d.PhysicalDevice.GetSurfaceFormats(surface)
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	if len(formats) == 0 {
		return nil, errors.New("surface reports no formats")
	}

	format := formats[0]
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm {
			format = f
			break
		}
	}
	if format.Format == vk.FormatUndefined {
		format.Format = vk.FormatB8g8r8a8Unorm
	}

	caps, err := d.PhysicalDevice.GetSurfaceCapabilities(surface)
	if err != nil {
		return nil, errors.Wrap(err, "query surface capabilities")
	}

	swapchainSize := caps.CurrentExtent
	if caps.CurrentExtent.Width == vk.MaxUint32 {
		swapchainSize = options.ActualSize
		if swapchainSize.Width == 0 || swapchainSize.Height == 0 {
			swapchainSize = caps.MinImageExtent
		}
	}

	desiredSwapChainImages := options.DesiredNumSwapchainImages
	if desiredSwapChainImages == 0 {
		desiredSwapChainImages, err = d.DefaultNumSwapchainImages(surface)
		if err != nil {
			return nil, err
		}
	}

	createInfo := &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    uint32(desiredSwapChainImages),
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      swapchainSize,
		PresentMode:      presentMode,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		Clipped:          vk.True,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		OldSwapchain:     vk.NullSwapchain,
	}
	if options.OldSwapchain != nil {
		createInfo.OldSwapchain = options.OldSwapchain.VKSwapchain
	}

	var swapchain vk.Swapchain
	err = vk.Error(vk.CreateSwapchain(d.VKDevice, createInfo, nil, &swapchain))
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	ret := &Swapchain{
		Device:      d,
		Queue:       queue,
		VKSwapchain: swapchain,
		Extent:      swapchainSize,
		Format:      format.Format,
	}

	if err := ret.loadImages(); err != nil {
		ret.Destroy()
		return nil, err
	}
	return ret, nil
}

func (s *Swapchain) loadImages() error {
	var imageCount uint32
	err := vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, nil))
	if err != nil {
		return errors.Wrap(err, "count swapchain images")
	}

	s.Images = make([]vk.Image, imageCount)
	err = vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, s.Images))
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}

	s.Views = make([]*ImageView, 0, imageCount)
	for _, image := range s.Images {
		view, err := s.Device.CreateImageView(image, s.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}
		s.Views = append(s.Views, view)
	}
	return nil
}
