package vkframe

import (
	"fmt"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

// GraphicsApp owns everything needed to draw into a window surface: the
// device and its queue, the command pool, the swapchain with its render pass
// and framebuffers, and the FrameCycle that paces frames over them.
//
// A frame looks like:
//
//	cmd, err := app.BeginSurfaceRenderPass(clearColor, 1)
//	// record draws into cmd
//	err = app.EndSurfaceRenderPass()
//
// or DrawFrame, which also rebuilds the swapchain when it goes stale.
type GraphicsApp struct {
	Config *Config

	Instance    *Instance
	VKSurface   vk.Surface
	Device      *Device
	Queue       *Queue
	CommandPool *CommandPool

	Swapchain    *Swapchain
	VKRenderPass vk.RenderPass
	Framebuffers []vk.Framebuffer
	// Depth is nil unless the app was created with a depth attachment.
	Depth *DepthBuffer

	Frames *FrameCycle

	log          *zap.Logger
	screenExtent vk.Extent2D
	needsRebuild bool
}

type GraphicsAppOptions struct {
	Config  *Config
	Logger  *zap.Logger
	Metrics *Metrics
	// LoadOnBegin keeps the previous image contents instead of clearing.
	LoadOnBegin bool
	// Depth adds a depth attachment to the surface render pass.
	Depth bool
}

// NewGraphicsApp creates a device able to present to surface and prepares
// everything needed to start drawing. The app takes ownership of instance
// and surface and releases them in Destroy.
func NewGraphicsApp(instance *Instance, surface vk.Surface, extent vk.Extent2D, opts *GraphicsAppOptions) (*GraphicsApp, error) {
	if opts == nil {
		opts = &GraphicsAppOptions{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	p := &GraphicsApp{
		Config:       cfg,
		Instance:     instance,
		VKSurface:    surface,
		log:          log,
		screenExtent: extent,
	}

	if err := p.init(opts); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *GraphicsApp) init(opts *GraphicsAppOptions) error {
	pdevice, family, err := p.Instance.PickPhysicalDevice(p.VKSurface)
	if err != nil {
		return err
	}

	p.Device, err = pdevice.CreateDevice(family, []string{"VK_KHR_swapchain"})
	if err != nil {
		return err
	}
	p.Queue = p.Device.GetQueue(family)

	p.CommandPool, err = p.Device.CreateCommandPool(family)
	if err != nil {
		return err
	}

	p.Swapchain, err = p.Device.CreateSwapchain(p.VKSurface, p.Queue, p.swapchainOptions(nil))
	if err != nil {
		return err
	}

	depthFormat := vk.FormatUndefined
	if opts.Depth {
		depthFormat = DepthFormat
		p.Depth, err = p.Device.CreateDepthBuffer(p.Swapchain.Extent)
		if err != nil {
			return err
		}
	}

	p.VKRenderPass, err = p.Device.CreateSurfaceRenderPass(p.Swapchain.Format, depthFormat, !opts.LoadOnBegin)
	if err != nil {
		return err
	}

	p.Framebuffers, err = p.Device.CreateFramebuffers(p.VKRenderPass, p.Swapchain, p.Depth)
	if err != nil {
		return err
	}

	gpu := &DeviceGPU{Device: p.Device, Queue: p.Queue, CommandPool: p.CommandPool}
	p.Frames, err = NewFrameCycle(gpu, p, &FrameCycleOptions{
		FenceTimeout: p.Config.FenceTimeout,
		Logger:       p.log,
		Metrics:      opts.Metrics,
	})
	if err != nil {
		return err
	}

	p.log.Info("graphics app ready",
		zap.String("device", pdevice.DeviceName),
		zap.Int("queue_family", family),
		zap.Int("swapchain_images", p.Swapchain.ImageCount()),
		zap.Bool("depth", p.Depth != nil),
		zap.Uint32("width", p.Swapchain.Extent.Width),
		zap.Uint32("height", p.Swapchain.Extent.Height))
	return nil
}

func (p *GraphicsApp) swapchainOptions(old *Swapchain) *CreateSwapchainOptions {
	return &CreateSwapchainOptions{
		OldSwapchain: old,
		ActualSize:   p.screenExtent,
		PresentMode:  p.Config.VKPresentMode(),
	}
}

// AcquireNextImage and Present make the app the frame cycle's Presenter, so
// a rebuilt swapchain is picked up without recreating the cycle.
func (p *GraphicsApp) AcquireNextImage(signal vk.Semaphore) (uint32, error) {
	return p.Swapchain.AcquireNextImage(signal)
}

func (p *GraphicsApp) Present(imageIndex uint32, wait vk.Semaphore) error {
	return p.Swapchain.Present(imageIndex, wait)
}

// Resize records the new framebuffer size; the swapchain is rebuilt before
// the next frame.
func (p *GraphicsApp) Resize(width, height int) {
	p.screenExtent = vk.Extent2D{Width: uint32(width), Height: uint32(height)}
	p.needsRebuild = true
}

// BeginSurfaceRenderPass starts a frame and begins the surface render pass
// on the acquired image. clearDepth is ignored without a depth attachment.
// ErrSwapchainOutOfDate means no frame was started; call RebuildSwapchain and
// try again.
func (p *GraphicsApp) BeginSurfaceRenderPass(clearColor [4]float32, clearDepth float32) (vk.CommandBuffer, error) {
	if p.needsRebuild {
		if err := p.RebuildSwapchain(); err != nil {
			return nil, err
		}
	}

	cmd, imageIndex, err := p.Frames.BeginRender()
	if err != nil {
		if errors.Is(err, ErrSwapchainOutOfDate) {
			p.needsRebuild = true
		}
		return nil, err
	}

	clearValues := surfaceClearValues(clearColor, clearDepth, p.Depth != nil)

	renderPassBeginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  p.VKRenderPass,
		Framebuffer: p.Framebuffers[imageIndex],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: p.Swapchain.Extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cmd, &renderPassBeginInfo, vk.SubpassContentsInline)
	return cmd, nil
}

// EndSurfaceRenderPass ends the render pass, submits the frame and presents
// it. ErrSwapchainOutOfDate here means the frame went out but the swapchain
// will be rebuilt before the next one.
func (p *GraphicsApp) EndSurfaceRenderPass() error {
	if p.Frames.State() != StateRecording {
		panic(fmt.Sprintf("vkframe: EndSurfaceRenderPass while %s", p.Frames.State()))
	}
	vk.CmdEndRenderPass(p.Frames.CommandBuffer())
	err := p.Frames.EndRender()
	if errors.Is(err, ErrSwapchainOutOfDate) {
		p.needsRebuild = true
	}
	return err
}

// DrawFrame runs one frame, calling record between the begin and end of the
// surface render pass. A stale swapchain is rebuilt and the frame skipped.
func (p *GraphicsApp) DrawFrame(record func(cmd vk.CommandBuffer, imageIndex uint32)) error {
	cmd, err := p.BeginSurfaceRenderPass(p.Config.ClearColor, p.Config.ClearDepth)
	if errors.Is(err, ErrSwapchainOutOfDate) {
		return p.RebuildSwapchain()
	}
	if err != nil {
		return err
	}
	if record != nil {
		record(cmd, p.Frames.ImageIndex())
	}
	err = p.EndSurfaceRenderPass()
	if errors.Is(err, ErrSwapchainOutOfDate) {
		return p.RebuildSwapchain()
	}
	return err
}

// RebuildSwapchain recreates the swapchain, the depth buffer and the
// framebuffers at the current extent. The device is idle by then, so the old
// swapchain and its views are destroyed directly; the old depth buffer goes
// through the frame cycle's global deletion queue.
func (p *GraphicsApp) RebuildSwapchain() error {
	if err := p.Device.WaitIdle(); err != nil {
		return err
	}

	p.destroyFramebuffers()

	old := p.Swapchain
	swapchain, err := p.Device.CreateSwapchain(p.VKSurface, p.Queue, p.swapchainOptions(old))
	if err != nil {
		return errors.Wrap(err, "rebuild swapchain")
	}
	old.Destroy()
	p.Swapchain = swapchain

	if p.Depth != nil {
		depth, err := p.Device.CreateDepthBuffer(p.Swapchain.Extent)
		if err != nil {
			return errors.Wrap(err, "rebuild depth buffer")
		}
		p.Depth.QueueDestroy(p.Frames)
		p.Depth = depth
	}

	p.Framebuffers, err = p.Device.CreateFramebuffers(p.VKRenderPass, p.Swapchain, p.Depth)
	if err != nil {
		return err
	}
	p.needsRebuild = false

	p.log.Info("swapchain rebuilt",
		zap.Int("images", p.Swapchain.ImageCount()),
		zap.Uint32("width", p.Swapchain.Extent.Width),
		zap.Uint32("height", p.Swapchain.Extent.Height))
	return nil
}

// QueueDelete defers destruction of handle until the GPU is done with it.
func (p *GraphicsApp) QueueDelete(kind ObjectKind, handle interface{}) {
	p.Frames.QueueDelete(kind, handle)
}

// QueueBeforeSurfaceRender submits cmd ahead of the surface render pass of
// the current or next frame.
func (p *GraphicsApp) QueueBeforeSurfaceRender(cmd vk.CommandBuffer) {
	p.Frames.QueueBeforeRender(cmd)
}

// SurfaceCommandBuffer must only be used between BeginSurfaceRenderPass and
// EndSurfaceRenderPass.
func (p *GraphicsApp) SurfaceCommandBuffer() vk.CommandBuffer {
	return p.Frames.CommandBuffer()
}

func (p *GraphicsApp) SurfaceRenderPass() vk.RenderPass {
	return p.VKRenderPass
}

func (p *GraphicsApp) GraphicsQueueFamilyIndex() int {
	return p.Queue.FamilyIndex
}

func (p *GraphicsApp) Width() int {
	return int(p.Swapchain.Extent.Width)
}

func (p *GraphicsApp) Height() int {
	return int(p.Swapchain.Extent.Height)
}

// WaitUntilQueueIdle blocks until all submitted frames have completed.
func (p *GraphicsApp) WaitUntilQueueIdle() error {
	return p.Frames.WaitIdle()
}

func (p *GraphicsApp) destroyFramebuffers() {
	for _, fb := range p.Framebuffers {
		p.Device.DestroyAny(fb)
	}
	p.Framebuffers = nil
}

// Destroy tears the app down. The frame cycle goes first so that every
// deferred delete runs while the device is still alive.
func (p *GraphicsApp) Destroy() {
	if p.Frames != nil {
		if err := p.Frames.Destroy(); err != nil {
			p.log.Error("frame cycle teardown", zap.Error(err))
		}
		p.Frames = nil
	}
	if p.Device != nil {
		p.destroyFramebuffers()
		if !isNull(p.VKRenderPass) {
			p.Device.DestroyAny(p.VKRenderPass)
		}
		if p.Depth != nil {
			p.Depth.Destroy()
			p.Depth = nil
		}
		if p.Swapchain != nil {
			p.Swapchain.Destroy()
			p.Swapchain = nil
		}
		if p.CommandPool != nil {
			p.CommandPool.Destroy()
			p.CommandPool = nil
		}
		p.Device.Destroy()
		p.Device = nil
	}
	if p.Instance != nil {
		if !isNull(p.VKSurface) {
			vk.DestroySurface(p.Instance.VKInstance, p.VKSurface, nil)
		}
		p.Instance.Destroy()
		p.Instance = nil
	}
}
