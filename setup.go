package vkframe

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

// VKVersion returns a Vulkan compatible version representation
func (v Version) VKVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// App describes the application to the Vulkan instance.
type App struct {
	Name       string
	EngineName string
	Version    Version
	// APIVersion defaults to 1.0.0.
	APIVersion Version

	EnabledLayers     []string
	EnabledExtensions []string
}

const validationLayer = "VK_LAYER_KHRONOS_validation"

// SupportedLayers returns the instance layers the loader knows about.
func SupportedLayers() ([]string, error) {
	var count uint32
	if err := vk.Error(vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, errors.Wrap(err, "enumerate layers")
	}
	props := make([]vk.LayerProperties, count)
	if err := vk.Error(vk.EnumerateInstanceLayerProperties(&count, props)); err != nil {
		return nil, errors.Wrap(err, "enumerate layers")
	}
	ret := make([]string, 0, count)
	for _, p := range props {
		p.Deref()
		ret = append(ret, vk.ToString(p.LayerName[:]))
	}
	return ret, nil
}

// EnableValidation turns on the Khronos validation layer and debug report
// extension if the loader has them. It reports whether it could.
func (a *App) EnableValidation() bool {
	layers, err := SupportedLayers()
	if err != nil {
		return false
	}
	for _, l := range layers {
		if l == validationLayer {
			a.EnabledLayers = append(a.EnabledLayers, validationLayer)
			a.EnableExtension("VK_EXT_debug_report")
			return true
		}
	}
	return false
}

func (a *App) EnableExtension(extension string) *App {
	for _, e := range a.EnabledExtensions {
		if e == extension {
			return a
		}
	}
	a.EnabledExtensions = append(a.EnabledExtensions, extension)
	return a
}

// CreateInstance creates the Vulkan instance. vk.Init must have been called.
func (a *App) CreateInstance() (*Instance, error) {
	api := a.APIVersion
	if api.Major < 1 {
		api = Version{Major: 1}
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         api.VKVersion(),
		ApplicationVersion: a.Version.VKVersion(),
		PApplicationName:   safeString(a.Name),
		PEngineName:        safeString(a.EngineName),
	}

	extensions := safeStrings(a.EnabledExtensions)
	layers := safeStrings(a.EnabledLayers)

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	instance := &Instance{}
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance.VKInstance)); err != nil {
		return nil, errors.Wrap(err, "create instance")
	}
	if err := vk.InitInstance(instance.VKInstance); err != nil {
		vk.DestroyInstance(instance.VKInstance, nil)
		return nil, errors.Wrap(err, "load instance functions")
	}
	return instance, nil
}

// Instance is an instance of the Vulkan subsystem
type Instance struct {
	VKInstance    vk.Instance
	debugCallback vk.DebugReportCallback
}

// PhysicalDevices returns every physical device known to the instance.
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	var count uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(i.VKInstance, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vk.Error(vk.EnumeratePhysicalDevices(i.VKInstance, &count, devices)); err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	ret := make([]*PhysicalDevice, count)
	for n, device := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &props)
		props.Deref()
		ret[n] = &PhysicalDevice{
			VKPhysicalDevice: device,
			DeviceName:       vk.ToString(props.DeviceName[:]),
		}
	}
	return ret, nil
}

// SetDebugLogger routes validation messages to log.
func (i *Instance) SetDebugLogger(log *zap.Logger) error {
	callback := func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
		object uint64, location uint, messageCode int32, pLayerPrefix string,
		pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

		fields := []zap.Field{zap.String("layer", pLayerPrefix), zap.Int32("code", messageCode)}
		switch {
		case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
			log.Error(pMessage, fields...)
		case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
			log.Warn(pMessage, fields...)
		default:
			log.Debug(pMessage, fields...)
		}
		return vk.Bool32(vk.False)
	}

	ret := vk.CreateDebugReportCallback(i.VKInstance, &vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: callback,
	}, nil, &i.debugCallback)
	return errors.Wrap(vk.Error(ret), "create debug report callback")
}

func (i *Instance) Destroy() {
	if !isNull(i.debugCallback) {
		vk.DestroyDebugReportCallback(i.VKInstance, i.debugCallback, nil)
	}
	vk.DestroyInstance(i.VKInstance, nil)
}

type PhysicalDevice struct {
	VKPhysicalDevice vk.PhysicalDevice
	DeviceName       string
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

// GraphicsPresentFamily returns the first queue family that can both draw
// and present to surface.
func (p *PhysicalDevice) GraphicsPresentFamily(surface vk.Surface) (int, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, families)

	for i, family := range families {
		family.Deref()
		if family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(p.VKPhysicalDevice, uint32(i), surface, &supportsPresent)
		if supportsPresent == vk.True {
			return i, true
		}
	}
	return 0, false
}

// CreateDevice creates a logical device with one queue from familyIndex.
func (p *PhysicalDevice) CreateDevice(familyIndex int, extensions []string) (*Device, error) {
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(familyIndex),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	exts := safeStrings(extensions)
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(p.VKPhysicalDevice, &deviceCreateInfo, nil, &device)); err != nil {
		return nil, errors.Wrapf(err, "create device on %s", p.DeviceName)
	}
	return &Device{PhysicalDevice: p, VKDevice: device}, nil
}

func (p *PhysicalDevice) GetSurfacePresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, nil)); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, modes)); err != nil {
		return nil, err
	}
	return modes, nil
}

func (p *PhysicalDevice) GetSurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, nil)); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, formats)); err != nil {
		return nil, err
	}
	for i := range formats {
		formats[i].Deref()
	}
	return formats, nil
}

func (p *PhysicalDevice) GetSurfaceCapabilities(surface vk.Surface) (*vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(p.VKPhysicalDevice, surface, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return &caps, nil
}

// PickPhysicalDevice returns the first device able to draw to surface along
// with the queue family to use.
func (i *Instance) PickPhysicalDevice(surface vk.Surface) (*PhysicalDevice, int, error) {
	devices, err := i.PhysicalDevices()
	if err != nil {
		return nil, 0, err
	}
	for _, d := range devices {
		if family, ok := d.GraphicsPresentFamily(surface); ok {
			return d, family, nil
		}
	}
	return nil, 0, errors.Errorf("none of %d devices can present to the surface", len(devices))
}

const end = "\x00"

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	ret := make([]string, len(list))
	for i := range list {
		ret[i] = safeString(list[i])
	}
	return ret
}
