package vkframe

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

type ShaderModule struct {
	Device         *Device
	VKShaderModule vk.ShaderModule
}

// CreateShaderModule creates a module from SPIR-V words.
func (d *Device) CreateShaderModule(code []uint32) (*ShaderModule, error) {
	var module vk.ShaderModule
	err := vk.Error(vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}, nil, &module))
	if err != nil {
		return nil, errors.Wrap(err, "create shader module")
	}
	return &ShaderModule{Device: d, VKShaderModule: module}, nil
}

// LoadShaderModuleFromFile reads a compiled SPIR-V file.
func (d *Device) LoadShaderModuleFromFile(file string) (*ShaderModule, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", file)
	}
	code, err := spirvWords(data)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	return d.CreateShaderModule(code)
}

// QueueDestroy defers destruction of the module to d.
func (s *ShaderModule) QueueDestroy(d Deleter) {
	d.QueueDelete(KindShaderModule, s.VKShaderModule)
	s.VKShaderModule = vk.NullShaderModule
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
}

const spirvMagic = 0x07230203

func spirvWords(data []byte) ([]uint32, error) {
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, errors.Errorf("spir-v length %d is not a positive multiple of 4", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errors.Errorf("bad spir-v magic %#x", words[0])
	}
	return words, nil
}
