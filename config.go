package vkframe

import (
	"os"
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
	"gopkg.in/yaml.v3"
)

// DefaultFenceTimeout bounds how long BeginRender blocks on a slot fence
// before treating the device as hung.
const DefaultFenceTimeout = 10 * time.Second

const (
	PresentModeFifo        = "fifo"
	PresentModeMailbox     = "mailbox"
	PresentModeImmediate   = "immediate"
	PresentModeFifoRelaxed = "fifo_relaxed"
)

// Config holds the tunables of a GraphicsApp. It is usually read from YAML:
//
//	fence_timeout: 5s
//	present_mode: mailbox
//	validate: true
//	clear_color: [0.1, 0.1, 0.1, 1]
//	clear_depth: 1
type Config struct {
	FenceTimeout time.Duration `yaml:"fence_timeout"`
	PresentMode  string        `yaml:"present_mode"`
	Validation   bool          `yaml:"validate"`
	ClearColor   [4]float32    `yaml:"clear_color"`
	ClearDepth   float32       `yaml:"clear_depth"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	MetricsAddr  string        `yaml:"metrics_addr"`
}

func DefaultConfig() *Config {
	return &Config{
		FenceTimeout: DefaultFenceTimeout,
		PresentMode:  PresentModeFifo,
		ClearColor:   [4]float32{0.2, 0.2, 0.2, 1},
		ClearDepth:   1,
		Width:        800,
		Height:       600,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.FenceTimeout <= 0 {
		return errors.Errorf("fence_timeout must be positive, got %s", c.FenceTimeout)
	}
	if _, ok := presentModes[c.PresentMode]; !ok {
		return errors.Errorf("unknown present_mode %q", c.PresentMode)
	}
	if c.ClearDepth < 0 || c.ClearDepth > 1 {
		return errors.Errorf("clear_depth must be within [0, 1], got %g", c.ClearDepth)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("window size must be positive, got %dx%d", c.Width, c.Height)
	}
	return nil
}

var presentModes = map[string]vk.PresentMode{
	PresentModeFifo:        vk.PresentModeFifo,
	PresentModeMailbox:     vk.PresentModeMailbox,
	PresentModeImmediate:   vk.PresentModeImmediate,
	PresentModeFifoRelaxed: vk.PresentModeFifoRelaxed,
}

// VKPresentMode returns the requested present mode. FIFO is the fallback
// since every implementation must support it.
func (c *Config) VKPresentMode() vk.PresentMode {
	if m, ok := presentModes[c.PresentMode]; ok {
		return m
	}
	return vk.PresentModeFifo
}
