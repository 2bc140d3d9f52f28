// Package config loads the client's settings from a YAML file and the
// environment. Command-line flags are applied on top by cmd/rscreen.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chronologos/rscreen/internal/auth"
	"github.com/chronologos/rscreen/internal/input"
	"github.com/chronologos/rscreen/internal/logging"
	"github.com/chronologos/rscreen/internal/protocol"
	"github.com/chronologos/rscreen/internal/reassembly"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Environment variables read by ApplyEnv.
const (
	EnvHost      = "RSCREEN_HOST"
	EnvDeviceKey = "RSCREEN_DEVICE_KEY"
	EnvHostPort  = "RSCREEN_HOST_PORT"
)

// Config is the full client configuration.
type Config struct {
	Host       string `yaml:"host"`
	DeviceKey  string `yaml:"device_key"`
	HostPort   int    `yaml:"host_port"`
	ClientPort int    `yaml:"client_port"`

	Protocol       string        `yaml:"protocol"`   // fragment header variant: "a" or "b"
	Completion     string        `yaml:"completion"` // "counter" or "legacy"
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	RecvBufferSize int           `yaml:"recv_buffer_size"` // SO_RCVBUF hint, bytes
	BatchSize      int           `yaml:"batch_size"`
	MaxFrameSize   int           `yaml:"max_frame_size"`
	Decode         string        `yaml:"decode"` // "full" or "validate"

	DefaultHostWidth  int `yaml:"default_host_width"`
	DefaultHostHeight int `yaml:"default_host_height"`

	Input   InputConfig    `yaml:"input"`
	Viewer  ViewerConfig   `yaml:"viewer"`
	Log     logging.Config `yaml:"log"`
	Profile bool           `yaml:"profile"`
}

type InputConfig struct {
	Mode         string  `yaml:"mode"` // "gesture" or "desktop"
	TapThreshold float64 `yaml:"tap_threshold"`
}

type ViewerConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	MaxPoll time.Duration `yaml:"max_poll"`
}

// Default returns a config with every field but Host and DeviceKey set.
func Default() Config {
	return Config{
		HostPort:          protocol.DefaultHostPort,
		ClientPort:        protocol.DefaultClientPort,
		Protocol:          protocol.VariantA.Name,
		Completion:        reassembly.CompletionCounter.String(),
		ReceiveTimeout:    time.Second,
		RecvBufferSize:    4 * 1024 * 1024,
		BatchSize:         8,
		MaxFrameSize:      reassembly.DefaultMaxFrameSize,
		Decode:            "full",
		DefaultHostWidth:  1280,
		DefaultHostHeight: 720,
		Input: InputConfig{
			Mode:         input.ModeGesture.String(),
			TapThreshold: input.DefaultTapThreshold,
		},
		Viewer: ViewerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
			MaxPoll: 100 * time.Millisecond,
		},
		Log: logging.Default(),
	}
}

// Load reads a YAML file over Default. Missing keys keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RSCREEN_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok {
		c.Host = v
	}
	if v, ok := lookup(EnvDeviceKey); ok {
		c.DeviceKey = v
	}
	if v, ok := lookup(EnvHostPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHostPort, err)
		}
		c.HostPort = port
	}
	return nil
}

// Validate checks the config is usable. Host may still be empty here; the
// CLI prompts for it.
func (c *Config) Validate() error {
	if err := auth.DeviceKey(c.DeviceKey).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := validPort("host_port", c.HostPort, false); err != nil {
		return err
	}
	if err := validPort("client_port", c.ClientPort, true); err != nil {
		return err
	}
	if _, err := c.Variant(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.CompletionMode(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := input.ParseMode(c.Input.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch {
	case c.ReceiveTimeout <= 0:
		return fmt.Errorf("%w: receive_timeout must be positive", ErrInvalid)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalid)
	case c.MaxFrameSize <= 0:
		return fmt.Errorf("%w: max_frame_size must be positive", ErrInvalid)
	case c.DefaultHostWidth <= 0 || c.DefaultHostHeight <= 0:
		return fmt.Errorf("%w: default host size must be positive", ErrInvalid)
	case c.Decode != "full" && c.Decode != "validate":
		return fmt.Errorf("%w: decode must be \"full\" or \"validate\", got %q", ErrInvalid, c.Decode)
	case c.Viewer.Enabled && c.Viewer.Addr == "":
		return fmt.Errorf("%w: viewer.addr is required when the viewer is enabled", ErrInvalid)
	}
	return nil
}

func validPort(name string, port int, zeroOK bool) error {
	if port == 0 && zeroOK {
		return nil
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %s %d out of range", ErrInvalid, name, port)
	}
	return nil
}

// Variant returns the configured fragment header layout.
func (c *Config) Variant() (protocol.Variant, error) {
	return protocol.VariantByName(c.Protocol)
}

// CompletionMode returns the configured reassembly completion rule.
func (c *Config) CompletionMode() (reassembly.CompletionMode, error) {
	return reassembly.ParseCompletionMode(c.Completion)
}

// Key returns the device key.
func (c *Config) Key() auth.DeviceKey {
	return auth.DeviceKey(c.DeviceKey)
}
