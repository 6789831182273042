// Package config handles visor configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level visor configuration. The zero value, after
// applyDefaults, is fully usable.
type Config struct {
	Browser  BrowserConfig `yaml:"browser"`
	Capture  CaptureConfig `yaml:"capture"`
	Pixel    PixelConfig   `yaml:"pixel"`
	Store    StoreConfig   `yaml:"store"`
	Strategy string        `yaml:"strategy"` // compositor | pixel | auto
	Pages    []PageConfig  `yaml:"pages"`
}

// BrowserConfig controls Chrome acquisition.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome.
	Remote     string        `yaml:"remote"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// CaptureConfig controls the compositor capture pipeline.
type CaptureConfig struct {
	Viewport ViewportConfig `yaml:"viewport"`
	// DiscoveryWait bounds the wait for a layer-tree-changed event after
	// forcing a compositing pass. Expiry yields an empty layer set.
	DiscoveryWait time.Duration `yaml:"discovery_wait"`
	// Settle is how long the page must stay idle before a capture starts.
	Settle time.Duration `yaml:"settle"`
	// DisableDOMText turns off the synthetic draw-text commands derived
	// from walking visible DOM text nodes.
	DisableDOMText bool `yaml:"disable_dom_text"`
	// ScriptMaxLen is the length above which a text-draw payload is
	// assumed to be injected script and dropped.
	ScriptMaxLen int `yaml:"script_max_len"`
}

// ViewportConfig is the emulated page size.
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// PixelConfig controls raster comparison.
type PixelConfig struct {
	// Threshold is the per-pixel fuzz in [0,1]. Unset defaults to 0.1; an
	// explicit 0 configures exact comparison, hence the pointer.
	Threshold *float64 `yaml:"threshold"`
	// IncludeAA counts anti-aliasing artifacts as mismatches.
	IncludeAA bool `yaml:"include_aa"`
}

// StoreConfig locates persisted artifacts.
type StoreConfig struct {
	DBPath   string `yaml:"db_path"`
	ImageDir string `yaml:"image_dir"`
}

// PageConfig names a page under regression.
type PageConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Capture.Viewport.Width <= 0 {
		c.Capture.Viewport.Width = 1280
	}
	if c.Capture.Viewport.Height <= 0 {
		c.Capture.Viewport.Height = 720
	}
	if c.Capture.DiscoveryWait <= 0 {
		c.Capture.DiscoveryWait = time.Second
	}
	if c.Capture.Settle <= 0 {
		c.Capture.Settle = 500 * time.Millisecond
	}
	if c.Capture.ScriptMaxLen <= 0 {
		c.Capture.ScriptMaxLen = 200
	}
	if c.Pixel.Threshold == nil {
		t := 0.1
		c.Pixel.Threshold = &t
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = "visor.db"
	}
	if c.Store.ImageDir == "" {
		c.Store.ImageDir = "visor-artifacts"
	}
	if c.Strategy == "" {
		c.Strategy = "auto"
	}
}

// PageURL resolves a configured page name to its URL.
func (c *Config) PageURL(name string) (string, bool) {
	for _, p := range c.Pages {
		if p.Name == name {
			return p.URL, true
		}
	}
	return "", false
}
