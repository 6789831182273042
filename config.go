package visor

import (
	"github.com/hazyhaar/visor/internal/config"
)

// Config is the top-level visor configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome acquisition.
type BrowserConfig = config.BrowserConfig

// CaptureConfig controls the compositor capture pipeline.
type CaptureConfig = config.CaptureConfig

// PixelConfig controls raster comparison.
type PixelConfig = config.PixelConfig

// StoreConfig locates persisted artifacts.
type StoreConfig = config.StoreConfig

// PageConfig names a page under regression.
type PageConfig = config.PageConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
