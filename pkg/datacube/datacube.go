// Package datacube defines the data cube driver contract and the driver
// registry. Drivers register themselves in init(); import them with a blank
// identifier:
//
//	import _ "github.com/lisahligono/semantique/pkg/datacubes/memory"
package datacube

import (
	"context"
	"log/slog"

	"github.com/lisahligono/semantique/pkg/core"
)

// Config holds the settings needed to open a data cube.
type Config struct {
	// Type is the registered driver name, e.g. "memory" or "sqlite".
	Type string `koanf:"type"`
	// Path is a file path for file-backed drivers.
	Path string `koanf:"path"`
	// DSN is a connection string for server-backed drivers.
	DSN string `koanf:"dsn"`
	// Params holds driver-specific settings, decoded by the driver.
	Params map[string]any `koanf:"params"`
}

// Driver is an open data cube.
type Driver interface {
	core.DataCube

	// Name returns the registered driver name.
	Name() string
	// Close releases the underlying resources.
	Close() error
}

// Factory opens a driver. The logger is never nil.
type Factory func(ctx context.Context, cfg Config, logger *slog.Logger) (Driver, error)
