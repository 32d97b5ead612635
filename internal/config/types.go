// Package config loads the semantique CLI configuration.
//
// Values are merged from defaults, semantique.yaml, SEMANTIQUE_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/lisahligono/semantique/pkg/datacube"
)

// Config holds all CLI configuration options.
type Config struct {
	Recipe       string          `koanf:"recipe"`
	Mapping      string          `koanf:"mapping"`
	Layout       string          `koanf:"layout"`
	DataCube     datacube.Config `koanf:"datacube"`
	StatePath    string          `koanf:"state_path"`
	Record       bool            `koanf:"record"`
	Parallel     bool            `koanf:"parallel"`
	Workers      int             `koanf:"workers"`
	LogLevel     string          `koanf:"log_level"`
	Verbose      bool            `koanf:"verbose"`
	OutputFormat string          `koanf:"output"`
	MetricsFile  string          `koanf:"metrics_file"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the config file that was loaded, empty if none.
	ConfigFile string `koanf:"-"`
}

var outputModes = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DataCube.Type == "" {
		return fmt.Errorf("datacube.type is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for _, m := range outputModes {
		if c.OutputFormat == m {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q (expected one of %s)", c.OutputFormat, strings.Join(outputModes, ", "))
}

// Level returns the log level. Verbose forces debug.
func (c *Config) Level() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
