// Package memory provides an in-memory data cube, loaded from a YAML file or
// filled programmatically. It is meant for tests, demos and small recipes.
package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lisahligono/semantique/pkg/core"
	"github.com/lisahligono/semantique/pkg/datacube"
)

// Cube holds layers keyed by their layout source name.
type Cube struct {
	mu     sync.RWMutex
	layers map[string]*core.Array
	logger *slog.Logger
}

// New creates an empty cube. If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Cube {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cube{layers: make(map[string]*core.Array), logger: logger}
}

// Name implements datacube.Driver.
func (c *Cube) Name() string { return "memory" }

// Close implements datacube.Driver.
func (c *Cube) Close() error { return nil }

// Put stores a copy of arr under source.
func (c *Cube) Put(source string, arr *core.Array) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers[source] = arr.Clone()
}

// Sources returns the stored source names, sorted.
func (c *Cube) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.layers))
	for k := range c.layers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Fetch implements core.DataCube. The returned array is a copy named after
// the layer.
func (c *Cube) Fetch(ctx context.Context, loc *core.LayerLocator) (*core.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	arr, ok := c.layers[loc.Source]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no layer stored for source %q", loc.Source)
	}
	if len(loc.Dims) > 0 && !slices.Equal(loc.Dims, arr.Dims) {
		return nil, fmt.Errorf("%w: layout declares dimensions %v, source %q has %v",
			core.ErrShapeMismatch, loc.Dims, loc.Source, arr.Dims)
	}

	c.logger.Debug("fetching layer", "source", loc.Source, "shape", arr.Shape)
	out := arr.Clone()
	if len(loc.Path) > 0 {
		out.Name = loc.Path[len(loc.Path)-1]
	}
	return out, nil
}

type fileSpec struct {
	Layers map[string]layerSpec `yaml:"layers"`
}

type layerSpec struct {
	Dims   []string   `yaml:"dims"`
	Shape  []int      `yaml:"shape"`
	Values []*float64 `yaml:"values"`
}

// Load reads layers from YAML:
//
//	layers:
//	  colortype:
//	    dims: [time, y, x]
//	    shape: [2, 2, 2]
//	    values: [21, 1, null, 22, 21, 21, 4, 22]
//
// Values are row-major; null marks a cell without data.
func (c *Cube) Load(r io.Reader) error {
	var spec fileSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return fmt.Errorf("failed to parse data cube file: %w", err)
	}

	for source, ls := range spec.Layers {
		data := make([]float64, len(ls.Values))
		for i, v := range ls.Values {
			if v == nil {
				data[i] = math.NaN()
			} else {
				data[i] = *v
			}
		}
		arr, err := core.NewArray(source, ls.Dims, ls.Shape, data)
		if err != nil {
			return fmt.Errorf("layer %q: %w", source, err)
		}
		c.Put(source, arr)
	}
	return nil
}

// LoadFile reads layers from a YAML file.
func (c *Cube) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open data cube file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := c.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	c.logger.Debug("loaded data cube file", "path", path, "layers", len(c.Sources()))
	return nil
}

var _ datacube.Driver = (*Cube)(nil)
