package index

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/lisahligono/semantique/pkg/core"
)

// Layout maps layer paths to data cube locators.
type Layout struct {
	mu     sync.RWMutex
	layers map[string]*core.LayerLocator
}

// NewLayout creates an empty layout.
func NewLayout() *Layout {
	return &Layout{layers: make(map[string]*core.LayerLocator)}
}

type layerSpec struct {
	Source      string         `mapstructure:"source"`
	Dims        []string       `mapstructure:"dims"`
	Type        string         `mapstructure:"type"`
	Description string         `mapstructure:"description"`
	Params      map[string]any `mapstructure:"params"`
}

// LayoutFromTree builds a layout from a decoded YAML/JSON document.
func LayoutFromTree(tree map[string]any) (*Layout, error) {
	l := NewLayout()
	err := walk(tree, nil, "source", func(path []string, leaf map[string]any) error {
		var spec layerSpec
		if err := decodeLeaf(leaf, &spec); err != nil {
			return fmt.Errorf("invalid layer: %w", err)
		}
		return l.Add(&core.LayerLocator{
			Path:      slices.Clone(path),
			Source:    spec.Source,
			Dims:      spec.Dims,
			ValueType: spec.Type,
			Params:    spec.Params,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load layout: %w", err)
	}
	return l, nil
}

// Add registers a layer locator, replacing any previous one at the same path.
func (l *Layout) Add(loc *core.LayerLocator) error {
	if len(loc.Path) == 0 {
		return fmt.Errorf("layer locator has an empty path")
	}
	if strings.TrimSpace(loc.Source) == "" {
		return fmt.Errorf("layer %s has no source", strings.Join(loc.Path, "/"))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.layers[pathKey(loc.Path)] = loc
	return nil
}

// LookupLayer implements core.LayoutIndex.
func (l *Layout) LookupLayer(path []string) (*core.LayerLocator, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	loc, ok := l.layers[pathKey(path)]
	if !ok {
		return nil, core.PathNotFound("layout", path)
	}
	return loc, nil
}

// Layers returns the paths of all layers, sorted.
func (l *Layout) Layers() [][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedPaths(l.layers)
}

// Len returns the number of layers.
func (l *Layout) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.layers)
}

var _ core.LayoutIndex = (*Layout)(nil)
