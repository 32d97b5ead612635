// Package loader reads recipes, mappings and layouts from YAML or JSON files.
// The format is chosen by file extension: .json is JSON, anything else YAML.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lisahligono/semantique/internal/index"
	"github.com/lisahligono/semantique/pkg/core"
)

// Paths names the files of a project.
type Paths struct {
	Recipe  string
	Mapping string
	Layout  string
}

// Files returns the non-empty paths.
func (p Paths) Files() []string {
	var out []string
	for _, f := range []string{p.Recipe, p.Mapping, p.Layout} {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Project is a loaded recipe with the indexes it is evaluated against.
type Project struct {
	Recipe  *core.Recipe
	Mapping *index.Mapping
	Layout  *index.Layout
}

// LoadProject loads all three files. If logger is nil, a discard logger is used.
func LoadProject(paths Paths, logger *slog.Logger) (*Project, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mapping, err := LoadMapping(paths.Mapping)
	if err != nil {
		return nil, err
	}
	layout, err := LoadLayout(paths.Layout)
	if err != nil {
		return nil, err
	}
	recipe, err := LoadRecipe(paths.Recipe)
	if err != nil {
		return nil, err
	}

	logger.Debug("loaded project",
		"recipe", paths.Recipe, "results", recipe.Len(),
		"concepts", mapping.Len(), "layers", layout.Len())

	return &Project{Recipe: recipe, Mapping: mapping, Layout: layout}, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// LoadRecipe reads a recipe file, keeping the order of its results.
func LoadRecipe(path string) (*core.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	r, err := ParseRecipe(data, isJSON(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseRecipe parses a recipe document.
func ParseRecipe(data []byte, asJSON bool) (*core.Recipe, error) {
	var r core.Recipe
	if asJSON {
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &r, nil
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadMapping reads a mapping file.
func LoadMapping(path string) (*index.Mapping, error) {
	tree, err := readTree(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping: %w", err)
	}
	m, err := index.MappingFromTree(tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadLayout reads a layout file.
func LoadLayout(path string) (*index.Layout, error) {
	tree, err := readTree(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	l, err := index.LayoutFromTree(tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

func readTree(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tree := map[string]any{}
	if isJSON(path) {
		err = json.Unmarshal(data, &tree)
	} else {
		err = yaml.Unmarshal(data, &tree)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}
