// Package index provides the in-memory Mapping and Layout indexes.
//
// Both are category trees decoded from YAML or JSON. A Mapping leaf is an
// object with a "properties" key and defines a concept; a Layout leaf is an
// object with a "source" key and locates a data layer. Paths are the
// category names from the root down to the leaf.
package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// keySep never occurs in YAML keys typed by hand.
const keySep = "\x1f"

func pathKey(path []string) string {
	return strings.Join(path, keySep)
}

// walk visits every leaf of a category tree in sorted key order. A node is a
// leaf when it carries leafKey.
func walk(node map[string]any, prefix []string, leafKey string, visit func(path []string, leaf map[string]any) error) error {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := append(append([]string(nil), prefix...), k)
		child, ok := asMap(node[k])
		if !ok {
			return fmt.Errorf("%s: expected a category or a leaf object, got %T", strings.Join(path, "/"), node[k])
		}
		if _, isLeaf := child[leafKey]; isLeaf {
			if err := visit(path, child); err != nil {
				return fmt.Errorf("%s: %w", strings.Join(path, "/"), err)
			}
			continue
		}
		if err := walk(child, path, leafKey, visit); err != nil {
			return err
		}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// decodeLeaf decodes a leaf object strictly: unknown keys are errors.
func decodeLeaf(leaf map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return dec.Decode(leaf)
}

// sortedPaths splits the keys of m back into paths, in sorted order.
func sortedPaths[V any](m map[string]V) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]string, len(keys))
	for i, k := range keys {
		out[i] = strings.Split(k, keySep)
	}
	return out
}
