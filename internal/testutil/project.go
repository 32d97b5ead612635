package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Example project files. The cube holds two layers over four pixels:
//
//	colortype: 21 22 1 21   -> water:  1 1 0 1
//	cloud:     .1 .9 .2 -   -> cloudy: 0 1 0 -
const (
	ProjectConfig = `datacube:
  type: memory
  path: cube.yaml
`

	ProjectRecipe = `water:
  reference: {type: concept, reference: [entity, water]}
water_count:
  reference: {type: result, name: water}
  verbs:
    - {name: reduce, args: [sum]}
cloudy:
  reference: {type: concept, reference: [entity, cloud]}
`

	ProjectMapping = `entity:
  water:
    properties:
      color:
        operands:
          - reference: {type: layer, reference: [appearance, colortype]}
            verbs:
              - {name: evaluate, args: [in, [21, 22]]}
  cloud:
    properties:
      mask:
        operands:
          - reference: {type: layer, reference: [atmosphere, cloud]}
            verbs:
              - {name: evaluate, args: [greater, 0.5]}
`

	ProjectLayout = `appearance:
  colortype: {source: colortype, dims: [x], type: ordinal}
atmosphere:
  cloud: {source: cloud, dims: [x], type: continuous}
`

	ProjectCube = `layers:
  colortype: {dims: [x], shape: [4], values: [21, 22, 1, 21]}
  cloud: {dims: [x], shape: [4], values: [0.1, 0.9, 0.2, null]}
`
)

// WriteProject writes the example project into a temporary directory and
// returns the directory.
func WriteProject(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"semantique.yaml": ProjectConfig,
		"recipe.yaml":     ProjectRecipe,
		"mapping.yaml":    ProjectMapping,
		"layout.yaml":     ProjectLayout,
		"cube.yaml":       ProjectCube,
	}
	for name, content := range files {
		WriteFile(t, dir, name, content)
	}
	return dir
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
