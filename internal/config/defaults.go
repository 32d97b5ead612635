package config

// Default configuration values.
const (
	DefaultRecipe       = "recipe.yaml"
	DefaultMapping      = "mapping.yaml"
	DefaultLayout       = "layout.yaml"
	DefaultDataCubeType = "memory"
	DefaultStateFile    = ".semantique/state.db"
	DefaultLogLevel     = "info"
	DefaultOutput       = "auto" // TTY=text, non-TTY=markdown
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "semantique.yaml"
	ConfigFileNameAlt = "semantique.yml"
)

func defaults() map[string]any {
	return map[string]any{
		"recipe":        DefaultRecipe,
		"mapping":       DefaultMapping,
		"layout":        DefaultLayout,
		"datacube.type": DefaultDataCubeType,
		"state_path":    DefaultStateFile,
		"record":        false,
		"parallel":      false,
		"workers":       0,
		"log_level":     DefaultLogLevel,
		"verbose":       false,
		"output":        DefaultOutput,
	}
}
