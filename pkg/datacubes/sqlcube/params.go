package sqlcube

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds driver-level settings.
// Parsed from datacube.Config.Params using mapstructure.
type Params struct {
	// Schema qualifies table names (e.g. "public"). Empty uses the default.
	Schema string `mapstructure:"schema"`

	// ValueColumn is the column holding cell values. Defaults to "value".
	ValueColumn string `mapstructure:"value_column"`

	// Settings are applied at session level when the database is opened
	// (DuckDB and Postgres SET, SQLite PRAGMA).
	Settings map[string]string `mapstructure:"settings"`
}

// layerParams are per-layer overrides taken from the layout's params.
type layerParams struct {
	Table       string `mapstructure:"table"`
	ValueColumn string `mapstructure:"value_column"`
}

// ParseParams decodes driver params. Unknown keys are errors.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if err := decode(raw, p); err != nil {
		return nil, fmt.Errorf("invalid data cube params: %w", err)
	}
	if p.ValueColumn == "" {
		p.ValueColumn = "value"
	}
	return p, nil
}

func decode(raw map[string]any, out any) error {
	if raw == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}
