package sqlcube

import (
	"github.com/lisahligono/semantique/pkg/datacube"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	datacube.Register(duckdbDialect.name, opener(duckdbDialect))
}
