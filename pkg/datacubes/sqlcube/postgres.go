package sqlcube

import (
	"github.com/lisahligono/semantique/pkg/datacube"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

func init() {
	datacube.Register(postgresDialect.name, opener(postgresDialect))
}
