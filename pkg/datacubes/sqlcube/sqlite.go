package sqlcube

import (
	"github.com/lisahligono/semantique/pkg/datacube"

	_ "modernc.org/sqlite" // sqlite driver
)

func init() {
	datacube.Register(sqliteDialect.name, opener(sqliteDialect))
}
