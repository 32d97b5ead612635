package memory

import (
	"context"
	"log/slog"

	"github.com/lisahligono/semantique/pkg/datacube"
)

func init() {
	datacube.Register("memory", func(_ context.Context, cfg datacube.Config, logger *slog.Logger) (datacube.Driver, error) {
		c := New(logger)
		if cfg.Path != "" {
			if err := c.LoadFile(cfg.Path); err != nil {
				return nil, err
			}
		}
		return c, nil
	})
}
