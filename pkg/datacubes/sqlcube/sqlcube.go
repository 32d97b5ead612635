// Package sqlcube serves layers stored as cell tables in a SQL database.
//
// A layer is a table with one integer column per dimension (the zero-based
// cell index along that dimension) and one value column. The table name is
// the layout source unless the layout params override it. Missing cells and
// NULL values read as NaN.
//
// Three registrations share this implementation: "sqlite" (modernc.org/sqlite),
// "duckdb" (go-duckdb) and "postgres" (pgx).
package sqlcube

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/lisahligono/semantique/pkg/core"
	"github.com/lisahligono/semantique/pkg/datacube"
)

// Cube is a data cube backed by a database/sql connection.
type Cube struct {
	db      *sql.DB
	dialect dialect
	params  *Params
	logger  *slog.Logger
}

// NewFromDB wraps an open connection. dialectName is "sqlite", "duckdb" or
// "postgres". A nil params uses defaults; a nil logger discards output.
func NewFromDB(db *sql.DB, dialectName string, params *Params, logger *slog.Logger) (*Cube, error) {
	d, err := dialectByName(dialectName)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params, _ = ParseParams(nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cube{db: db, dialect: d, params: params, logger: logger}, nil
}

func opener(d dialect) datacube.Factory {
	return func(ctx context.Context, cfg datacube.Config, logger *slog.Logger) (datacube.Driver, error) {
		params, err := ParseParams(cfg.Params)
		if err != nil {
			return nil, err
		}

		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		if d.name == postgresDialect.name && dsn == "" {
			return nil, fmt.Errorf("postgres data cube needs a dsn")
		}
		if d.name == sqliteDialect.name && dsn == "" {
			dsn = ":memory:"
		}

		logger.Debug("opening sql data cube", "dialect", d.name)
		db, err := sql.Open(d.driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s connection: %w", d.name, err)
		}
		if d.name == sqliteDialect.name && dsn == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping %s: %w", d.name, err)
		}

		for _, key := range slices.Sorted(maps.Keys(params.Settings)) {
			stmt, err := d.setting(key, params.Settings[key])
			if err != nil {
				_ = db.Close()
				return nil, err
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to apply setting %s: %w", key, err)
			}
		}

		return &Cube{db: db, dialect: d, params: params, logger: logger}, nil
	}
}

// Name implements datacube.Driver.
func (c *Cube) Name() string { return c.dialect.name }

// Close implements datacube.Driver.
func (c *Cube) Close() error {
	if c.db == nil {
		return nil
	}
	c.logger.Debug("closing database connection")
	return c.db.Close()
}

// DB returns the underlying connection.
func (c *Cube) DB() *sql.DB { return c.db }

func (c *Cube) resolveLayer(loc *core.LayerLocator) (table, valueCol string, err error) {
	var lp layerParams
	if err := decode(loc.Params, &lp); err != nil {
		return "", "", fmt.Errorf("invalid layer params: %w", err)
	}
	table = loc.Source
	if lp.Table != "" {
		table = lp.Table
	}
	valueCol = c.params.ValueColumn
	if lp.ValueColumn != "" {
		valueCol = lp.ValueColumn
	}
	return table, valueCol, nil
}

// selectQuery builds the cell query for a layer.
func (c *Cube) selectQuery(loc *core.LayerLocator) (string, error) {
	table, valueCol, err := c.resolveLayer(loc)
	if err != nil {
		return "", err
	}
	from, err := qualifiedTable(c.params.Schema, table)
	if err != nil {
		return "", err
	}
	cols := make([]string, 0, len(loc.Dims)+1)
	for _, d := range loc.Dims {
		q, err := quoteIdent(d)
		if err != nil {
			return "", err
		}
		cols = append(cols, q)
	}
	v, err := quoteIdent(valueCol)
	if err != nil {
		return "", err
	}
	cols = append(cols, v)
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), from), nil
}

type cell struct {
	index []int
	value float64
}

// Fetch implements core.DataCube.
func (c *Cube) Fetch(ctx context.Context, loc *core.LayerLocator) (*core.Array, error) {
	query, err := c.selectQuery(loc)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetching layer", "source", loc.Source, "query", query)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query layer %q: %w", loc.Source, err)
	}
	defer func() { _ = rows.Close() }()

	ndim := len(loc.Dims)
	shape := make([]int, ndim)
	var cells []cell
	for rows.Next() {
		idx := make([]sql.NullInt64, ndim)
		var val sql.NullFloat64
		dest := make([]any, 0, ndim+1)
		for i := range idx {
			dest = append(dest, &idx[i])
		}
		dest = append(dest, &val)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan cell of %q: %w", loc.Source, err)
		}

		ce := cell{index: make([]int, ndim), value: math.NaN()}
		for i, n := range idx {
			if !n.Valid || n.Int64 < 0 {
				return nil, fmt.Errorf("layer %q: invalid index %v for dimension %q", loc.Source, n, loc.Dims[i])
			}
			ce.index[i] = int(n.Int64)
			shape[i] = max(shape[i], ce.index[i]+1)
		}
		if val.Valid {
			ce.value = val.Float64
		}
		cells = append(cells, ce)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cells of %q: %w", loc.Source, err)
	}
	if ndim == 0 && len(cells) != 1 {
		return nil, fmt.Errorf("layer %q has no dimensions and %d rows, want 1", loc.Source, len(cells))
	}

	size := 1
	for _, n := range shape {
		size *= n
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = math.NaN()
	}
	seen := make([]bool, size)
	for _, ce := range cells {
		off := offset(ce.index, shape)
		if seen[off] {
			return nil, fmt.Errorf("layer %q: duplicate cell %v", loc.Source, ce.index)
		}
		seen[off] = true
		data[off] = ce.value
	}

	name := loc.Source
	if len(loc.Path) > 0 {
		name = loc.Path[len(loc.Path)-1]
	}
	return core.NewArray(name, loc.Dims, shape, data)
}

// Store writes arr as a cell table, creating the table if needed. NaN cells
// are stored as NULL so the shape survives a round trip.
func (c *Cube) Store(ctx context.Context, table string, arr *core.Array) error {
	from, err := qualifiedTable(c.params.Schema, table)
	if err != nil {
		return err
	}
	defs := make([]string, 0, len(arr.Dims)+1)
	cols := make([]string, 0, len(arr.Dims)+1)
	for _, d := range arr.Dims {
		q, err := quoteIdent(d)
		if err != nil {
			return err
		}
		defs = append(defs, q+" INTEGER NOT NULL")
		cols = append(cols, q)
	}
	v, err := quoteIdent(c.params.ValueColumn)
	if err != nil {
		return err
	}
	defs = append(defs, v+" DOUBLE PRECISION")
	cols = append(cols, v)

	holders := make([]string, len(cols))
	for i := range holders {
		holders[i] = c.dialect.placeholder(i + 1)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", from, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", from, strings.Join(cols, ", "), strings.Join(holders, ", "))

	index := make([]int, len(arr.Shape))
	for off, value := range arr.Data {
		unravel(off, arr.Shape, index)
		args := make([]any, 0, len(cols))
		for _, i := range index {
			args = append(args, int64(i))
		}
		if math.IsNaN(value) {
			args = append(args, nil)
		} else {
			args = append(args, value)
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("failed to insert cell %v into %s: %w", index, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", table, err)
	}
	return nil
}

// offset converts a multi-index into a row-major position.
func offset(index, shape []int) int {
	off := 0
	for i, n := range shape {
		off = off*n + index[i]
	}
	return off
}

// unravel is the inverse of offset, writing into index.
func unravel(off int, shape, index []int) {
	for i := len(shape) - 1; i >= 0; i-- {
		index[i] = off % shape[i]
		off /= shape[i]
	}
}

var _ datacube.Driver = (*Cube)(nil)
