package sqlcube

import (
	"fmt"
	"regexp"
	"strings"
)

// dialect captures the few differences between the supported databases.
type dialect struct {
	name       string
	driverName string
	// placeholder returns the bind parameter for the n-th (1-based) argument.
	placeholder func(n int) string
	// settingVerb starts a session setting statement.
	settingVerb string
}

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		driverName:  "sqlite",
		placeholder: func(int) string { return "?" },
		settingVerb: "PRAGMA",
	}
	duckdbDialect = dialect{
		name:        "duckdb",
		driverName:  "duckdb",
		placeholder: func(int) string { return "?" },
		settingVerb: "SET",
	}
	postgresDialect = dialect{
		name:        "postgres",
		driverName:  "pgx",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		settingVerb: "SET",
	}
)

// setting renders a session setting statement. The key must be a plain
// name and the value is quoted as a string literal.
func (d dialect) setting(key, value string) (string, error) {
	if !identRe.MatchString(key) {
		return "", fmt.Errorf("invalid setting name %q", key)
	}
	return fmt.Sprintf("%s %s = '%s'", d.settingVerb, key, strings.ReplaceAll(value, "'", "''")), nil
}

func dialectByName(name string) (dialect, error) {
	switch name {
	case sqliteDialect.name:
		return sqliteDialect, nil
	case duckdbDialect.name:
		return duckdbDialect, nil
	case postgresDialect.name:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent validates and double-quotes an identifier. Identifiers come from
// layout files, so anything outside plain names is rejected.
func quoteIdent(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

func qualifiedTable(schema, table string) (string, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	if schema == "" {
		return t, nil
	}
	s, err := quoteIdent(schema)
	if err != nil {
		return "", err
	}
	return s + "." + t, nil
}
