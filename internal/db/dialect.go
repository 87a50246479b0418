package db

import (
	"fmt"
	"strings"
)

// Dialect is the SQL flavour of a backend
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// Quote quotes an identifier
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteQualified quotes "namespace.name" part by part
func (d Dialect) QuoteQualified(namespace, name string) string {
	if namespace == "" {
		return d.Quote(name)
	}
	return d.Quote(namespace) + "." + d.Quote(name)
}

// Placeholder returns the bind parameter for the n-th argument, counting from 1
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
