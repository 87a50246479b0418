package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/fieldlog/internal/db"
	"github.com/tordrt/fieldlog/internal/schema"
)

// SQLFormatter writes CREATE TABLE statements for one dialect
type SQLFormatter struct {
	writer  io.Writer
	dialect db.Dialect
}

// NewSQLFormatter creates a new SQL formatter
func NewSQLFormatter(w io.Writer, d db.Dialect) *SQLFormatter {
	return &SQLFormatter{writer: w, dialect: d}
}

// Format writes one statement per table, skipping tables whose DDL is
// managed elsewhere
func (f *SQLFormatter) Format(s *schema.Schema) error {
	for i, stmt := range db.CreateTablesSQL(f.dialect, s.Tables) {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer)
		}
		if _, err := fmt.Fprintf(f.writer, "%s;\n", stmt); err != nil {
			return err
		}
	}
	return nil
}
