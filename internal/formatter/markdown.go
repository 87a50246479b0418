package formatter

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/tordrt/fieldlog/internal/schema"
)

// MarkdownFormatter formats schema as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the schema in markdown format
func (f *MarkdownFormatter) Format(s *schema.Schema) error {
	_, _ = fmt.Fprintln(f.writer, "# Change Log Tables")
	_, _ = fmt.Fprintln(f.writer)

	for _, table := range s.Tables {
		f.formatTable(table)
	}
	return nil
}

func (f *MarkdownFormatter) formatTable(table *schema.Table) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", table.QualifiedName())

	if table.SkipSQL {
		_, _ = fmt.Fprintln(f.writer, "_DDL managed elsewhere._")
		_, _ = fmt.Fprintln(f.writer)
	}

	_, _ = fmt.Fprintln(f.writer, "### Columns")
	_, _ = fmt.Fprintln(f.writer)

	for _, col := range table.Columns {
		typeStr := describeType(col)

		constraintStr := f.formatConstraints(col, table.PrimaryKey)
		if constraintStr != "" {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s, %s\n", col.Name, typeStr, constraintStr)
		} else {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", col.Name, typeStr)
		}
	}
	_, _ = fmt.Fprintln(f.writer)

	if len(table.ForeignKeys) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### References")
		_, _ = fmt.Fprintln(f.writer)
		for _, fk := range table.ForeignKeys {
			_, _ = fmt.Fprintf(f.writer, "- %s\n", describeForeignKey(fk))
		}
		_, _ = fmt.Fprintln(f.writer)
	}
}

func (f *MarkdownFormatter) formatConstraints(col schema.Column, primaryKey []string) string {
	var constraints []string

	if slices.Contains(primaryKey, col.Name) {
		constraints = append(constraints, "PK")
	}

	if col.IsUnique {
		constraints = append(constraints, "UNIQUE")
	}

	if !col.Nullable {
		constraints = append(constraints, "NOT NULL")
	}

	if col.DefaultValue != nil {
		constraints = append(constraints, fmt.Sprintf("DEFAULT %s", *col.DefaultValue))
	}

	return strings.Join(constraints, ", ")
}
