package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/fieldlog/internal/schema"
)

// TextFormatter formats schema as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the schema in compact text format
func (f *TextFormatter) Format(s *schema.Schema) error {
	for i, table := range s.Tables {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer) // Blank line between tables
		}

		f.formatTable(table)
	}
	return nil
}

func (f *TextFormatter) formatTable(table *schema.Table) {
	pkStr := ""
	if len(table.PrimaryKey) > 0 {
		pkStr = fmt.Sprintf(" (PK: %s)", strings.Join(table.PrimaryKey, ", "))
	}
	skip := ""
	if table.SkipSQL {
		skip = " [skip sql]"
	}
	_, _ = fmt.Fprintf(f.writer, "TABLE %s%s%s\n", table.QualifiedName(), pkStr, skip)

	for _, col := range table.Columns {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", f.formatColumn(col))
	}

	if len(table.ForeignKeys) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  FOREIGN KEYS:")
		for _, fk := range table.ForeignKeys {
			_, _ = fmt.Fprintf(f.writer, "    %s\n", describeForeignKey(fk))
		}
	}
}

func (f *TextFormatter) formatColumn(col schema.Column) string {
	parts := []string{col.Name + ":"}

	// Type with enum values if present
	parts = append(parts, describeType(col))

	if col.IsUnique {
		parts = append(parts, "UNIQUE")
	}

	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}

	if col.DefaultValue != nil {
		parts = append(parts, fmt.Sprintf("DEFAULT %s", *col.DefaultValue))
	}

	return strings.Join(parts, " ")
}

// describeType renders the column type with its size and enum values
func describeType(col schema.Column) string {
	typeStr := col.Type
	if col.Size > 0 && !strings.Contains(typeStr, "(") {
		typeStr = fmt.Sprintf("%s(%d)", typeStr, col.Size)
	}
	if len(col.EnumValues) > 0 {
		typeStr = fmt.Sprintf("%s (%s)", typeStr, strings.Join(col.EnumValues, "|"))
	}
	return typeStr
}

// describeForeignKey renders "name: (a, b) → target(x, y) ON DELETE CASCADE"
func describeForeignKey(fk schema.ForeignKey) string {
	target := fk.TargetTable
	if fk.TargetSchema != "" {
		target = fk.TargetSchema + "." + target
	}

	s := fmt.Sprintf("%s: (%s) → %s(%s)",
		fk.Name,
		strings.Join(fk.Columns, ", "),
		target,
		strings.Join(fk.TargetColumns, ", "))

	if fk.OnDelete != "" && fk.OnDelete != schema.ActionNone {
		s += " ON DELETE " + fk.OnDelete
	}
	if fk.OnUpdate != "" && fk.OnUpdate != schema.ActionNone {
		s += " ON UPDATE " + fk.OnUpdate
	}
	return s
}
