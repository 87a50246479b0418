package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tordrt/fieldlog/internal/schema"
)

// CreateTableSQL renders an idempotent CREATE TABLE statement for t
func CreateTableSQL(d Dialect, t *schema.Table) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", d.QuoteQualified(t.Namespace, t.Name))

	var lines []string
	for _, col := range t.Columns {
		lines = append(lines, "    "+columnDefinition(d, col))
	}
	if len(t.PrimaryKey) > 0 {
		lines = append(lines, fmt.Sprintf("    PRIMARY KEY (%s)", quoteList(d, t.PrimaryKey)))
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, "    "+foreignKeyDefinition(d, fk))
	}

	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

// CreateTablesSQL renders the statements for tables, leaving out those
// whose DDL is managed elsewhere
func CreateTablesSQL(d Dialect, tables []*schema.Table) []string {
	var out []string
	for _, t := range tables {
		if t.SkipSQL {
			continue
		}
		out = append(out, CreateTableSQL(d, t))
	}
	return out
}

// columnType renders the type of col, appending the size unless the type
// already carries its own arguments
func columnType(col schema.Column) string {
	if col.Size > 0 && !strings.Contains(col.Type, "(") {
		return col.Type + "(" + strconv.Itoa(col.Size) + ")"
	}
	return col.Type
}

func columnDefinition(d Dialect, col schema.Column) string {
	parts := []string{d.Quote(col.Name), columnType(col)}

	if col.Nullable {
		parts = append(parts, "NULL")
	} else {
		parts = append(parts, "NOT NULL")
	}
	if col.DefaultValue != nil {
		parts = append(parts, "DEFAULT "+*col.DefaultValue)
	}
	if col.IsUnique && !col.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}

	return strings.Join(parts, " ")
}

func foreignKeyDefinition(d Dialect, fk schema.ForeignKey) string {
	def := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Quote(fk.Name),
		quoteList(d, fk.Columns),
		d.QuoteQualified(fk.TargetSchema, fk.TargetTable),
		quoteList(d, fk.TargetColumns))

	if fk.OnDelete != "" && fk.OnDelete != schema.ActionNone {
		def += " ON DELETE " + fk.OnDelete
	}
	if fk.OnUpdate != "" && fk.OnUpdate != schema.ActionNone {
		def += " ON UPDATE " + fk.OnUpdate
	}
	return def
}

func quoteList(d Dialect, idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = d.Quote(ident)
	}
	return strings.Join(quoted, ", ")
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

// applyStatements runs statements in order on an *sql.DB or *sql.Tx
func applyStatements(ctx context.Context, q Querier, statements []string) error {
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}
