package db

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/tordrt/fieldlog/internal/schema"
)

// SchemaExtractor loads table definitions from a live database
type SchemaExtractor interface {
	// ExtractSchema extracts the named tables, or every table when tables is empty
	ExtractSchema(ctx context.Context, tables []string) (*schema.Schema, error)
}

var (
	_ SchemaExtractor = (*PostgresExtractor)(nil)
	_ SchemaExtractor = (*MySQLExtractor)(nil)
	_ SchemaExtractor = (*SQLiteExtractor)(nil)
)

// ExtractTable extracts a single table
func ExtractTable(ctx context.Context, e SchemaExtractor, name string) (*schema.Table, error) {
	s, err := e.ExtractSchema(ctx, []string{name})
	if err != nil {
		return nil, err
	}
	t := s.Table(name)
	if t == nil || len(t.Columns) == 0 {
		return nil, &TableNotFoundError{Table: name}
	}
	return t, nil
}

// TableNotFoundError is returned when an extracted table has no columns
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return "table not found: " + e.Table
}

// markPrimaryKey flags the primary key columns of table
func markPrimaryKey(table *schema.Table, pk []string) {
	table.PrimaryKey = pk
	for _, name := range pk {
		if col := table.Column(name); col != nil {
			col.PrimaryKey = true
		}
	}
}

// fkRow is one column pair of a foreign key as returned by the catalogs
type fkRow struct {
	name         string
	targetTable  string
	targetSchema string
	column       string
	targetColumn string
	onDelete     string
	onUpdate     string
}

// groupForeignKeys folds column pairs into composite foreign keys, keeping
// the order in which constraints first appear.
func groupForeignKeys(rows []fkRow) []schema.ForeignKey {
	var fks []schema.ForeignKey
	index := make(map[string]int)

	for _, r := range rows {
		i, ok := index[r.name]
		if !ok {
			fks = append(fks, schema.ForeignKey{
				Name:         r.name,
				TargetTable:  r.targetTable,
				TargetSchema: r.targetSchema,
				OnDelete:     normalizeAction(r.onDelete),
				OnUpdate:     normalizeAction(r.onUpdate),
			})
			i = len(fks) - 1
			index[r.name] = i
		}
		fks[i].Columns = append(fks[i].Columns, r.column)
		fks[i].TargetColumns = append(fks[i].TargetColumns, r.targetColumn)
	}

	return fks
}

// normalizeAction maps catalog spellings of referential actions, including
// PostgreSQL's single letter codes, to the schema constants.
func normalizeAction(action string) string {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "C", "CASCADE":
		return schema.ActionCascade
	case "N", "SET NULL":
		return schema.ActionSetNull
	case "R", "RESTRICT":
		return schema.ActionRestrict
	case "D", "SET DEFAULT":
		return "SET DEFAULT"
	default:
		return schema.ActionNone
	}
}

var sizedType = regexp.MustCompile(`^\s*([A-Za-z ]+?)\s*\(\s*(\d+)\s*\)\s*$`)

// splitTypeSize splits "varchar(100)" into ("varchar", 100). Types without a
// single numeric argument are returned unchanged with size 0.
func splitTypeSize(t string) (string, int) {
	m := sizedType.FindStringSubmatch(t)
	if m == nil {
		return t, 0
	}
	size, err := strconv.Atoi(m[2])
	if err != nil {
		return t, 0
	}
	return m[1], size
}
