package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/tordrt/fieldlog/internal/schema"
)

// SQLiteExtractor handles schema extraction from SQLite
type SQLiteExtractor struct {
	client *SQLiteClient
}

// NewSQLiteExtractor creates a new SQLite schema extractor
func NewSQLiteExtractor(client *SQLiteClient) *SQLiteExtractor {
	return &SQLiteExtractor{
		client: client,
	}
}

// ExtractSchema extracts the complete schema for specified tables
// If tables is empty, extracts all tables in the database
func (e *SQLiteExtractor) ExtractSchema(ctx context.Context, tables []string) (*schema.Schema, error) {
	tableNames, err := e.getTableNames(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	extracted := &schema.Schema{}
	for _, tableName := range tableNames {
		table, err := e.extractTable(ctx, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", tableName, err)
		}
		extracted.AddTable(table)
	}

	return extracted, nil
}

// getTableNames returns the list of tables to extract
func (e *SQLiteExtractor) getTableNames(ctx context.Context, requestedTables []string) ([]string, error) {
	if len(requestedTables) > 0 {
		return requestedTables, nil
	}

	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tableList []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tableList = append(tableList, tableName)
	}

	return tableList, rows.Err()
}

// extractTable extracts all information for a single table
func (e *SQLiteExtractor) extractTable(ctx context.Context, tableName string) (*schema.Table, error) {
	table := &schema.Table{Name: tableName}

	columns, pk, err := e.extractColumns(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Columns = columns
	markPrimaryKey(table, pk)

	// A lone INTEGER primary key aliases the rowid and is assigned on insert
	if len(pk) == 1 {
		if col := table.Column(pk[0]); col != nil && strings.EqualFold(col.Type, "INTEGER") {
			col.AutoIncrement = true
		}
	}

	fks, err := e.extractForeignKeys(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}
	table.ForeignKeys = fks

	return table, nil
}

// extractColumns extracts column information and the primary key in key order
func (e *SQLiteExtractor) extractColumns(ctx context.Context, tableName string) ([]schema.Column, []string, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", SQLite.Quote(tableName))

	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	pkOrder := make(map[string]int)

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, nil, err
		}

		col := schema.Column{
			Name:     name,
			Nullable: notNull == 0 && pk == 0,
		}
		col.Type, col.Size = splitTypeSize(colType)

		if defaultValue.Valid {
			col.DefaultValue = &defaultValue.String
		}

		if pk > 0 {
			pkOrder[name] = pk
		}

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	pkColumns := make([]string, 0, len(pkOrder))
	for name := range pkOrder {
		pkColumns = append(pkColumns, name)
	}
	sort.Slice(pkColumns, func(i, j int) bool {
		return pkOrder[pkColumns[i]] < pkOrder[pkColumns[j]]
	})

	unique, err := e.uniqueColumns(ctx, tableName)
	if err != nil {
		return nil, nil, err
	}
	for i := range columns {
		columns[i].IsUnique = unique[columns[i].Name] && !slices.Contains(pkColumns, columns[i].Name)
	}

	return columns, pkColumns, nil
}

// uniqueColumns returns the columns covered on their own by a unique index
func (e *SQLiteExtractor) uniqueColumns(ctx context.Context, tableName string) (map[string]bool, error) {
	query := fmt.Sprintf("PRAGMA index_list(%s)", SQLite.Quote(tableName))
	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	var uniqueIndexes []string
	for rows.Next() {
		var seq int
		var name, origin string
		var isUnique, partial int

		if err := rows.Scan(&seq, &name, &isUnique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}
		if isUnique == 1 && origin != "pk" {
			uniqueIndexes = append(uniqueIndexes, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make(map[string]bool)
	for _, name := range uniqueIndexes {
		indexColumns, err := e.indexColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(indexColumns) == 1 {
			result[indexColumns[0]] = true
		}
	}

	return result, nil
}

func (e *SQLiteExtractor) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	query := fmt.Sprintf("PRAGMA index_info(%s)", SQLite.Quote(indexName))
	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var colName sql.NullString

		if err := rows.Scan(&seqno, &cid, &colName); err != nil {
			return nil, err
		}
		if colName.Valid {
			columns = append(columns, colName.String)
		}
	}

	return columns, rows.Err()
}

// extractForeignKeys extracts foreign keys. SQLite does not keep constraint
// names, so keys are named after the table and the pragma's key id.
func (e *SQLiteExtractor) extractForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", SQLite.Quote(tableName))

	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fkRows []fkRow
	for rows.Next() {
		var id, seq int
		var targetTable, fromCol, onUpdate, onDelete, match string
		var toCol sql.NullString

		if err := rows.Scan(&id, &seq, &targetTable, &fromCol, &toCol, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		fkRows = append(fkRows, fkRow{
			name:         fmt.Sprintf("%s_fk_%d", tableName, id),
			targetTable:  targetTable,
			column:       fromCol,
			targetColumn: toCol.String,
			onDelete:     onDelete,
			onUpdate:     onUpdate,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groupForeignKeys(fkRows), nil
}
