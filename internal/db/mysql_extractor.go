package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/tordrt/fieldlog/internal/schema"
)

// MySQLExtractor handles schema extraction from MySQL
type MySQLExtractor struct {
	client     *MySQLClient
	schemaName string
}

// NewMySQLExtractor creates a new MySQL schema extractor
func NewMySQLExtractor(client *MySQLClient, schemaName string) *MySQLExtractor {
	return &MySQLExtractor{
		client:     client,
		schemaName: schemaName,
	}
}

// ExtractSchema extracts the complete schema for specified tables
// If tables is empty, extracts all tables in the schema
func (e *MySQLExtractor) ExtractSchema(ctx context.Context, tables []string) (*schema.Schema, error) {
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
func (e *MySQLExtractor) getTableNames(ctx context.Context, requestedTables []string) ([]string, error) {
	if len(requestedTables) > 0 {
		return requestedTables, nil
	}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

// extractTable extracts all information for a single table
func (e *MySQLExtractor) extractTable(ctx context.Context, tableName string) (*schema.Table, error) {
	table := &schema.Table{Name: tableName, Namespace: e.schemaName}

	columns, err := e.extractColumns(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Columns = columns

	pk, err := e.extractPrimaryKey(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract primary key: %w", err)
	}
	markPrimaryKey(table, pk)

	fks, err := e.extractForeignKeys(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}
	table.ForeignKeys = fks

	return table, nil
}

// extractColumns extracts column information for a table
func (e *MySQLExtractor) extractColumns(ctx context.Context, tableName string) ([]schema.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable,
			c.column_default,
			CASE WHEN EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
					AND tc.table_name = kcu.table_name
				WHERE tc.table_schema = ?
					AND tc.table_name = ?
					AND tc.constraint_type = 'UNIQUE'
					AND kcu.column_name = c.column_name
			) THEN true ELSE false END as is_unique,
			c.data_type,
			c.extra
		FROM information_schema.columns c
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, tableName, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	var enumColumns []int

	for rows.Next() {
		var col schema.Column
		var columnType string
		var nullable string
		var defaultVal sql.NullString
		var isUnique bool
		var dataType string
		var extra sql.NullString

		if err := rows.Scan(&col.Name, &columnType, &nullable, &defaultVal, &isUnique, &dataType, &extra); err != nil {
			return nil, err
		}

		// column_type keeps display width and unsigned, which foreign keys
		// referencing the column must repeat
		col.Type, col.Size = splitTypeSize(columnType)
		col.Nullable = nullable == "YES"
		col.AutoIncrement = strings.Contains(strings.ToLower(extra.String), "auto_increment")
		col.IsUnique = isUnique
		if defaultVal.Valid {
			def := mysqlDefault(defaultVal.String, extra.String)
			col.DefaultValue = &def
		}

		// Check if this is an ENUM column
		if dataType == "enum" {
			enumColumns = append(enumColumns, len(columns))
		}

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Extract enum values for enum columns
	for _, idx := range enumColumns {
		enumValues, err := e.extractEnumValues(columns[idx].Type)
		if err != nil {
			return nil, err
		}
		columns[idx].EnumValues = enumValues
	}

	return columns, nil
}

// mysqlDefault turns information_schema.column_default into an SQL
// expression. Literal defaults are stored unquoted; expression defaults are
// flagged DEFAULT_GENERATED in extra.
func mysqlDefault(value, extra string) string {
	if strings.Contains(strings.ToUpper(extra), "DEFAULT_GENERATED") || value == "NULL" {
		return value
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// extractEnumValues parses enum values from the column type string
// MySQL stores enum types as "enum('value1','value2','value3')"
func (e *MySQLExtractor) extractEnumValues(columnType string) ([]string, error) {
	if !strings.HasPrefix(columnType, "enum(") {
		return nil, nil
	}

	// Extract the part between enum( and )
	start := strings.Index(columnType, "(")
	end := strings.LastIndex(columnType, ")")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("invalid enum type format: %s", columnType)
	}

	enumList := columnType[start+1 : end]

	// Split by comma and clean up quotes
	var values []string
	parts := strings.Split(enumList, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		// Remove surrounding quotes
		if len(part) >= 2 && part[0] == '\'' && part[len(part)-1] == '\'' {
			part = part[1 : len(part)-1]
		}
		values = append(values, part)
	}

	return values, nil
}

// extractPrimaryKey extracts primary key columns
func (e *MySQLExtractor) extractPrimaryKey(ctx context.Context, tableName string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
			AND table_name = ?
			AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var colName string
		if err := rows.Scan(&colName); err != nil {
			return nil, err
		}
		pk = append(pk, colName)
	}

	return pk, rows.Err()
}

// extractForeignKeys extracts foreign keys with their referential actions
func (e *MySQLExtractor) extractForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	query := `
		SELECT
			kcu.constraint_name,
			kcu.referenced_table_name,
			kcu.referenced_table_schema,
			kcu.column_name,
			kcu.referenced_column_name,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = kcu.constraint_schema
			AND rc.constraint_name = kcu.constraint_name
			AND rc.table_name = kcu.table_name
		WHERE kcu.table_schema = ?
			AND kcu.table_name = ?
			AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.constraint_name, kcu.ordinal_position
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fkRows []fkRow
	for rows.Next() {
		var r fkRow
		if err := rows.Scan(&r.name, &r.targetTable, &r.targetSchema, &r.column, &r.targetColumn, &r.onDelete, &r.onUpdate); err != nil {
			return nil, err
		}
		if r.targetSchema == e.schemaName {
			r.targetSchema = ""
		}
		fkRows = append(fkRows, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groupForeignKeys(fkRows), nil
}
