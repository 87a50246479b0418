package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/tordrt/fieldlog/internal/schema"
)

const varcharType = "varchar"

// PostgresExtractor handles schema extraction from PostgreSQL
type PostgresExtractor struct {
	client *PostgresClient
	schema string
}

// NewPostgresExtractor creates a new schema extractor
func NewPostgresExtractor(client *PostgresClient, schemaName string) *PostgresExtractor {
	return &PostgresExtractor{
		client: client,
		schema: schemaName,
	}
}

// ExtractSchema extracts the complete schema for specified tables
// If tables is empty, extracts all tables in the schema
func (e *PostgresExtractor) ExtractSchema(ctx context.Context, tables []string) (*schema.Schema, error) {
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
func (e *PostgresExtractor) getTableNames(ctx context.Context, requestedTables []string) ([]string, error) {
	if len(requestedTables) > 0 {
		return requestedTables, nil
	}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema)
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
func (e *PostgresExtractor) extractTable(ctx context.Context, tableName string) (*schema.Table, error) {
	table := &schema.Table{Name: tableName, Namespace: e.schema}

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

// normalizePostgresType maps verbose SQL type names to commonly-used PostgreSQL
// equivalents. Lengths of character types are reported separately as the size.
func normalizePostgresType(dataType, udtName string) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "time with time zone":
		return "timetz"
	case "time without time zone":
		return "time"
	case "character varying":
		return varcharType
	case "character":
		return "char"
	case "ARRAY":
		// udt_name has underscore prefix for arrays (e.g., "_text" for text[], "_int4" for integer[])
		if len(udtName) > 0 && udtName[0] == '_' {
			return normalizeUdtName(udtName[1:]) + "[]"
		}
		return "array"
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}

// normalizeUdtName converts PostgreSQL internal type names to more readable forms
func normalizeUdtName(udtName string) string {
	switch udtName {
	case "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "int2":
		return "smallint"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	case varcharType:
		return varcharType
	default:
		return udtName
	}
}

// isSerialDefault reports whether a column default draws from a sequence
func isSerialDefault(def *string) bool {
	return def != nil && strings.HasPrefix(*def, "nextval(")
}

// extractColumns extracts column information for a table
func (e *PostgresExtractor) extractColumns(ctx context.Context, tableName string) ([]schema.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			CASE WHEN EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.constraint_column_usage ccu
					ON tc.constraint_name = ccu.constraint_name
					AND tc.table_schema = ccu.table_schema
				WHERE tc.table_schema = $1
					AND tc.table_name = $2
					AND tc.constraint_type = 'UNIQUE'
					AND ccu.column_name = c.column_name
			) THEN true ELSE false END as is_unique,
			c.udt_name,
			c.character_maximum_length,
			c.is_identity = 'YES' as is_identity
		FROM information_schema.columns c
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	var enumTypes []string

	// First pass: collect all columns and enum type names
	for rows.Next() {
		var col schema.Column
		var nullable string
		var defaultVal *string
		var dataType string
		var udtName string
		var charMaxLength *int
		var isIdentity bool

		if err := rows.Scan(&col.Name, &dataType, &nullable, &defaultVal, &col.IsUnique, &udtName, &charMaxLength, &isIdentity); err != nil {
			return nil, err
		}

		col.Nullable = nullable == "YES"
		col.DefaultValue = defaultVal
		col.Type = normalizePostgresType(dataType, udtName)
		if charMaxLength != nil {
			col.Size = *charMaxLength
		}
		col.AutoIncrement = isIdentity || isSerialDefault(defaultVal)

		if dataType == "USER-DEFINED" {
			enumTypes = append(enumTypes, udtName)
		}

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Second pass: fetch enum values for all USER-DEFINED types
	if len(enumTypes) > 0 {
		enumValuesMap, err := e.extractEnumValuesMap(ctx, enumTypes)
		if err != nil {
			return nil, err
		}

		for i := range columns {
			if values, ok := enumValuesMap[columns[i].Type]; ok {
				columns[i].EnumValues = values
			}
		}
	}

	return columns, nil
}

// extractEnumValuesMap extracts enum values for multiple enum types at once
func (e *PostgresExtractor) extractEnumValuesMap(ctx context.Context, enumTypeNames []string) (map[string][]string, error) {
	query := `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_namespace n ON t.typnamespace = n.oid
		WHERE n.nspname = $1 AND t.typname = ANY($2)
		ORDER BY t.typname, e.enumsortorder
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema, enumTypeNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var typName, enumLabel string
		if err := rows.Scan(&typName, &enumLabel); err != nil {
			return nil, err
		}
		result[typName] = append(result[typName], enumLabel)
	}

	return result, rows.Err()
}

// extractPrimaryKey extracts primary key columns
func (e *PostgresExtractor) extractPrimaryKey(ctx context.Context, tableName string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = $1
			AND table_name = $2
			AND constraint_name IN (
				SELECT constraint_name
				FROM information_schema.table_constraints
				WHERE table_schema = $1
					AND table_name = $2
					AND constraint_type = 'PRIMARY KEY'
			)
		ORDER BY ordinal_position
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema, tableName)
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

// extractForeignKeys extracts foreign keys with their referential actions.
// Composite keys come back one row per column pair, in key order.
func (e *PostgresExtractor) extractForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	query := `
		SELECT
			con.conname,
			tgt.relname,
			tn.nspname,
			a.attname,
			ta.attname,
			con.confdeltype::text,
			con.confupdtype::text
		FROM pg_constraint con
		JOIN pg_class src ON src.oid = con.conrelid
		JOIN pg_namespace sn ON sn.oid = src.relnamespace
		JOIN pg_class tgt ON tgt.oid = con.confrelid
		JOIN pg_namespace tn ON tn.oid = tgt.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		JOIN pg_attribute ta ON ta.attrelid = con.confrelid AND ta.attnum = k.fattnum
		WHERE con.contype = 'f'
			AND sn.nspname = $1
			AND src.relname = $2
		ORDER BY con.conname, k.ord
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema, tableName)
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
		if r.targetSchema == e.schema {
			r.targetSchema = ""
		}
		fkRows = append(fkRows, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groupForeignKeys(fkRows), nil
}
