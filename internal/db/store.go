package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tordrt/fieldlog/internal/changelog"
	"github.com/tordrt/fieldlog/internal/schema"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore writes versions through database/sql. Bind it to the
// transaction of the enclosing save so versions commit or roll back with
// the origin row.
type SQLStore struct {
	dialect Dialect
	q       Querier
}

var _ changelog.Store = (*SQLStore)(nil)

// NewSQLStore creates a store for the given dialect
func NewSQLStore(d Dialect, q Querier) *SQLStore {
	return &SQLStore{dialect: d, q: q}
}

// MaxVersion returns the highest stored version for the key, or 0
func (s *SQLStore) MaxVersion(ctx context.Context, table *schema.Table, versionColumn string, key []changelog.Value) (int64, error) {
	query, args := maxVersionQuery(s.dialect, table, versionColumn, key)

	var last int64
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to query max version: %w", err)
	}
	return last, nil
}

// InsertVersion appends one version row
func (s *SQLStore) InsertVersion(ctx context.Context, table *schema.Table, row []changelog.Value) error {
	query, args := insertQuery(s.dialect, table, row)

	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return wrapInsertError(err)
	}
	return nil
}

// maxVersionQuery selects the highest version for one origin key
func maxVersionQuery(d Dialect, t *schema.Table, versionColumn string, key []changelog.Value) (string, []any) {
	conds := make([]string, len(key))
	args := make([]any, len(key))
	for i, v := range key {
		conds[i] = fmt.Sprintf("%s = %s", d.Quote(v.Column), d.Placeholder(i+1))
		args[i] = v.Value
	}

	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s",
		d.Quote(versionColumn), d.QuoteQualified(t.Namespace, t.Name))
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args
}

// insertQuery inserts row into t
func insertQuery(d Dialect, t *schema.Table, row []changelog.Value) (string, []any) {
	cols := make([]string, len(row))
	marks := make([]string, len(row))
	args := make([]any, len(row))
	for i, v := range row {
		cols[i] = d.Quote(v.Column)
		marks[i] = d.Placeholder(i + 1)
		args[i] = v.Value
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteQualified(t.Namespace, t.Name),
		strings.Join(cols, ", "),
		strings.Join(marks, ", "))
	return query, args
}

func wrapInsertError(err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", changelog.ErrVersionConflict, err)
	}
	return fmt.Errorf("failed to insert version: %w", err)
}
