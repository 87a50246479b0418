package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tordrt/fieldlog/internal/changelog"
	"github.com/tordrt/fieldlog/internal/schema"
)

// PgStore writes versions through a pgx transaction
type PgStore struct {
	tx pgx.Tx
}

var _ changelog.Store = (*PgStore)(nil)

// NewPgStore creates a store bound to tx
func NewPgStore(tx pgx.Tx) *PgStore {
	return &PgStore{tx: tx}
}

// MaxVersion returns the highest stored version for the key, or 0
func (s *PgStore) MaxVersion(ctx context.Context, table *schema.Table, versionColumn string, key []changelog.Value) (int64, error) {
	query, args := maxVersionQuery(Postgres, table, versionColumn, key)

	var last int64
	if err := s.tx.QueryRow(ctx, query, args...).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to query max version: %w", err)
	}
	return last, nil
}

// InsertVersion appends one version row
func (s *PgStore) InsertVersion(ctx context.Context, table *schema.Table, row []changelog.Value) error {
	query, args := insertQuery(Postgres, table, row)

	if _, err := s.tx.Exec(ctx, query, args...); err != nil {
		return wrapInsertError(err)
	}
	return nil
}
