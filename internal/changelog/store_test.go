package changelog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tordrt/fieldlog/internal/schema"
)

// memStore is an in-memory Store keyed by shadow table name
type memStore struct {
	rows map[string][][]Value

	maxErr    error
	insertErr error
	// failAfter makes inserts fail once this many have succeeded; -1 never
	failAfter int
	inserts   int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][][]Value), failAfter: -1}
}

func (s *memStore) MaxVersion(_ context.Context, table *schema.Table, versionColumn string, key []Value) (int64, error) {
	if s.maxErr != nil {
		return 0, s.maxErr
	}

	var last int64
	for _, row := range s.rows[table.Name] {
		if !matchesKey(row, key) {
			continue
		}
		if v, _ := lookup(row, versionColumn).(int64); v > last {
			last = v
		}
	}
	return last, nil
}

func (s *memStore) InsertVersion(_ context.Context, table *schema.Table, row []Value) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.failAfter >= 0 && s.inserts >= s.failAfter {
		return errors.New("disk full")
	}

	for _, existing := range s.rows[table.Name] {
		if samePrimaryKey(table, existing, row) {
			return fmt.Errorf("%w: duplicate key in %s", ErrVersionConflict, table.Name)
		}
	}

	s.rows[table.Name] = append(s.rows[table.Name], slices.Clone(row))
	s.inserts++
	return nil
}

// column returns the values stored in column of table, in insert order
func (s *memStore) column(table, column string) []any {
	var out []any
	for _, row := range s.rows[table] {
		out = append(out, lookup(row, column))
	}
	return out
}

func (s *memStore) count(table string) int {
	return len(s.rows[table])
}

func lookup(row []Value, column string) any {
	for _, v := range row {
		if v.Column == column {
			return v.Value
		}
	}
	return nil
}

func matchesKey(row []Value, key []Value) bool {
	for _, k := range key {
		if !valuesEqual(lookup(row, k.Column), k.Value) {
			return false
		}
	}
	return true
}

func samePrimaryKey(table *schema.Table, a, b []Value) bool {
	for _, pk := range table.PrimaryKey {
		if !valuesEqual(lookup(a, pk), lookup(b, pk)) {
			return false
		}
	}
	return true
}

// entity is a map-backed Entity
type entity map[string]any

func (e entity) FieldValue(column string) any {
	return e[column]
}

// save mimics a persistence layer: inserts never write versions
func save(ctx context.Context, tr *Tracker, store Store, e Entity, update bool) error {
	tr.PreSave(e)
	if update {
		if err := tr.PostUpdate(ctx, store, e); err != nil {
			return err
		}
	}
	tr.PostSave(e)
	return nil
}
