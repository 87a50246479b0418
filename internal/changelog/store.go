package changelog

import (
	"context"
	"time"

	"github.com/tordrt/fieldlog/internal/schema"
)

// Value is one column assignment
type Value struct {
	Column string
	Value  any
}

// Store is the persistence capability version writes go through. It is
// normally bound to the transaction of the enclosing save.
type Store interface {
	// MaxVersion returns the highest version stored in table for the
	// origin key, or 0 when there is none.
	MaxVersion(ctx context.Context, table *schema.Table, versionColumn string, key []Value) (int64, error)

	// InsertVersion appends one row. A collision on the (key, version)
	// primary key must be reported as an error matching ErrVersionConflict.
	InsertVersion(ctx context.Context, table *schema.Table, row []Value) error
}

// Entity is an origin instance whose columns can be read by name
type Entity interface {
	FieldValue(column string) any
}

// VersionRecord is one row appended to a shadow table
type VersionRecord struct {
	Table   string
	Field   string
	Key     []Value
	Version int64
	// Value is the superseded value of the tracked column
	Value     any
	CreatedAt *time.Time
	CreatedBy *string
	Comment   *string
}

// Row returns the column assignments of the record in shadow table order
func (r VersionRecord) Row(opts Options) []Value {
	row := make([]Value, 0, len(r.Key)+5)
	row = append(row, r.Key...)
	row = append(row, Value{Column: opts.VersionColumn, Value: r.Version})
	row = append(row, Value{Column: r.Field, Value: r.Value})

	if opts.CreatedAt {
		row = append(row, Value{Column: opts.CreatedAtColumn, Value: derefTime(r.CreatedAt)})
	}
	if opts.CreatedBy {
		row = append(row, Value{Column: opts.CreatedByColumn, Value: derefString(r.CreatedBy)})
	}
	if opts.Comment {
		row = append(row, Value{Column: opts.CommentColumn, Value: derefString(r.Comment)})
	}

	return row
}

func derefTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
