package changelog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type settings struct {
	logger *zap.Logger
	now    func() time.Time
}

// TrackerOption configures a Tracker or a Writer
type TrackerOption func(*settings)

// WithLogger sets the logger used for version writes
func WithLogger(logger *zap.Logger) TrackerOption {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source of the created_at column
func WithClock(now func() time.Time) TrackerOption {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func newSettings(opts []TrackerOption) settings {
	s := settings{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Staged holds the actor and comment supplied for the next version of a field
type Staged struct {
	By      *string
	Comment *string
}

// Writer appends version rows to shadow tables. It never updates or
// deletes existing rows.
type Writer struct {
	derivation *Derivation
	settings
}

// NewWriter creates a writer for the shadow tables of d
func NewWriter(d *Derivation, opts ...TrackerOption) *Writer {
	return &Writer{
		derivation: d,
		settings:   newSettings(opts),
	}
}

// Write stores previous as the next version of field for the origin row e
// identifies. The version is one above the highest stored for that row, or 1.
//
// The read of the current maximum and the insert are two statements; two
// writers racing on the same row surface as an error matching
// ErrVersionConflict from the second insert.
func (w *Writer) Write(ctx context.Context, store Store, e Entity, field string, previous any, staged Staged) (VersionRecord, error) {
	origin := w.derivation.Origin
	opts := w.derivation.Options

	table := w.derivation.LogTable(field)
	if table == nil {
		return VersionRecord{}, configErr(origin.Name, field, "column is not tracked")
	}

	key := make([]Value, 0, len(origin.PrimaryKey))
	for _, pk := range origin.PrimaryKey {
		key = append(key, Value{Column: pk, Value: e.FieldValue(pk)})
	}

	rec := VersionRecord{
		Table: table.Name,
		Field: field,
		Key:   key,
		Value: previous,
	}
	if opts.CreatedAt {
		now := w.now()
		rec.CreatedAt = &now
	}
	if opts.CreatedBy {
		rec.CreatedBy = staged.By
	}
	if opts.Comment {
		rec.Comment = staged.Comment
	}

	last, err := store.MaxVersion(ctx, table, opts.VersionColumn, key)
	if err != nil {
		w.logger.Warn("failed to read last version",
			zap.String("table", table.Name),
			zap.String("field", field),
			zap.Error(err))
		return VersionRecord{}, &StorageError{Op: "read last version", Table: table.Name, Err: err}
	}
	rec.Version = last + 1

	if err := store.InsertVersion(ctx, table, rec.Row(opts)); err != nil {
		w.logger.Warn("failed to insert version",
			zap.String("table", table.Name),
			zap.String("field", field),
			zap.Int64("version", rec.Version),
			zap.Error(err))
		return VersionRecord{}, &StorageError{Op: "insert version", Table: table.Name, Err: err}
	}

	w.logger.Debug("version written",
		zap.String("table", table.Name),
		zap.String("field", field),
		zap.Int64("version", rec.Version))

	return rec, nil
}
