package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tordrt/fieldlog/internal/changelog"
	"github.com/tordrt/fieldlog/internal/schema"
)

// ErrNotFound is returned when no origin row matches a key
var ErrNotFound = errors.New("record not found")

// Record is one row of an origin table together with its change tracker
type Record struct {
	values    map[string]any
	tracker   *changelog.Tracker
	persisted bool
}

var _ changelog.Entity = (*Record)(nil)

// FieldValue returns the current value of column
func (r *Record) FieldValue(column string) any {
	return r.values[column]
}

// Set assigns the in-memory value of column
func (r *Record) Set(column string, value any) {
	r.values[column] = value
}

// Tracker returns the record's change tracker
func (r *Record) Tracker() *changelog.Tracker {
	return r.tracker
}

// Persisted reports whether the record exists in the database
func (r *Record) Persisted() bool {
	return r.persisted
}

// Repository loads and saves rows of one origin table through database/sql,
// driving the change tracker around every save.
type Repository struct {
	db         *sql.DB
	dialect    Dialect
	derivation *changelog.Derivation
	logger     *zap.Logger
	opts       []changelog.TrackerOption
}

// NewRepository creates a repository for the origin table of derivation
func NewRepository(db *sql.DB, d Dialect, derivation *changelog.Derivation, logger *zap.Logger, opts ...changelog.TrackerOption) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		db:         db,
		dialect:    d,
		derivation: derivation,
		logger:     logger,
		opts:       append([]changelog.TrackerOption{changelog.WithLogger(logger)}, opts...),
	}
}

func (r *Repository) origin() *schema.Table {
	return r.derivation.Origin
}

// New returns an unsaved record holding values
func (r *Repository) New(values map[string]any) *Record {
	rec := &Record{
		values:  make(map[string]any, len(values)),
		tracker: changelog.NewTracker(r.derivation, r.opts...),
	}
	for k, v := range values {
		rec.values[k] = v
	}
	return rec
}

// Find loads the row with the given primary key values, in key order
func (r *Repository) Find(ctx context.Context, key ...any) (*Record, error) {
	origin := r.origin()
	if len(key) != len(origin.PrimaryKey) {
		return nil, fmt.Errorf("expected %d key values, got %d", len(origin.PrimaryKey), len(key))
	}

	cols := make([]string, len(origin.Columns))
	for i, c := range origin.Columns {
		cols[i] = r.dialect.Quote(c.Name)
	}
	where, args := r.keyCondition(key, 1)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(cols, ", "), r.dialect.QuoteQualified(origin.Namespace, origin.Name), where)

	dest := make([]any, len(origin.Columns))
	ptrs := make([]any, len(origin.Columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(ptrs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load %s: %w", origin.Name, err)
	}

	rec := r.New(nil)
	for i, c := range origin.Columns {
		rec.values[c.Name] = hydrateValue(c, dest[i])
	}
	rec.persisted = true
	rec.tracker.PostHydrate(rec)

	return rec, nil
}

// Save inserts or updates rec. On update, one version is written per
// changed tracked column in the same transaction as the row.
func (r *Repository) Save(ctx context.Context, rec *Record) error {
	sp := rec.tracker.Savepoint()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := r.save(ctx, tx, rec); err != nil {
		rec.tracker.RollbackTo(sp)
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		rec.tracker.RollbackTo(sp)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	rec.persisted = true
	rec.tracker.PostSave(rec)

	r.logger.Debug("record saved",
		zap.String("table", r.origin().Name),
		zap.Any("key", rec.key()))

	return nil
}

func (r *Repository) save(ctx context.Context, tx *sql.Tx, rec *Record) error {
	rec.tracker.PreSave(rec)

	if !rec.persisted {
		return r.insert(ctx, tx, rec)
	}

	if err := r.update(ctx, tx, rec); err != nil {
		return err
	}
	return rec.tracker.PostUpdate(ctx, NewSQLStore(r.dialect, tx), rec)
}

func (r *Repository) insert(ctx context.Context, tx *sql.Tx, rec *Record) error {
	origin := r.origin()

	var cols, marks []string
	var args []any
	var generated *schema.Column
	for i, c := range origin.Columns {
		v, ok := rec.values[c.Name]
		if c.AutoIncrement && (!ok || v == nil) {
			generated = &origin.Columns[i]
			continue
		}
		if !ok {
			continue
		}
		args = append(args, v)
		cols = append(cols, r.dialect.Quote(c.Name))
		marks = append(marks, r.dialect.Placeholder(len(args)))
	}

	target := r.dialect.QuoteQualified(origin.Namespace, origin.Name)
	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", target)
		if r.dialect == MySQL {
			query = fmt.Sprintf("INSERT INTO %s () VALUES ()", target)
		}
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", target, strings.Join(cols, ", "), strings.Join(marks, ", "))
	}

	if generated != nil && r.dialect == Postgres {
		query += " RETURNING " + r.dialect.Quote(generated.Name)
		var id int64
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert %s: %w", origin.Name, err)
		}
		rec.values[generated.Name] = id
		return nil
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", origin.Name, err)
	}
	if generated != nil {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read generated key: %w", err)
		}
		rec.values[generated.Name] = id
	}
	return nil
}

func (r *Repository) update(ctx context.Context, tx *sql.Tx, rec *Record) error {
	origin := r.origin()

	var sets []string
	var args []any
	for _, c := range origin.Columns {
		if c.PrimaryKey {
			continue
		}
		v, ok := rec.values[c.Name]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = %s", r.dialect.Quote(c.Name), r.dialect.Placeholder(len(args))))
	}
	if len(sets) == 0 {
		return nil
	}

	where, keyArgs := r.keyCondition(rec.key(), len(args)+1)
	args = append(args, keyArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		r.dialect.QuoteQualified(origin.Namespace, origin.Name), strings.Join(sets, ", "), where)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", origin.Name, err)
	}
	return nil
}

// Delete removes rec. Its versions go with it through the cascading
// foreign key of each shadow table.
func (r *Repository) Delete(ctx context.Context, rec *Record) error {
	origin := r.origin()
	where, args := r.keyCondition(rec.key(), 1)

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", r.dialect.QuoteQualified(origin.Namespace, origin.Name), where)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete %s: %w", origin.Name, err)
	}

	rec.persisted = false
	return nil
}

// History returns the stored versions of field for rec, oldest first
func (r *Repository) History(ctx context.Context, rec *Record, field string) ([]changelog.VersionRecord, error) {
	table := r.derivation.LogTable(field)
	if table == nil {
		return nil, fmt.Errorf("column %s of %s is not tracked", field, r.origin().Name)
	}
	opts := r.derivation.Options

	cols := []string{opts.VersionColumn, field}
	if opts.CreatedAt {
		cols = append(cols, opts.CreatedAtColumn)
	}
	if opts.CreatedBy {
		cols = append(cols, opts.CreatedByColumn)
	}
	if opts.Comment {
		cols = append(cols, opts.CommentColumn)
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = r.dialect.Quote(c)
	}

	key := rec.key()
	where, args := r.keyCondition(key, 1)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(quoted, ", "),
		r.dialect.QuoteQualified(table.Namespace, table.Name),
		where,
		r.dialect.Quote(opts.VersionColumn))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	fieldCol := table.Column(field)
	keyValues := make([]changelog.Value, len(key))
	for i, pk := range r.origin().PrimaryKey {
		keyValues[i] = changelog.Value{Column: pk, Value: key[i]}
	}

	var history []changelog.VersionRecord
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		version, err := toInt64(dest[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read version: %w", err)
		}

		vr := changelog.VersionRecord{
			Table:   table.Name,
			Field:   field,
			Key:     keyValues,
			Version: version,
		}
		if fieldCol != nil {
			vr.Value = hydrateValue(*fieldCol, dest[1])
		} else {
			vr.Value = dest[1]
		}

		i := 2
		if opts.CreatedAt {
			vr.CreatedAt, err = toTimePtr(dest[i])
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", opts.CreatedAtColumn, err)
			}
			i++
		}
		if opts.CreatedBy {
			vr.CreatedBy = toStringPtr(dest[i])
			i++
		}
		if opts.Comment {
			vr.Comment = toStringPtr(dest[i])
		}

		history = append(history, vr)
	}

	return history, rows.Err()
}

// keyCondition renders "pk1 = ? AND pk2 = ?" starting at placeholder n
func (r *Repository) keyCondition(key []any, n int) (string, []any) {
	pk := r.origin().PrimaryKey
	conds := make([]string, len(pk))
	for i, name := range pk {
		conds[i] = fmt.Sprintf("%s = %s", r.dialect.Quote(name), r.dialect.Placeholder(n+i))
	}
	return strings.Join(conds, " AND "), key
}

func (r *Record) key() []any {
	pk := r.tracker.Derivation().Origin.PrimaryKey
	key := make([]any, len(pk))
	for i, name := range pk {
		key[i] = r.values[name]
	}
	return key
}

// hydrateValue converts driver text results to strings for non-binary columns
func hydrateValue(col schema.Column, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	t := strings.ToLower(col.Type)
	if strings.Contains(t, "blob") || strings.Contains(t, "binary") || strings.Contains(t, "bytea") {
		return b
	}
	return string(b)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case []byte:
		var out int64
		_, err := fmt.Sscan(string(n), &out)
		return out, err
	default:
		return 0, fmt.Errorf("unexpected version type %T", v)
	}
}

func toStringPtr(v any) *string {
	switch s := v.(type) {
	case string:
		return &s
	case []byte:
		str := string(s)
		return &str
	default:
		return nil
	}
}

// timeLayouts are the text forms drivers return when they do not parse
// timestamps themselves
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func toTimePtr(v any) (*time.Time, error) {
	var text string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &t, nil
	case []byte:
		text = string(t)
	case string:
		text = t
	default:
		return nil, fmt.Errorf("unexpected timestamp type %T", v)
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", text)
}
