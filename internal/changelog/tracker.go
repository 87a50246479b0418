package changelog

import (
	"context"
	"maps"
)

// State is the lifecycle position of a tracked instance
type State int

const (
	// StateUnloaded is a new instance that was never hydrated nor saved
	StateUnloaded State = iota
	// StateLoaded holds a snapshot of the persisted values
	StateLoaded
	// StateDirtyChecked is between PreSave and PostSave
	StateDirtyChecked
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateDirtyChecked:
		return "dirty-checked"
	default:
		return "unknown"
	}
}

// Hooks are the lifecycle callbacks a persistence layer invokes around
// loading and saving an entity.
type Hooks interface {
	PostHydrate(e Entity)
	PreSave(e Entity)
	PostUpdate(ctx context.Context, store Store, e Entity) error
	PostSave(e Entity)
}

// Tracker keeps the change snapshot of one entity instance and writes a
// version for every tracked column changed by an update.
//
// A Tracker belongs to a single instance and is not safe for concurrent use.
type Tracker struct {
	derivation *Derivation
	writer     *Writer

	state    State
	snapshot map[string]any
	dirty    map[string]bool
	last     map[string]VersionRecord

	changeBy      map[string]string
	changeComment map[string]string
}

var _ Hooks = (*Tracker)(nil)

// NewTracker creates a tracker for one instance of d's origin table
func NewTracker(d *Derivation, opts ...TrackerOption) *Tracker {
	return &Tracker{
		derivation:    d,
		writer:        NewWriter(d, opts...),
		snapshot:      make(map[string]any),
		dirty:         make(map[string]bool),
		last:          make(map[string]VersionRecord),
		changeBy:      make(map[string]string),
		changeComment: make(map[string]string),
	}
}

// Derivation returns the shadow tables the tracker writes to
func (t *Tracker) Derivation() *Derivation {
	return t.derivation
}

// State returns the current lifecycle state
func (t *Tracker) State() State {
	return t.state
}

// PostHydrate seeds the snapshot from values just read from storage
func (t *Tracker) PostHydrate(e Entity) {
	t.capture(e)
	t.state = StateLoaded
}

// PreSave marks every tracked column whose value differs from the snapshot
func (t *Tracker) PreSave(e Entity) {
	clear(t.last)
	for _, f := range t.derivation.fields {
		prev, ok := t.snapshot[f]
		t.dirty[f] = !ok || !valuesEqual(e.FieldValue(f), prev)
	}
	t.state = StateDirtyChecked
}

// PostUpdate writes a version for each dirty column. It must only be
// called after an update of an already persisted row; inserts never
// produce versions. The first failure aborts and is returned with the
// in-memory state restored to what it was before the call; the caller
// rolls back the versions already written.
func (t *Tracker) PostUpdate(ctx context.Context, store Store, e Entity) error {
	sp := t.Savepoint()
	for _, f := range t.derivation.fields {
		if !t.dirty[f] {
			continue
		}
		if _, _, err := t.AddVersion(ctx, store, e, f); err != nil {
			t.RollbackTo(sp)
			return err
		}
	}
	return nil
}

// PostSave re-seeds the snapshot with the saved values, whether or not
// anything was written.
func (t *Tracker) PostSave(e Entity) {
	t.capture(e)
	clear(t.dirty)
	t.state = StateLoaded
}

// Dirty reports whether field differed from its snapshot at the last PreSave
func (t *Tracker) Dirty(field string) bool {
	return t.dirty[field]
}

// Snapshot returns the last known persisted value of field
func (t *Tracker) Snapshot(field string) (any, bool) {
	v, ok := t.snapshot[field]
	return v, ok
}

// AddVersion writes the snapshot value of field as a new version when the
// field was dirty at the last PreSave. It returns false without error when
// there is nothing to write.
func (t *Tracker) AddVersion(ctx context.Context, store Store, e Entity, field string) (VersionRecord, bool, error) {
	if t.derivation.LogTable(field) == nil {
		return VersionRecord{}, false, configErr(t.derivation.Origin.Name, field, "column is not tracked")
	}
	if !t.dirty[field] {
		return VersionRecord{}, false, nil
	}

	previous, ok := t.snapshot[field]
	if !ok {
		return VersionRecord{}, false, nil
	}

	rec, err := t.writer.Write(ctx, store, e, field, previous, t.staged(field))
	if err != nil {
		return VersionRecord{}, false, err
	}

	t.snapshot[field] = copyValue(e.FieldValue(field))
	t.dirty[field] = false
	t.last[field] = rec
	delete(t.changeBy, field)
	delete(t.changeComment, field)

	return rec, true, nil
}

// LastVersion returns the version written for field by the most recent
// save, and false when that save did not change the field.
func (t *Tracker) LastVersion(field string) (VersionRecord, bool) {
	rec, ok := t.last[field]
	return rec, ok
}

// SetChangeBy stages the actor stored with the next version of field
func (t *Tracker) SetChangeBy(field, by string) error {
	if err := t.checkStaging(field, t.derivation.Options.CreatedBy, ParamCreatedBy); err != nil {
		return err
	}
	t.changeBy[field] = by
	return nil
}

// ChangeBy returns the staged actor of field
func (t *Tracker) ChangeBy(field string) (string, bool) {
	v, ok := t.changeBy[field]
	return v, ok
}

// SetChangeComment stages the comment stored with the next version of field
func (t *Tracker) SetChangeComment(field, comment string) error {
	if err := t.checkStaging(field, t.derivation.Options.Comment, ParamComment); err != nil {
		return err
	}
	t.changeComment[field] = comment
	return nil
}

// ChangeComment returns the staged comment of field
func (t *Tracker) ChangeComment(field string) (string, bool) {
	v, ok := t.changeComment[field]
	return v, ok
}

func (t *Tracker) checkStaging(field string, enabled bool, param string) error {
	origin := t.derivation.Origin.Name
	if t.derivation.LogTable(field) == nil {
		return configErr(origin, field, "column is not tracked")
	}
	if !enabled {
		return configErr(origin, field, "parameter `%s` is not enabled", param)
	}
	return nil
}

func (t *Tracker) staged(field string) Staged {
	var s Staged
	if v, ok := t.changeBy[field]; ok {
		s.By = &v
	}
	if v, ok := t.changeComment[field]; ok {
		s.Comment = &v
	}
	return s
}

// Savepoint is a copy of a tracker's in-memory state
type Savepoint struct {
	state         State
	snapshot      map[string]any
	dirty         map[string]bool
	last          map[string]VersionRecord
	changeBy      map[string]string
	changeComment map[string]string
}

// Savepoint captures the tracker state. A persistence layer takes one
// before a save and rolls back to it when its transaction does not commit.
func (t *Tracker) Savepoint() Savepoint {
	return Savepoint{
		state:         t.state,
		snapshot:      maps.Clone(t.snapshot),
		dirty:         maps.Clone(t.dirty),
		last:          maps.Clone(t.last),
		changeBy:      maps.Clone(t.changeBy),
		changeComment: maps.Clone(t.changeComment),
	}
}

// RollbackTo restores the state captured by sp
func (t *Tracker) RollbackTo(sp Savepoint) {
	t.state = sp.state
	t.snapshot = maps.Clone(sp.snapshot)
	t.dirty = maps.Clone(sp.dirty)
	t.last = maps.Clone(sp.last)
	t.changeBy = maps.Clone(sp.changeBy)
	t.changeComment = maps.Clone(sp.changeComment)
}

func (t *Tracker) capture(e Entity) {
	for _, f := range t.derivation.fields {
		t.snapshot[f] = copyValue(e.FieldValue(f))
	}
}

func copyValue(v any) any {
	if b, ok := v.([]byte); ok && b != nil {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return v
}
