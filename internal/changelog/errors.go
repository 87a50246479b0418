package changelog

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every error detected while reading
	// behaviour parameters or deriving shadow tables.
	ErrConfiguration = errors.New("changelog: configuration error")

	// ErrStorage is matched by every persistence failure during a version write.
	ErrStorage = errors.New("changelog: storage error")

	// ErrVersionConflict reports that another writer inserted the same
	// (origin key, version) pair first. Stores wrap key collisions with it.
	ErrVersionConflict = errors.New("changelog: version conflict")
)

// ConfigError describes an invalid behaviour configuration
type ConfigError struct {
	Table  string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Field != "" && e.Table != "":
		return fmt.Sprintf("changelog: column `%s` at table `%s`: %s", e.Field, e.Table, e.Reason)
	case e.Table != "":
		return fmt.Sprintf("changelog: table `%s`: %s", e.Table, e.Reason)
	default:
		return "changelog: " + e.Reason
	}
}

// Is makes errors.Is(err, ErrConfiguration) hold
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// StorageError wraps a failure returned by a Store
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("changelog: failed to %s on %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorage) hold
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func configErr(table, field, format string, args ...any) error {
	return &ConfigError{Table: table, Field: field, Reason: fmt.Sprintf(format, args...)}
}
