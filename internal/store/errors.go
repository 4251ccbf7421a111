package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a lost write race: the row was already resolved,
	// already recorded, or changed underneath the caller.
	ErrConflict = errors.New("conflict")
)
