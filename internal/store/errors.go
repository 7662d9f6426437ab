package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")

	// ErrPreconditionFailed is returned by conditional updates when the row
	// exists but no longer satisfies the guard (e.g. another caller moved the
	// job first). Callers re-read the row to find out what won.
	ErrPreconditionFailed = errors.New("precondition failed")
)
