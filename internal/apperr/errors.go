// Package apperr holds sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrAlreadyExists    = errors.New("already exists")
	ErrDuplicateKeyword = errors.New("duplicate keyword")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotConfigured    = errors.New("not configured")
	ErrUpstream         = errors.New("upstream failure")
)
