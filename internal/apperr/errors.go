// Package apperr defines sentinel errors shared across service layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrContentTooShort is returned when a note's normalized content is
	// below the minimum meaningful length for plugin processing.
	ErrContentTooShort = errors.New("content too short to process")
)
