package domain

import "errors"

// Common validation errors shared across domain entities.
var (
	ErrUnknownTaskKind = errors.New("unknown task kind")
	ErrEmptyProjectID  = errors.New("project ID cannot be empty")
	ErrEmptyURL        = errors.New("URL cannot be empty")
	ErrEmptyTitle      = errors.New("title cannot be empty")
	ErrEmptyContent    = errors.New("content cannot be empty")
)
