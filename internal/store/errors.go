package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in
	// the store. Entity-specific variants wrap it.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g. a link with the same URL in a project).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored, or violates a foreign key constraint.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrInvalidTransition is returned when a job status update does not
	// follow the legal transition graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// Entity-specific "not found" errors.
	ErrJobNotFound     = fmt.Errorf("%w: job", ErrNotFound)
	ErrProjectNotFound = fmt.Errorf("%w: project", ErrNotFound)
	ErrSourceNotFound  = fmt.Errorf("%w: source", ErrNotFound)
	ErrLinkNotFound    = fmt.Errorf("%w: link", ErrNotFound)
	ErrEntryNotFound   = fmt.Errorf("%w: lorebook entry", ErrNotFound)
	ErrCardNotFound    = fmt.Errorf("%w: character card", ErrNotFound)
)

// IsNotFound checks if the error is any kind of "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
