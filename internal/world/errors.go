package world

import "errors"

var (
	// ErrUnknownEntity is returned when an id has no soldier, typically a
	// late event from a connection that already left. Callers drop the event.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrWorldNotReady is returned when a level map is needed but not set.
	// Callers requeue or drop the event.
	ErrWorldNotReady = errors.New("world not ready")
	// ErrDuplicateEntity is returned when adding an id that already exists.
	ErrDuplicateEntity = errors.New("duplicate entity")
)
