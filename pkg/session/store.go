package session

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	// ErrSessionNotFound is returned when a stored conversation doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStorageClosed is returned when operating on a closed store.
	ErrStorageClosed = errors.New("session store is closed")
)

// Store abstracts conversation persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save creates or replaces the record for its session ID.
	Save(ctx context.Context, rec *Record) error

	// Load retrieves a record by session ID.
	// Returns ErrSessionNotFound if it doesn't exist.
	Load(ctx context.Context, sessionID string) (*Record, error)

	// Delete removes a stored conversation. Deleting a missing
	// session returns ErrSessionNotFound.
	Delete(ctx context.Context, sessionID string) error

	// List returns summaries of every stored conversation, most
	// recently updated first.
	List(ctx context.Context) ([]Summary, error)

	// Close releases any resources held by the store.
	Close() error
}
