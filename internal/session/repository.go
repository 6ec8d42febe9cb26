package session

import "context"

// Repository defines the interface for session storage.
type Repository interface {
	// Save stores a session, replacing any session with the same ID.
	Save(ctx context.Context, s *Session) error

	// FindByID retrieves a session by its unique identifier.
	// Returns ErrNotFound if the session does not exist.
	FindByID(ctx context.Context, id string) (*Session, error)

	// List returns all sessions.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes a session.
	// Returns ErrNotFound if the session does not exist.
	Delete(ctx context.Context, id string) error
}
