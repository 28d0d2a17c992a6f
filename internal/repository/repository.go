package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/avoronov/agentgate/internal/models"
)

// SessionRepo is the persistence contract for browser sessions.
// Implementations: memory (tests, dev), postgres, redis.
type SessionRepo interface {
	// Create inserts a new session
	// Has to return apperrors.ErrSessionExists if the id is taken
	Create(ctx context.Context, session models.Session) (models.Session, error)

	// Save overwrites the whole session record, no merge
	Save(ctx context.Context, session models.Session) error

	// Get returns the session or apperrors.ErrSessionNotFound
	Get(ctx context.Context, id uuid.UUID) (models.Session, error)

	// Delete removes the session
	// Deleting an absent session is not an error
	Delete(ctx context.Context, id uuid.UUID) error
}
