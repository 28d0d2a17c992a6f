package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/models"
)

// SessionRepo keeps sessions in a map.
// Used in tests and single-process dev runs: state is lost on restart.
type SessionRepo struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]models.Session
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{sessions: make(map[uuid.UUID]models.Session)}
}

func (r *SessionRepo) Create(_ context.Context, session models.Session) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return models.Session{}, fmt.Errorf("repo error: %w", apperrors.ErrSessionExists)
	}

	r.sessions[session.ID] = session
	return session, nil
}

func (r *SessionRepo) Save(_ context.Context, session models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session
	return nil
}

func (r *SessionRepo) Get(_ context.Context, id uuid.UUID) (models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return models.Session{}, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	}
	return session, nil
}

func (r *SessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}
