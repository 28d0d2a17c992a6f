package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/logger"
	"github.com/avoronov/agentgate/internal/models"
	"github.com/avoronov/agentgate/internal/repository"
)

// Manager owns every write to the session store.
// Guard, handlers and the bearer transport only read through it.
type Manager struct {
	repo   repository.SessionRepo
	logger logger.Logger

	now func() time.Time
}

func NewManager(repo repository.SessionRepo, l logger.Logger) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("session repo must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Manager{
		repo:   repo,
		logger: l,
		now:    time.Now,
	}, nil
}

// Begin creates an anonymous session, the row that later receives tokens
func (m *Manager) Begin(ctx context.Context) (models.Session, error) {
	session := models.Session{
		ID:        uuid.New(),
		CreatedAt: m.now().Truncate(time.Second),
	}

	created, err := m.repo.Create(ctx, session)
	if err != nil {
		return models.Session{}, fmt.Errorf("cant begin session: %w", err)
	}

	m.logger.Debug("session started", "session_id", created.ID)
	return created, nil
}

// GetOrBegin resolves an existing session or starts a fresh one.
// uuid.Nil and unknown ids both map to a new session so a browser with a
// stale cookie is silently re-seated.
func (m *Manager) GetOrBegin(ctx context.Context, id uuid.UUID) (models.Session, error) {
	if id == uuid.Nil {
		return m.Begin(ctx)
	}

	session, err := m.repo.Get(ctx, id)
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return m.Begin(ctx)
	default:
		return models.Session{}, err
	}
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (models.Session, error) {
	return m.repo.Get(ctx, id)
}

// Authenticated reports whether the session holds an access token.
// Presence decides: an expired-but-present token stays "authenticated"
// until the backend rejects it. Store failures read as logged out.
func (m *Manager) Authenticated(ctx context.Context, id uuid.UUID) bool {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, apperrors.ErrSessionNotFound) {
			m.logger.Error("session store read failed, treating as logged out", "error", err)
		}
		return false
	}

	if session.Tokens.Authenticated() && !session.Tokens.ExpiresAt.IsZero() && session.Tokens.ExpiresAt.Before(m.now()) {
		m.logger.Debug("access token past its recorded expiry, backend will decide", "session_id", id)
	}

	return session.Tokens.Authenticated()
}

// AccessToken returns the current bearer credential
func (m *Manager) AccessToken(ctx context.Context, id uuid.UUID) (string, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !session.Tokens.Authenticated() {
		return "", fmt.Errorf("session %s: %w", id, apperrors.ErrNoAccessToken)
	}
	return session.Tokens.AccessToken, nil
}

// StoreTokens handles the hosted UI redirect fragment.
// Returns false (and leaves state untouched) when the fragment carries no
// usable access token, the soft-failure path of a broken callback.
// On success the previous token set is replaced wholesale.
func (m *Manager) StoreTokens(ctx context.Context, id uuid.UUID, fragment string) (bool, error) {
	set, ok := ParseFragment(fragment)
	if !ok {
		m.logger.Warn("callback fragment without access token, session unchanged", "session_id", id)
		return false, nil
	}

	session, err := m.GetOrBegin(ctx, id)
	if err != nil {
		return false, err
	}

	session.Tokens = set
	if err := m.repo.Save(ctx, session); err != nil {
		return false, fmt.Errorf("cant store tokens: %w", err)
	}

	m.logger.Info("session authenticated", "session_id", session.ID)
	return true, nil
}

// Clear logs the session out. Idempotent: clearing an already empty or
// absent session succeeds, concurrent 401 handlers may all call it.
func (m *Manager) Clear(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}

	if err := m.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("cant clear session: %w", err)
	}

	m.logger.Info("session cleared", "session_id", id)
	return nil
}

// RememberReturnURL records the navigation target the guard denied.
// Each new denial overwrites the previous target.
func (m *Manager) RememberReturnURL(ctx context.Context, id uuid.UUID, target string) (models.Session, error) {
	session, err := m.GetOrBegin(ctx, id)
	if err != nil {
		return models.Session{}, err
	}

	session.ReturnURL = target
	if err := m.repo.Save(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("cant remember return url: %w", err)
	}
	return session, nil
}

// ConsumeReturnURL reads the pending target once and clears it.
// Empty string means nothing was pending.
func (m *Manager) ConsumeReturnURL(ctx context.Context, id uuid.UUID) string {
	session, err := m.repo.Get(ctx, id)
	if err != nil || session.ReturnURL == "" {
		return ""
	}

	target := session.ReturnURL
	session.ReturnURL = ""
	if err := m.repo.Save(ctx, session); err != nil {
		m.logger.Warn("cant clear consumed return url", "error", err)
	}
	return target
}
