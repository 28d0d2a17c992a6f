package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/models"
)

const sessionKeyPrefix = "session:"

const defaultSessionTTL = 24 * time.Hour

// SessionRepo stores sessions in redis.
// Meant for deployments with several gateway instances behind one
// balancer: any instance may serve any browser.
type SessionRepo struct {
	client *redis.Client
	ttl    time.Duration
}

type sessionRecord struct {
	ID           uuid.UUID  `json:"id"`
	AccessToken  string     `json:"access_token,omitempty"`
	IDToken      string     `json:"id_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ReturnURL    string     `json:"return_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func NewSessionRepo(client *redis.Client, ttl time.Duration) *SessionRepo {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionRepo{client: client, ttl: ttl}
}

func (r *SessionRepo) Create(ctx context.Context, session models.Session) (models.Session, error) {
	data, err := marshalSession(session)
	if err != nil {
		return models.Session{}, err
	}

	set, err := r.client.SetNX(ctx, sessionKey(session.ID), data, r.ttl).Result()
	if err != nil {
		return models.Session{}, fmt.Errorf("redis error: %w", err)
	}
	if !set {
		return models.Session{}, fmt.Errorf("repo error: %w", apperrors.ErrSessionExists)
	}

	return session, nil
}

func (r *SessionRepo) Save(ctx context.Context, session models.Session) error {
	data, err := marshalSession(session)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, sessionKey(session.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return models.Session{}, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	case err != nil:
		return models.Session{}, fmt.Errorf("redis error: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return models.Session{}, fmt.Errorf("broken session record: %w", err)
	}

	session := models.Session{
		ID: record.ID,
		Tokens: models.TokenSet{
			AccessToken:  record.AccessToken,
			IDToken:      record.IDToken,
			RefreshToken: record.RefreshToken,
		},
		ReturnURL: record.ReturnURL,
		CreatedAt: record.CreatedAt,
	}
	if record.ExpiresAt != nil {
		session.Tokens.ExpiresAt = *record.ExpiresAt
	}
	return session, nil
}

// Delete is idempotent, removing an absent key is fine
func (r *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func marshalSession(session models.Session) ([]byte, error) {
	record := sessionRecord{
		ID:           session.ID,
		AccessToken:  session.Tokens.AccessToken,
		IDToken:      session.Tokens.IDToken,
		RefreshToken: session.Tokens.RefreshToken,
		ReturnURL:    session.ReturnURL,
		CreatedAt:    session.CreatedAt,
	}
	if !session.Tokens.ExpiresAt.IsZero() {
		expiresAt := session.Tokens.ExpiresAt
		record.ExpiresAt = &expiresAt
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("cant marshal session: %w", err)
	}
	return data, nil
}
