package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/models"
)

// SessionRepo persists sessions so they outlive gateway restarts
type SessionRepo struct {
	DB DBTX
}

const createSession = `-- name: CreateSession
INSERT INTO sessions (id, access_token, id_token, refresh_token, expires_at, return_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, access_token, id_token, refresh_token, expires_at, return_url, created_at
`

func (r *SessionRepo) Create(ctx context.Context, session models.Session) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, createSession,
		session.ID,
		session.Tokens.AccessToken,
		session.Tokens.IDToken,
		session.Tokens.RefreshToken,
		nullableTime(session.Tokens.ExpiresAt),
		session.ReturnURL,
		session.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToSession)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrSessionExists
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const saveSession = `-- name: SaveSession
INSERT INTO sessions (id, access_token, id_token, refresh_token, expires_at, return_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET access_token  = EXCLUDED.access_token,
    id_token      = EXCLUDED.id_token,
    refresh_token = EXCLUDED.refresh_token,
    expires_at    = EXCLUDED.expires_at,
    return_url    = EXCLUDED.return_url
`

// Save overwrites the whole row, the token set is never merged
func (r *SessionRepo) Save(ctx context.Context, session models.Session) error {
	_, err := r.DB.Exec(ctx, saveSession,
		session.ID,
		session.Tokens.AccessToken,
		session.Tokens.IDToken,
		session.Tokens.RefreshToken,
		nullableTime(session.Tokens.ExpiresAt),
		session.ReturnURL,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getSession = `-- name: GetSession
SELECT id, access_token, id_token, refresh_token, expires_at, return_url, created_at
FROM sessions
WHERE id = $1
`

func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getSession, id)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		return session, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

const deleteSession = `-- name: DeleteSession
DELETE FROM sessions
WHERE id = $1
`

// Delete is idempotent: zero affected rows is not an error
func (r *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.Exec(ctx, deleteSession, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func rowToSession(row pgx.CollectableRow) (models.Session, error) {
	var s models.Session
	var expiresAt *time.Time

	err := row.Scan(
		&s.ID,
		&s.Tokens.AccessToken,
		&s.Tokens.IDToken,
		&s.Tokens.RefreshToken,
		&expiresAt,
		&s.ReturnURL,
		&s.CreatedAt,
	)
	if expiresAt != nil {
		s.Tokens.ExpiresAt = *expiresAt
	}
	return s, err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
