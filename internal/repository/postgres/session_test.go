package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/models"
	"github.com/avoronov/agentgate/internal/testutil"
)

func Test_SessionRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	newSession := func() models.Session {
		return models.Session{
			ID:        uuid.New(),
			CreatedAt: time.Now().Truncate(time.Second),
		}
	}

	t.Run("create session ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := SessionRepo{DB: tx}

			created, err := r.Create(t.Context(), newSession())

			require.NoError(t, err)
			assert.Empty(t, created.Tokens.AccessToken, "anonymous session should carry no tokens")
			assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create duplicate id", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := SessionRepo{DB: tx}
			session := newSession()

			_, err := r.Create(t.Context(), session)
			require.NoError(t, err)

			_, err = r.Create(t.Context(), session)
			require.ErrorIs(t, err, apperrors.ErrSessionExists)
		})
	})

	t.Run("save overwrites token set", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := SessionRepo{DB: tx}
			session := newSession()
			_, err := r.Create(t.Context(), session)
			require.NoError(t, err)

			session.Tokens = models.TokenSet{AccessToken: "acc-1", IDToken: "id-1", RefreshToken: "ref-1"}
			require.NoError(t, r.Save(t.Context(), session))

			session.Tokens = models.TokenSet{AccessToken: "acc-2"}
			require.NoError(t, r.Save(t.Context(), session))

			got, err := r.Get(t.Context(), session.ID)
			require.NoError(t, err)
			assert.Equal(t, "acc-2", got.Tokens.AccessToken)
			assert.Empty(t, got.Tokens.IDToken, "stale id token should not survive overwrite")
			assert.Empty(t, got.Tokens.RefreshToken, "stale refresh token should not survive overwrite")
		})
	})

	t.Run("save without create upserts", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := SessionRepo{DB: tx}
			session := newSession()
			session.Tokens.AccessToken = "acc"

			require.NoError(t, r.Save(t.Context(), session))

			got, err := r.Get(t.Context(), session.ID)
			require.NoError(t, err)
			assert.Equal(t, "acc", got.Tokens.AccessToken)
		})
	})

	t.Run("expires at round trip", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := SessionRepo{DB: tx}
			session := newSession()
			expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
			session.Tokens = models.TokenSet{AccessToken: "acc", ExpiresAt: expiresAt}

			require.NoError(t, r.Save(t.Context(), session))

			got, err := r.Get(t.Context(), session.ID)
			require.NoError(t, err)
			assert.True(t, expiresAt.Equal(got.Tokens.ExpiresAt), "expires_at should survive round trip")
		})
	})

	t.Run("get not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := SessionRepo{DB: tx}

			_, err := r.Get(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := SessionRepo{DB: tx}
			session := newSession()
			_, err := r.Create(t.Context(), session)
			require.NoError(t, err)

			require.NoError(t, r.Delete(t.Context(), session.ID))
			require.NoError(t, r.Delete(t.Context(), session.ID), "second delete should not error")

			_, err = r.Get(t.Context(), session.ID)
			require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		})
	})
}
