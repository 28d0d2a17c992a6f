package redis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/models"
	"github.com/avoronov/agentgate/internal/testutil"
)

func Test_SessionRepo(t *testing.T) {
	t.Parallel()

	rd := testutil.StartRedisContainer(t)
	t.Cleanup(rd.Terminate)

	client := goredis.NewClient(&goredis.Options{Addr: rd.Addr})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewSessionRepo(client, time.Hour)

	newSession := func() models.Session {
		return models.Session{
			ID:        uuid.New(),
			CreatedAt: time.Now().Truncate(time.Second),
		}
	}

	t.Run("create and get", func(t *testing.T) {
		session := newSession()
		session.Tokens = models.TokenSet{
			AccessToken: "acc",
			IDToken:     "id",
			ExpiresAt:   time.Now().Add(time.Hour).Truncate(time.Second),
		}

		_, err := repo.Create(t.Context(), session)
		require.NoError(t, err)

		got, err := repo.Get(t.Context(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, "acc", got.Tokens.AccessToken)
		assert.Equal(t, "id", got.Tokens.IDToken)
		assert.True(t, session.Tokens.ExpiresAt.Equal(got.Tokens.ExpiresAt), "expires_at should survive round trip")
	})

	t.Run("create duplicate id", func(t *testing.T) {
		session := newSession()

		_, err := repo.Create(t.Context(), session)
		require.NoError(t, err)

		_, err = repo.Create(t.Context(), session)
		require.ErrorIs(t, err, apperrors.ErrSessionExists)
	})

	t.Run("save overwrites token set", func(t *testing.T) {
		session := newSession()
		session.Tokens = models.TokenSet{AccessToken: "acc-1", RefreshToken: "ref-1"}
		require.NoError(t, repo.Save(t.Context(), session))

		session.Tokens = models.TokenSet{AccessToken: "acc-2"}
		require.NoError(t, repo.Save(t.Context(), session))

		got, err := repo.Get(t.Context(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, "acc-2", got.Tokens.AccessToken)
		assert.Empty(t, got.Tokens.RefreshToken, "stale refresh token should not survive overwrite")
	})

	t.Run("get not found", func(t *testing.T) {
		_, err := repo.Get(t.Context(), uuid.New())

		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		session := newSession()
		_, err := repo.Create(t.Context(), session)
		require.NoError(t, err)

		require.NoError(t, repo.Delete(t.Context(), session.ID))
		require.NoError(t, repo.Delete(t.Context(), session.ID), "second delete should not error")

		_, err = repo.Get(t.Context(), session.ID)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})
}
