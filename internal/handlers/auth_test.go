package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avoronov/agentgate/internal/handlers/sessionctx"
	"github.com/avoronov/agentgate/internal/logger"
	"github.com/avoronov/agentgate/internal/repository/memory"
	"github.com/avoronov/agentgate/internal/service/hostedui"
	"github.com/avoronov/agentgate/internal/service/session"
)

func newAuthServer(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()

	manager, err := session.NewManager(memory.NewSessionRepo(), logger.NewNoOpLogger())
	require.NoError(t, err, "session manager should be created without errors")

	hosted := hostedui.New(hostedui.Config{
		Domain:      "https://auth.example.com",
		ClientID:    "client-1",
		RedirectURI: "https://gw.example.com/auth/callback",
		LogoutURI:   "https://gw.example.com/",
		Scopes:      []string{"openid", "email"},
	})

	h := NewAuth(manager, hosted, logger.NewNoOpLogger())
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	return srv, manager
}

// Client that does not chase redirects, tests assert on them
var noRedirectClient = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == sessionctx.CookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func Test_AuthHandler_Login(t *testing.T) {
	t.Parallel()

	t.Run("seats cookie and redirects to hosted ui", func(t *testing.T) {
		srv, _ := newAuthServer(t)

		resp, err := noRedirectClient.Get(srv.URL + "/login")
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusFound, resp.StatusCode)

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "auth.example.com", loc.Host)
		require.Equal(t, "/login", loc.Path)
		require.Equal(t, "token", loc.Query().Get("response_type"))
		require.Equal(t, "client-1", loc.Query().Get("client_id"))

		cookie := sessionCookie(t, resp)
		require.True(t, cookie.HttpOnly, "session cookie should be HttpOnly")
		require.Equal(t, "/", cookie.Path)
		_, err = uuid.Parse(cookie.Value)
		require.NoError(t, err, "cookie value should be a session id")
	})

	t.Run("existing cookie is kept", func(t *testing.T) {
		srv, manager := newAuthServer(t)

		s, err := manager.Begin(t.Context())
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/login", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: sessionctx.CookieName, Value: s.ID.String()})

		resp, err := noRedirectClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusFound, resp.StatusCode)
		require.Equal(t, s.ID.String(), sessionCookie(t, resp).Value, "login should not reissue the session")
	})
}

func Test_AuthHandler_Callback(t *testing.T) {
	t.Parallel()

	t.Run("posted fragment authenticates and redirect is token free", func(t *testing.T) {
		srv, manager := newAuthServer(t)

		s, err := manager.Begin(t.Context())
		require.NoError(t, err)

		form := url.Values{"fragment": {"#access_token=tok-1&id_token=id-1"}}
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: sessionctx.CookieName, Value: s.ID.String()})

		resp, err := noRedirectClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/", resp.Header.Get("Location"))
		require.NotContains(t, resp.Header.Get("Location"), "access_token", "redirect must not leak tokens")

		require.True(t, manager.Authenticated(t.Context(), s.ID), "session should hold the token now")
		token, err := manager.AccessToken(t.Context(), s.ID)
		require.NoError(t, err)
		require.Equal(t, "tok-1", token)
	})

	t.Run("redirects to remembered target", func(t *testing.T) {
		srv, manager := newAuthServer(t)

		s, err := manager.Begin(t.Context())
		require.NoError(t, err)
		_, err = manager.RememberReturnURL(t.Context(), s.ID, "/dashboard?tab=ar")
		require.NoError(t, err)

		form := url.Values{"fragment": {"access_token=tok-2"}}
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: sessionctx.CookieName, Value: s.ID.String()})

		resp, err := noRedirectClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/dashboard?tab=ar", resp.Header.Get("Location"))

		require.Empty(t, manager.ConsumeReturnURL(t.Context(), s.ID), "return target should be read once")
	})

	t.Run("tokenless fragment is a soft failure", func(t *testing.T) {
		srv, manager := newAuthServer(t)

		s, err := manager.Begin(t.Context())
		require.NoError(t, err)

		form := url.Values{"fragment": {"error=access_denied"}}
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: sessionctx.CookieName, Value: s.ID.String()})

		resp, err := noRedirectClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/login", loc.Path, "broken callback should go back to login")

		require.False(t, manager.Authenticated(t.Context(), s.ID), "state should be untouched")
	})

	t.Run("get callback with query fragment works", func(t *testing.T) {
		srv, manager := newAuthServer(t)

		resp, err := noRedirectClient.Get(srv.URL + "/callback?fragment=" + url.QueryEscape("access_token=tok-3"))
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		id, err := uuid.Parse(sessionCookie(t, resp).Value)
		require.NoError(t, err)
		require.True(t, manager.Authenticated(t.Context(), id), "fresh session should be seated and authenticated")
	})
}

func Test_AuthHandler_Logout(t *testing.T) {
	t.Parallel()

	srv, manager := newAuthServer(t)

	s, err := manager.Begin(t.Context())
	require.NoError(t, err)
	_, err = manager.StoreTokens(t.Context(), s.ID, "access_token=tok-4")
	require.NoError(t, err)

	doLogout := func() *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/logout", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: sessionctx.CookieName, Value: s.ID.String()})

		resp, err := noRedirectClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := doLogout()
	defer resp.Body.Close() // nolint:errcheck

	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/logout", loc.Path)
	require.Equal(t, "client-1", loc.Query().Get("client_id"))

	cookie := sessionCookie(t, resp)
	require.Less(t, cookie.MaxAge, 0, "cookie should be expired")
	require.False(t, manager.Authenticated(t.Context(), s.ID), "tokens should be gone")

	// Second logout with the same stale cookie is a no-op that still works
	again := doLogout()
	defer again.Body.Close() // nolint:errcheck
	require.Equal(t, http.StatusFound, again.StatusCode)
}

func Test_AuthHandler_Session(t *testing.T) {
	t.Parallel()

	srv, manager := newAuthServer(t)

	t.Run("no cookie", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/session")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"authenticated": false}`, string(body))
	})

	t.Run("authenticated session", func(t *testing.T) {
		s, err := manager.Begin(t.Context())
		require.NoError(t, err)
		_, err = manager.StoreTokens(t.Context(), s.ID, "access_token=tok-5")
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/session", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: sessionctx.CookieName, Value: s.ID.String()})

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"authenticated": true, "session_id": "`+s.ID.String()+`"}`, string(body))
	})
}
