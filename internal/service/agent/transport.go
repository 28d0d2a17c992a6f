package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TokenSource yields the bearer credential for an outgoing request.
// Implemented over the session manager: the token travels with the
// request context, not with the transport.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

// BearerTransport attaches the access token to requests aimed at the
// backend API and to nothing else: a token leaking to a third-party
// origin is a credential disclosure, so the origin check is strict.
//
// A 401 response fires the auth-failure hook (session logout) exactly
// once for that response, synchronously, before the response is handed
// back to the caller. The hook must be idempotent: several in-flight
// requests may 401 around the same moment and each fires it.
type BearerTransport struct {
	// Base transport, http.DefaultTransport when nil
	Base http.RoundTripper

	Tokens TokenSource

	// OnAuthFailure is called on every 401 from the API origin
	OnAuthFailure func(ctx context.Context)

	apiScheme string
	apiHost   string
}

func NewBearerTransport(apiBaseURL string, tokens TokenSource, onAuthFailure func(ctx context.Context)) (*BearerTransport, error) {
	parsed, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("cant parse api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", apiBaseURL)
	}

	return &BearerTransport{
		Tokens:        tokens,
		OnAuthFailure: onAuthFailure,
		apiScheme:     parsed.Scheme,
		apiHost:       parsed.Host,
	}, nil
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.apiOrigin(req.URL) {
		return t.base().RoundTrip(req)
	}

	if t.Tokens != nil {
		if token, ok := t.Tokens.AccessToken(req.Context()); ok {
			// Clone: a RoundTripper must not mutate the caller's request
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusUnauthorized && t.OnAuthFailure != nil {
		// Logout completes before the 401 reaches the caller, the
		// failing response itself still propagates
		t.OnAuthFailure(req.Context())
	}

	return resp, nil
}

func (t *BearerTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *BearerTransport) apiOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, t.apiScheme) && strings.EqualFold(u.Host, t.apiHost)
}
