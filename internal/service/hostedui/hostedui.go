package hostedui

import (
	"net/url"
	"strings"
)

// Config points the gateway at the identity provider's hosted UI.
// Values come from deploy-time configuration and are not validated here:
// a bad domain or client id shows up as a broken navigation on the
// provider's side, never as a local error.
type Config struct {
	// Base URL of the hosted UI, e.g. https://auth.example.com
	Domain string

	ClientID string

	// Where the hosted UI redirects after login, the callback URL
	RedirectURI string

	// Where the hosted UI redirects after logout
	LogoutURI string

	// OAuth2 scopes requested on login, space separated in the URL
	Scopes []string
}

// Client builds hosted UI navigation URLs for the implicit grant.
// Both builders are deterministic for a fixed config.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// LoginURL is the full-page navigation target that starts a login.
// response_type=token is the implicit grant: tokens come back in the
// redirect fragment, no code exchange.
func (c *Client) LoginURL() string {
	query := url.Values{}
	query.Set("client_id", c.cfg.ClientID)
	query.Set("response_type", "token")
	query.Set("scope", strings.Join(c.cfg.Scopes, " "))
	query.Set("redirect_uri", c.cfg.RedirectURI)

	return strings.TrimSuffix(c.cfg.Domain, "/") + "/login?" + query.Encode()
}

// LogoutURL ends the hosted UI session and sends the browser home
func (c *Client) LogoutURL() string {
	query := url.Values{}
	query.Set("client_id", c.cfg.ClientID)
	query.Set("logout_uri", c.cfg.LogoutURI)

	return strings.TrimSuffix(c.cfg.Domain, "/") + "/logout?" + query.Encode()
}
