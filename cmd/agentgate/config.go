package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/avoronov/agentgate/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8080"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultSessionStore = StoreMemory
	defaultScopes       = "openid,email"
)

// Session store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the gateway will be run
	ListenAddr string

	// Base URL of the agent backend REST API
	APIBaseURL string

	// Hosted UI (authorization server) settings
	AuthDomain  string
	ClientID    string
	RedirectURI string
	LogoutURI   string
	Scopes      string

	// Session store backend: memory, postgres or redis
	SessionStore string

	// Database to connect to when SessionStore is postgres
	DatabaseDSN string

	// Redis address when SessionStore is redis
	RedisAddr string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:     defaultLoggingLevel,
		ListenAddr:   defaultListenAddr,
		SessionStore: defaultSessionStore,
		Scopes:       defaultScopes,
		Environment:  defaultEnvironment,
	}
}

// ScopeList splits the comma separated scope option
func (c *Config) ScopeList() []string {
	var scopes []string
	for _, s := range strings.Split(c.Scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// Validate checks the options that have no workable zero value
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api base url is required")
	}
	if c.AuthDomain == "" || c.ClientID == "" || c.RedirectURI == "" {
		return errors.New("auth domain, client id and redirect uri are required")
	}

	switch c.SessionStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return errors.New("database dsn is required for the postgres session store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("redis address is required for the redis session store")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}

	return nil
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"API_BASE_URL":      setString(&c.APIBaseURL),
		"AUTH_DOMAIN":       setString(&c.AuthDomain),
		"AUTH_CLIENT_ID":    setString(&c.ClientID),
		"AUTH_REDIRECT_URI": setString(&c.RedirectURI),
		"AUTH_LOGOUT_URI":   setString(&c.LogoutURI),
		"AUTH_SCOPES":       setString(&c.Scopes),
		"SESSION_STORE":     setString(&c.SessionStore),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"REDIS_ADDRESS":     setString(&c.RedisAddr),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("agentgate", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.APIBaseURL, "api-base-url", "b", c.APIBaseURL, "Agent backend base URL")
	fs.StringVar(&c.AuthDomain, "auth-domain", c.AuthDomain, "Hosted UI domain")
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "OAuth2 client id")
	fs.StringVar(&c.RedirectURI, "redirect-uri", c.RedirectURI, "Login callback URI")
	fs.StringVar(&c.LogoutURI, "logout-uri", c.LogoutURI, "Post-logout URI")
	fs.StringVar(&c.Scopes, "scopes", c.Scopes, "OAuth2 scopes, comma separated")
	fs.StringVarP(&c.SessionStore, "session-store", "s", c.SessionStore, "Session store (memory, postgres, redis)")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
