package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/avoronov/agentgate/internal/db"
	"github.com/avoronov/agentgate/internal/handlers"
	"github.com/avoronov/agentgate/internal/logger"
	"github.com/avoronov/agentgate/internal/repository"
	"github.com/avoronov/agentgate/internal/repository/memory"
	"github.com/avoronov/agentgate/internal/repository/postgres"
	"github.com/avoronov/agentgate/internal/repository/redis"
	"github.com/avoronov/agentgate/internal/service/agent"
	"github.com/avoronov/agentgate/internal/service/hostedui"
	"github.com/avoronov/agentgate/internal/service/session"
)

const sessionTTL = 24 * time.Hour

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Initialize session store
	repo, err := newSessionRepo(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("error while initializing session store: %w", err)
	}

	// Initialize services
	sessionManager, err := session.NewManager(repo, logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating session manager: %w", err)
	}

	hosted := hostedui.New(hostedui.Config{
		Domain:      c.AuthDomain,
		ClientID:    c.ClientID,
		RedirectURI: c.RedirectURI,
		LogoutURI:   c.LogoutURI,
		Scopes:      c.ScopeList(),
	})

	transport, err := agent.NewBearerTransport(
		c.APIBaseURL,
		handlers.SessionTokens(sessionManager),
		handlers.AuthFailure(sessionManager, logger),
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating bearer transport: %w", err)
	}

	agentClient, err := agent.NewClient(c.APIBaseURL, transport, logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating agent client: %w", err)
	}

	mux := handlers.NewRouter(sessionManager, hosted, agentClient, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

func newSessionRepo(ctx context.Context, c *Config) (repository.SessionRepo, error) {
	switch c.SessionStore {
	case StorePostgres:
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db: %w", err)
		}
		return &postgres.SessionRepo{DB: pool}, nil

	case StoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: c.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("error while connecting to redis: %w", err)
		}
		return redis.NewSessionRepo(client, sessionTTL), nil

	default:
		return memory.NewSessionRepo(), nil
	}
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
