// Package app builds the client from configuration. Everything it wires
// lives for as long as the App and is released by Close.
package app

import (
	"context"
	"fmt"

	"article-desk/internal/collection"
	"article-desk/internal/config"
	"article-desk/internal/metrics"
	"article-desk/internal/nav"
	"article-desk/internal/orchestrator"
	"article-desk/internal/remote"
	"article-desk/internal/session"
	"article-desk/internal/status"
	"article-desk/internal/store"

	"go.uber.org/zap"
)

type App struct {
	*orchestrator.Orchestrator

	Nav        *nav.Controller
	StatusLine *status.Status
	Metrics    *metrics.Recorder

	tokens store.TokenStore
}

// New opens the token store named by cfg and wires the orchestrator.
// navigator receives every view change the core asks for.
func New(ctx context.Context, cfg config.Config, navigator nav.Navigator, logger *zap.Logger) (*App, error) {
	tokens, err := OpenTokenStore(ctx, cfg.Token)
	if err != nil {
		return nil, err
	}
	return build(ctx, cfg, tokens, remote.NewClient(cfg.API.URL, cfg.API.Timeout, logger), navigator, logger)
}

// build wires the app around an already opened token store. It takes
// ownership of tokens and closes it on failure.
func build(
	ctx context.Context,
	cfg config.Config,
	tokens store.TokenStore,
	transport remote.Transport,
	navigator nav.Navigator,
	logger *zap.Logger,
) (*App, error) {
	sess, err := session.New(ctx, tokens, logger)
	if err != nil {
		tokens.Close()
		return nil, err
	}

	a := &App{
		Nav:        nav.NewController(navigator, logger),
		StatusLine: status.New(),
		Metrics:    metrics.NewRecorder(),
		tokens:     tokens,
	}
	a.Orchestrator = orchestrator.New(orchestrator.Deps{
		Transport: transport,
		Session:   sess,
		Articles:  collection.New(logger),
		Status:    a.StatusLine,
		Nav:       a.Nav,
		Metrics:   a.Metrics,
		Logger:    logger,
	})

	logger.Debug("Client ready",
		zap.String("api", cfg.API.URL),
		zap.String("token_backend", cfg.Token.Backend),
		zap.Stringer("session", sess.State()))
	return a, nil
}

// OpenTokenStore opens the backend named by cfg.Backend.
func OpenTokenStore(ctx context.Context, cfg config.TokenConfig) (store.TokenStore, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		st, err := store.NewBadgerStore(cfg.Path, cfg.Key)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendRedis:
		st, err := store.NewRedisStore(ctx, cfg.RedisAddr, cfg.Key)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
}

// Close releases the token store.
func (a *App) Close() error {
	return a.tokens.Close()
}
