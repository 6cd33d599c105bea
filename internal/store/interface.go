package store

import (
	"context"
	"errors"
)

var (
	// ErrNoToken is returned by Get when no session token is stored.
	ErrNoToken = errors.New("no session token")
)

// DefaultKey is the key the session token is stored under.
const DefaultKey = "token"

// TokenStore holds the single current session token across restarts.
// Set overwrites any previous value; Clear removes it entirely, so an
// absent token and an empty one are different things.
type TokenStore interface {
	Set(ctx context.Context, token string) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
	Close() error
}
