package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"article-desk/internal/store"

	"go.uber.org/zap"
)

type State int

const (
	LoggedOut State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "logged-out"
}

type EventKind int

const (
	// LoginSucceeded: a token was issued and stored.
	LoginSucceeded EventKind = iota
	// LoggedOutByUser: the user asked to leave.
	LoggedOutByUser
	// SessionExpired: a request came back 401.
	SessionExpired
)

func (k EventKind) String() string {
	switch k {
	case LoginSucceeded:
		return "login-succeeded"
	case LoggedOutByUser:
		return "logged-out"
	case SessionExpired:
		return "session-expired"
	}
	return "unknown"
}

// Event describes one transition. From and To may be equal, e.g. an
// explicit logout while already logged out still clears the token.
type Event struct {
	Kind EventKind
	From State
	To   State
}

// Machine owns the session state and the token that backs it.
type Machine struct {
	mu         sync.Mutex
	tokens     store.TokenStore
	state      State
	generation uint64
	listeners  []func(Event)
	logger     *zap.Logger
}

// New starts Authenticated when a token is already stored. Whether that
// token is still valid is found out by the first authenticated request.
func New(ctx context.Context, tokens store.TokenStore, logger *zap.Logger) (*Machine, error) {
	m := &Machine{tokens: tokens, logger: logger}

	_, err := tokens.Get(ctx)
	switch {
	case err == nil:
		m.state = Authenticated
	case errors.Is(err, store.ErrNoToken):
		m.state = LoggedOut
	default:
		return nil, fmt.Errorf("read token: %w", err)
	}
	return m, nil
}

// Subscribe registers fn to be called with every event, in order.
// Listeners run synchronously after the machine's lock is released.
func (m *Machine) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation changes on every transition. A request that saw one
// generation and finishes under another belongs to a session that is over.
func (m *Machine) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Token returns the stored token, or "" when there is none.
func (m *Machine) Token(ctx context.Context) string {
	token, err := m.tokens.Get(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoToken) {
			m.logger.Error("Failed to read token", zap.Error(err))
		}
		return ""
	}
	return token
}

// LoginSucceeded stores token, replacing any previous one.
func (m *Machine) LoginSucceeded(ctx context.Context, token string) error {
	if err := m.tokens.Set(ctx, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	m.transition(LoginSucceeded, Authenticated)
	return nil
}

// Logout is the explicit, user-initiated logout. It makes no network call.
func (m *Machine) Logout(ctx context.Context) {
	m.clearToken(ctx)
	m.transition(LoggedOutByUser, LoggedOut)
}

// Expire is the forced logout that follows any 401.
func (m *Machine) Expire(ctx context.Context) {
	m.clearToken(ctx)
	m.transition(SessionExpired, LoggedOut)
}

func (m *Machine) clearToken(ctx context.Context) {
	// The session ends even if the store misbehaves; a token that could not
	// be removed will be rejected again by the server.
	if err := m.tokens.Clear(ctx); err != nil {
		m.logger.Error("Failed to clear token", zap.Error(err))
	}
}

func (m *Machine) transition(kind EventKind, to State) {
	m.mu.Lock()
	ev := Event{Kind: kind, From: m.state, To: to}
	m.state = to
	m.generation++
	listeners := append([]func(Event){}, m.listeners...)
	m.mu.Unlock()

	m.logger.Debug("Session transition",
		zap.Stringer("event", kind),
		zap.Stringer("from", ev.From),
		zap.Stringer("to", ev.To))

	for _, fn := range listeners {
		fn(ev)
	}
}
