// Package nav turns session events into view changes.
package nav

import (
	"sync"

	"article-desk/internal/session"

	"go.uber.org/zap"
)

type Intent int

const (
	None Intent = iota
	GoLogin
	GoArticles
)

func (i Intent) String() string {
	switch i {
	case GoLogin:
		return "login"
	case GoArticles:
		return "articles"
	}
	return "none"
}

// Navigator performs a view change. The rendering layer implements it.
type Navigator interface {
	Navigate(Intent)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Intent)

func (f NavigatorFunc) Navigate(i Intent) { f(i) }

// Controller holds no state of its own: each triggering event produces
// exactly one intent.
type Controller struct {
	nav    Navigator
	logger *zap.Logger
}

func NewController(nav Navigator, logger *zap.Logger) *Controller {
	return &Controller{nav: nav, logger: logger}
}

// HandleSessionEvent is meant to be subscribed to the session machine.
func (c *Controller) HandleSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.LoginSucceeded:
		c.navigate(GoArticles)
	case session.LoggedOutByUser, session.SessionExpired:
		c.navigate(GoLogin)
	}
}

// ArticleCreated sends the user to the article list.
func (c *Controller) ArticleCreated() {
	c.navigate(GoArticles)
}

// GuardArticles reports whether the articles view may render. When the
// session is logged out it redirects to login instead.
func (c *Controller) GuardArticles(state session.State) bool {
	if state == session.Authenticated {
		return true
	}
	c.navigate(GoLogin)
	return false
}

func (c *Controller) navigate(i Intent) {
	c.logger.Debug("Navigate", zap.Stringer("to", i))
	c.nav.Navigate(i)
}

// Recorder is a Navigator that remembers intents until they are taken.
// Views that must not re-enter the core from inside a callback poll it.
type Recorder struct {
	mu      sync.Mutex
	pending []Intent
}

func (r *Recorder) Navigate(i Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, i)
}

// Last returns the most recent intent without consuming anything.
func (r *Recorder) Last() Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return None
	}
	return r.pending[len(r.pending)-1]
}

// Take returns and forgets the pending intents, oldest first.
func (r *Recorder) Take() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}
