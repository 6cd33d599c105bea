// Package orchestrator runs every user-facing operation against the article
// service: it attaches the session token, keeps the busy indicator and
// status message in step, classifies the response and hands the outcome to
// the session or the article collection.
//
// No operation returns an error. Each one resolves to an outcome.Outcome and
// leaves a message behind for the user.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"article-desk/internal/collection"
	"article-desk/internal/metrics"
	"article-desk/internal/model"
	"article-desk/internal/nav"
	"article-desk/internal/outcome"
	"article-desk/internal/remote"
	"article-desk/internal/session"
	"article-desk/internal/status"

	"go.uber.org/zap"
)

// GoodbyeMessage is shown after an explicit logout.
const GoodbyeMessage = "Goodbye!"

// Deps are the collaborators an Orchestrator drives. Metrics may be nil.
type Deps struct {
	Transport remote.Transport
	Session   *session.Machine
	Articles  *collection.Collection
	Status    *status.Status
	Nav       *nav.Controller
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

type Orchestrator struct {
	transport remote.Transport
	session   *session.Machine
	articles  *collection.Collection
	status    *status.Status
	nav       *nav.Controller
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// New wires the orchestrator and subscribes navigation and the article
// collection to session events.
func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		transport: d.Transport,
		session:   d.Session,
		articles:  d.Articles,
		status:    d.Status,
		nav:       d.Nav,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
	o.session.Subscribe(o.onSessionEvent)
	return o
}

func (o *Orchestrator) onSessionEvent(ev session.Event) {
	if ev.To == session.LoggedOut {
		// A new session starts from an empty collection.
		o.articles.Reset()
	}
	o.nav.HandleSessionEvent(ev)
}

// Login exchanges credentials for a token. Login never sends a token, so a
// 401 here means bad credentials and leaves the session as it was.
func (o *Orchestrator) Login(ctx context.Context, username, password string) outcome.Outcome {
	req := remote.Request{
		Method: http.MethodPost,
		Path:   "/login",
		Body:   map[string]string{"username": username, "password": password},
	}
	return o.run(ctx, outcome.OpLogin, req, false, func(out outcome.Outcome) outcome.Outcome {
		if !out.OK() {
			return out
		}
		if err := o.session.LoginSucceeded(ctx, out.Data.Token); err != nil {
			o.logger.Error("Failed to persist session token", zap.Error(err))
			return outcome.Unexpected(outcome.OpLogin)
		}
		return out
	})
}

// Logout ends the session locally. It makes no network call.
func (o *Orchestrator) Logout(ctx context.Context) {
	o.session.Logout(ctx)
	o.status.SetMessage(GoodbyeMessage)
}

// ListArticles replaces the local collection with the server's.
func (o *Orchestrator) ListArticles(ctx context.Context) outcome.Outcome {
	req := remote.Request{Method: http.MethodGet, Path: "/articles"}
	return o.run(ctx, outcome.OpList, req, true, func(out outcome.Outcome) outcome.Outcome {
		if out.OK() {
			o.articles.Replace(out.ArticleList())
		}
		return out
	})
}

// CreateArticle posts a new article and appends the server's copy.
func (o *Orchestrator) CreateArticle(ctx context.Context, d model.Draft) outcome.Outcome {
	req := remote.Request{Method: http.MethodPost, Path: "/articles", Body: d}
	return o.run(ctx, outcome.OpCreate, req, true, func(out outcome.Outcome) outcome.Outcome {
		if out.OK() {
			o.articles.Append(*out.Data.Article)
			o.articles.ClearSelection()
			o.nav.ArticleCreated()
		}
		return out
	})
}

// UpdateArticle replaces article id with the server's updated copy.
func (o *Orchestrator) UpdateArticle(ctx context.Context, id int, d model.Draft) outcome.Outcome {
	req := remote.Request{Method: http.MethodPut, Path: fmt.Sprintf("/articles/%d", id), Body: d}
	return o.run(ctx, outcome.OpUpdate, req, true, func(out outcome.Outcome) outcome.Outcome {
		if out.OK() {
			o.articles.Update(id, *out.Data.Article)
			o.articles.ClearSelection()
		}
		return out
	})
}

// DeleteArticle removes article id once the server confirms.
func (o *Orchestrator) DeleteArticle(ctx context.Context, id int) outcome.Outcome {
	req := remote.Request{Method: http.MethodDelete, Path: fmt.Sprintf("/articles/%d", id)}
	return o.run(ctx, outcome.OpDelete, req, true, func(out outcome.Outcome) outcome.Outcome {
		if out.OK() {
			o.articles.Remove(id)
			o.articles.ClearSelection()
		}
		return out
	})
}

// SetEditSelection marks id for editing. It never talks to the server.
func (o *Orchestrator) SetEditSelection(id int) bool {
	return o.articles.Select(id)
}

func (o *Orchestrator) ClearEditSelection() {
	o.articles.ClearSelection()
}

func (o *Orchestrator) SessionState() session.State { return o.session.State() }

func (o *Orchestrator) Articles() []model.Article { return o.articles.Articles() }

func (o *Orchestrator) EditSelection() (int, bool) { return o.articles.Selection() }

func (o *Orchestrator) CurrentArticle() (model.Article, bool) { return o.articles.Current() }

func (o *Orchestrator) Status() status.Snapshot { return o.status.Snapshot() }

// run is the template every operation follows. The busy indicator is
// released on every path, including a panic further down.
func (o *Orchestrator) run(
	ctx context.Context,
	op outcome.Op,
	req remote.Request,
	withToken bool,
	apply func(outcome.Outcome) outcome.Outcome,
) (out outcome.Outcome) {
	logger := o.logger.With(zap.String("op", string(op)))

	end := o.status.Begin()
	defer end()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Operation panicked", zap.Any("panic", r), zap.Stack("stack"))
			out = outcome.Unexpected(op)
			o.status.SetMessage(out.Message)
		}
		o.metrics.Observe(op, out.Kind, time.Since(start))
	}()

	gen := o.session.Generation()
	if withToken {
		req.Token = o.session.Token(ctx)
	}

	ex := o.transport.Do(ctx, req)
	switch {
	case errors.Is(ex.Err, remote.ErrInvalidRequest):
		// Nothing was sent, so this is not the network's fault.
		logger.Error("Failed to build request", zap.Error(ex.Err))
		out = outcome.Unexpected(op)
	default:
		out = outcome.Classify(op, ex)
		if out.Kind == outcome.Unreachable {
			logger.Warn("Service unreachable", zap.Error(ex.Err))
		}
	}

	if op != outcome.OpLogin && o.stale(gen, out) {
		// The session this request was made for is over. Its result must
		// not leak into the next one, and its 401 must not end it.
		logger.Info("Dropping result of a request from an ended session", zap.Stringer("outcome", out.Kind))
		o.status.SetMessage(out.Message)
		return out
	}

	out = o.dispatch(ctx, op, out, apply)
	o.status.SetMessage(out.Message)

	logger.Debug("Operation finished", zap.Stringer("outcome", out.Kind), zap.String("message", out.Message))
	return out
}

// stale reports whether a result arrived for a session that is no longer
// current, or would fill the collection while nobody is logged in.
func (o *Orchestrator) stale(gen uint64, out outcome.Outcome) bool {
	if o.session.Generation() != gen {
		return true
	}
	return out.OK() && o.session.State() != session.Authenticated
}

func (o *Orchestrator) dispatch(
	ctx context.Context,
	op outcome.Op,
	out outcome.Outcome,
	apply func(outcome.Outcome) outcome.Outcome,
) outcome.Outcome {
	if out.Kind == outcome.Unauthorized && op != outcome.OpLogin {
		o.forceLogout(ctx)
		return out
	}
	return apply(out)
}

// forceLogout is the single place a 401 ends the session. The status
// message stays the one the server sent.
func (o *Orchestrator) forceLogout(ctx context.Context) {
	o.logger.Info("Session rejected by server, logging out")
	o.session.Expire(ctx)
}
