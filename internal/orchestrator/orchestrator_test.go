package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"article-desk/internal/collection"
	"article-desk/internal/metrics"
	"article-desk/internal/model"
	"article-desk/internal/nav"
	"article-desk/internal/outcome"
	"article-desk/internal/remote"
	"article-desk/internal/session"
	"article-desk/internal/status"
	"article-desk/internal/store"
	"article-desk/internal/testserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scripted answers requests with canned exchanges, in order.
type scripted struct {
	mu        sync.Mutex
	responses []outcome.Exchange
	requests  []remote.Request
	onDo      func(remote.Request)
}

func (s *scripted) Do(_ context.Context, req remote.Request) outcome.Exchange {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	onDo := s.onDo
	var ex outcome.Exchange
	if len(s.responses) > 0 {
		ex, s.responses = s.responses[0], s.responses[1:]
	}
	s.mu.Unlock()

	if onDo != nil {
		onDo(req)
	}
	return ex
}

func reply(status int, body string) outcome.Exchange {
	return outcome.Exchange{Status: status, Body: []byte(body)}
}

type harness struct {
	o       *Orchestrator
	tokens  *store.BadgerStore
	nav     *nav.Recorder
	metrics *metrics.Recorder
}

func newHarness(t *testing.T, tr remote.Transport, token string) *harness {
	t.Helper()
	ctx := context.Background()

	tokens, err := store.NewBadgerStore("", "")
	require.NoError(t, err)
	t.Cleanup(func() { tokens.Close() })
	if token != "" {
		require.NoError(t, tokens.Set(ctx, token))
	}

	logger := zap.NewNop()
	sess, err := session.New(ctx, tokens, logger)
	require.NoError(t, err)

	rec := &nav.Recorder{}
	m := metrics.NewRecorder()
	o := New(Deps{
		Transport: tr,
		Session:   sess,
		Articles:  collection.New(logger),
		Status:    status.New(),
		Nav:       nav.NewController(rec, logger),
		Metrics:   m,
		Logger:    logger,
	})
	return &harness{o: o, tokens: tokens, nav: rec, metrics: m}
}

func (h *harness) token(t *testing.T) (string, bool) {
	t.Helper()
	tok, err := h.tokens.Get(context.Background())
	if errors.Is(err, store.ErrNoToken) {
		return "", false
	}
	require.NoError(t, err)
	return tok, true
}

func TestLogin_Success(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{reply(200, `{"message":"Welcome","token":"abc"}`)}}
	h := newHarness(t, tr, "")
	require.Equal(t, session.LoggedOut, h.o.SessionState())

	out := h.o.Login(context.Background(), "foo", "12345678")

	assert.Equal(t, outcome.OK, out.Kind)
	tok, ok := h.token(t)
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
	assert.Equal(t, session.Authenticated, h.o.SessionState())
	assert.Equal(t, nav.GoArticles, h.nav.Last())
	assert.Equal(t, status.Snapshot{Message: "Welcome", Busy: false}, h.o.Status())

	require.Len(t, tr.requests, 1)
	assert.Equal(t, "/login", tr.requests[0].Path)
	assert.Equal(t, "", tr.requests[0].Token, "login never carries a token")
}

func TestLogin_Failures(t *testing.T) {
	cases := []struct {
		name    string
		ex      outcome.Exchange
		message string
	}{
		{"bad request", reply(400, `{"message":"Ouch: username must be at least 3 characters"}`), "Ouch: username must be at least 3 characters"},
		{"bad credentials", reply(401, `{"message":"Ouch: invalid credentials"}`), "Ouch: invalid credentials"},
		{"no message", reply(500, ``), "Login failed"},
		{"unreachable", outcome.Exchange{Err: errors.New("dial tcp: refused")}, outcome.NetworkError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &scripted{responses: []outcome.Exchange{tc.ex}}, "")

			out := h.o.Login(context.Background(), "foo", "12345678")

			assert.NotEqual(t, outcome.OK, out.Kind)
			assert.Equal(t, tc.message, h.o.Status().Message)
			assert.False(t, h.o.Status().Busy)
			assert.Equal(t, session.LoggedOut, h.o.SessionState())
			_, ok := h.token(t)
			assert.False(t, ok)
			assert.Equal(t, nav.None, h.nav.Last())
		})
	}
}

func TestLogin_FailedLoginKeepsExistingSession(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{reply(401, `{"message":"Ouch: invalid credentials"}`)}}
	h := newHarness(t, tr, "still-good")

	h.o.Login(context.Background(), "foo", "wrong-password")

	assert.Equal(t, session.Authenticated, h.o.SessionState())
	tok, _ := h.token(t)
	assert.Equal(t, "still-good", tok)
}

func TestAuthenticatedRequestsCarryToken(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{
		reply(200, `{"message":"ok","articles":[]}`),
		reply(201, `{"message":"ok","article":{"article_id":1,"title":"T","text":"X","topic":"React"}}`),
		reply(200, `{"message":"ok","article":{"article_id":1,"title":"T2","text":"X","topic":"React"}}`),
		reply(200, `{"message":"ok"}`),
	}}
	h := newHarness(t, tr, "abc")
	ctx := context.Background()

	h.o.ListArticles(ctx)
	h.o.CreateArticle(ctx, model.Draft{Title: "T", Text: "X", Topic: "React"})
	h.o.UpdateArticle(ctx, 1, model.Draft{Title: "T2", Text: "X", Topic: "React"})
	h.o.DeleteArticle(ctx, 1)

	require.Len(t, tr.requests, 4)
	for _, req := range tr.requests {
		assert.Equal(t, "abc", req.Token, req.Path)
	}
	assert.Equal(t, http.MethodPut, tr.requests[2].Method)
	assert.Equal(t, "/articles/1", tr.requests[2].Path)
	assert.Equal(t, http.MethodDelete, tr.requests[3].Method)
}

func TestUnauthorized_ForcesLogout(t *testing.T) {
	ops := map[string]func(context.Context, *Orchestrator) outcome.Outcome{
		"list": func(ctx context.Context, o *Orchestrator) outcome.Outcome { return o.ListArticles(ctx) },
		"create": func(ctx context.Context, o *Orchestrator) outcome.Outcome {
			return o.CreateArticle(ctx, model.Draft{Title: "T", Text: "X", Topic: "React"})
		},
		"update": func(ctx context.Context, o *Orchestrator) outcome.Outcome {
			return o.UpdateArticle(ctx, 1, model.Draft{Title: "T", Text: "X", Topic: "React"})
		},
		"delete": func(ctx context.Context, o *Orchestrator) outcome.Outcome { return o.DeleteArticle(ctx, 1) },
	}

	for name, run := range ops {
		t.Run(name, func(t *testing.T) {
			tr := &scripted{responses: []outcome.Exchange{
				reply(200, `{"message":"ok","articles":[{"article_id":1,"title":"a","text":"b","topic":"Node"}]}`),
				reply(401, `{"message":"Token expired"}`),
			}}
			h := newHarness(t, tr, "abc")
			ctx := context.Background()
			h.o.ListArticles(ctx)
			require.Len(t, h.o.Articles(), 1)
			h.o.SetEditSelection(1)

			out := run(ctx, h.o)

			assert.Equal(t, outcome.Unauthorized, out.Kind)
			_, ok := h.token(t)
			assert.False(t, ok, "token must be cleared")
			assert.Equal(t, session.LoggedOut, h.o.SessionState())
			assert.Equal(t, nav.GoLogin, h.nav.Last())
			assert.Equal(t, "Token expired", h.o.Status().Message, "server message is kept")
			assert.False(t, h.o.Status().Busy)
			assert.Empty(t, h.o.Articles())
			_, editing := h.o.EditSelection()
			assert.False(t, editing)
		})
	}
}

func TestListArticles_Idempotent(t *testing.T) {
	body := `{"message":"Here you go","articles":[{"article_id":1,"title":"a","text":"b","topic":"Node"},{"article_id":2,"title":"c","text":"d","topic":"React"}]}`
	tr := &scripted{responses: []outcome.Exchange{reply(200, body), reply(200, body)}}
	h := newHarness(t, tr, "abc")
	ctx := context.Background()

	h.o.ListArticles(ctx)
	first := h.o.Articles()
	h.o.ListArticles(ctx)

	assert.Equal(t, first, h.o.Articles())
	assert.Len(t, first, 2)
	assert.Equal(t, "Here you go", h.o.Status().Message)
}

func TestCreateThenDelete(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{
		reply(201, `{"message":"Created","article":{"article_id":5,"title":"T","text":"X","topic":"JS"}}`),
		reply(200, `{"message":"Deleted"}`),
	}}
	h := newHarness(t, tr, "abc")
	ctx := context.Background()

	out := h.o.CreateArticle(ctx, model.Draft{Title: "T", Text: "X", Topic: "JS"})
	require.True(t, out.OK())
	assert.Equal(t, []model.Article{{ID: 5, Title: "T", Text: "X", Topic: "JS"}}, h.o.Articles())
	assert.Equal(t, nav.GoArticles, h.nav.Last())

	out = h.o.DeleteArticle(ctx, 5)
	require.True(t, out.OK())
	assert.Empty(t, h.o.Articles())
	assert.Equal(t, "Deleted", h.o.Status().Message)
}

func TestUpdate_TargetsOnlyMatchingEntry(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{
		reply(200, `{"message":"ok","articles":[{"article_id":1,"title":"one","text":"a","topic":"Node"},{"article_id":2,"title":"two","text":"b","topic":"React"}]}`),
		reply(200, `{"message":"Nice update","article":{"article_id":2,"title":"two v2","text":"b2","topic":"Node"}}`),
	}}
	h := newHarness(t, tr, "abc")
	ctx := context.Background()
	h.o.ListArticles(ctx)
	before := h.o.Articles()
	require.True(t, h.o.SetEditSelection(2))

	out := h.o.UpdateArticle(ctx, 2, model.Draft{Title: "two v2", Text: "b2", Topic: "Node"})

	require.True(t, out.OK())
	after := h.o.Articles()
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, model.Article{ID: 2, Title: "two v2", Text: "b2", Topic: "Node"}, after[1])
	_, editing := h.o.EditSelection()
	assert.False(t, editing, "a confirmed update ends editing")
}

func TestUpdate_UnknownIDIsSkipped(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{
		reply(200, `{"message":"ok","articles":[{"article_id":1,"title":"one","text":"a","topic":"Node"}]}`),
		reply(200, `{"message":"Nice update","article":{"article_id":7,"title":"x","text":"y","topic":"Node"}}`),
	}}
	h := newHarness(t, tr, "abc")
	ctx := context.Background()
	h.o.ListArticles(ctx)

	out := h.o.UpdateArticle(ctx, 7, model.Draft{Title: "x", Text: "y", Topic: "Node"})

	assert.True(t, out.OK(), "the inconsistency is not surfaced to the user")
	assert.Equal(t, "Nice update", h.o.Status().Message)
	assert.Len(t, h.o.Articles(), 1)
	assert.Equal(t, "one", h.o.Articles()[0].Title)
}

func TestLogout_AlwaysGoodbye(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{
		reply(200, `{"message":"ok","articles":[{"article_id":1,"title":"one","text":"a","topic":"Node"}]}`),
	}}
	h := newHarness(t, tr, "abc")
	ctx := context.Background()
	h.o.ListArticles(ctx)

	h.o.Logout(ctx)

	assert.Equal(t, GoodbyeMessage, h.o.Status().Message)
	_, ok := h.token(t)
	assert.False(t, ok)
	assert.Equal(t, session.LoggedOut, h.o.SessionState())
	assert.Equal(t, nav.GoLogin, h.nav.Last())
	assert.Empty(t, tr.requests[1:], "logout makes no network call")

	// Logging out again, already logged out, behaves the same
	h.o.Logout(ctx)
	assert.Equal(t, GoodbyeMessage, h.o.Status().Message)
	assert.Equal(t, nav.GoLogin, h.nav.Last())
}

func TestRejectedAndUnreachable_DoNotMutate(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{
		reply(200, `{"message":"ok","articles":[{"article_id":1,"title":"one","text":"a","topic":"Node"}]}`),
		reply(422, `{"message":"Ouch: title and text are required"}`),
		{Err: errors.New("timeout")},
		reply(404, `{"message":"Ouch: article 1 not found"}`),
		reply(200, `{"message":"weird"}`),
		{Err: errors.New("reset by peer")},
	}}
	h := newHarness(t, tr, "abc")
	ctx := context.Background()
	h.o.ListArticles(ctx)
	before := h.o.Articles()

	steps := []struct {
		run     func() outcome.Outcome
		message string
	}{
		{func() outcome.Outcome { return h.o.CreateArticle(ctx, model.Draft{}) }, "Ouch: title and text are required"},
		{func() outcome.Outcome { return h.o.UpdateArticle(ctx, 1, model.Draft{Title: "x"}) }, outcome.NetworkError},
		{func() outcome.Outcome { return h.o.DeleteArticle(ctx, 1) }, "Ouch: article 1 not found"},
		{func() outcome.Outcome { return h.o.ListArticles(ctx) }, "Failed to fetch articles"},
		{func() outcome.Outcome { return h.o.ListArticles(ctx) }, outcome.NetworkError},
	}
	for _, step := range steps {
		out := step.run()
		assert.False(t, out.OK())
		assert.Equal(t, step.message, h.o.Status().Message)
		assert.Equal(t, before, h.o.Articles())
		assert.Equal(t, session.Authenticated, h.o.SessionState())
	}
	tok, ok := h.token(t)
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
}

func TestBusy_OnlyWhileInFlight(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{reply(200, `{"message":"ok","articles":[]}`)}}
	h := newHarness(t, tr, "abc")

	var busyDuring bool
	var messageDuring string
	tr.onDo = func(remote.Request) {
		snap := h.o.Status()
		busyDuring, messageDuring = snap.Busy, snap.Message
	}

	h.o.Logout(context.Background())
	assert.False(t, h.o.Status().Busy)

	h.o.ListArticles(context.Background())

	assert.True(t, busyDuring)
	assert.Equal(t, "", messageDuring, "message is flushed when the request starts")
	assert.False(t, h.o.Status().Busy)
}

type panicking struct{}

func (panicking) Do(context.Context, remote.Request) outcome.Exchange {
	panic("transport exploded")
}

func TestPanic_ReleasesBusy(t *testing.T) {
	h := newHarness(t, panicking{}, "abc")

	var out outcome.Outcome
	assert.NotPanics(t, func() {
		out = h.o.CreateArticle(context.Background(), model.Draft{Title: "T", Text: "X", Topic: "React"})
	})

	assert.Equal(t, outcome.Rejected, out.Kind)
	assert.Equal(t, "Failed to create article", h.o.Status().Message)
	assert.False(t, h.o.Status().Busy)
	assert.Equal(t, session.Authenticated, h.o.SessionState())
}

func TestMetrics_CountOutcomes(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{
		reply(200, `{"message":"Welcome","token":"abc"}`),
		reply(401, `{"message":"Token expired"}`),
	}}
	h := newHarness(t, tr, "")
	ctx := context.Background()

	h.o.Login(ctx, "foo", "12345678")
	h.o.ListArticles(ctx)

	var buf bytes.Buffer
	require.NoError(t, h.metrics.WriteSummary(&buf))
	assert.Contains(t, buf.String(), "login    ok")
	assert.Contains(t, buf.String(), "list     unauthorized")
}

func newLiveHarness(t *testing.T) (*harness, *testserver.Server) {
	t.Helper()
	api := testserver.New(zap.NewNop())
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client := remote.NewClient(srv.URL+"/api", 5*time.Second, zap.NewNop())
	return newHarness(t, client, ""), api
}

func TestEndToEnd_AgainstFakeService(t *testing.T) {
	h, api := newLiveHarness(t)
	api.Seed(model.Article{ID: 1, Title: "Closures", Text: "Functions remember", Topic: model.TopicJavaScript})
	ctx := context.Background()

	out := h.o.Login(ctx, "foo", "12345678")
	require.True(t, out.OK(), out.Message)
	assert.Equal(t, "Here are your articles, foo!", h.o.Status().Message)

	require.True(t, h.o.ListArticles(ctx).OK())
	require.Len(t, h.o.Articles(), 1)

	out = h.o.CreateArticle(ctx, model.Draft{Title: "Hooks", Text: "useState", Topic: model.TopicReact})
	require.True(t, out.OK(), out.Message)
	assert.Equal(t, api.Articles(), h.o.Articles())

	require.True(t, h.o.SetEditSelection(2))
	cur, ok := h.o.CurrentArticle()
	require.True(t, ok)
	out = h.o.UpdateArticle(ctx, cur.ID, model.Draft{Text: "useEffect"}.Merge(model.DraftOf(cur)))
	require.True(t, out.OK(), out.Message)
	assert.Equal(t, api.Articles(), h.o.Articles())
	assert.Equal(t, "useEffect", h.o.Articles()[1].Text)

	// Validation failure leaves everything alone
	out = h.o.CreateArticle(ctx, model.Draft{Title: "Bad", Text: "topic", Topic: "Go"})
	assert.Equal(t, outcome.Rejected, out.Kind)
	assert.Len(t, h.o.Articles(), 2)

	require.True(t, h.o.DeleteArticle(ctx, 1).OK())
	assert.Equal(t, api.Articles(), h.o.Articles())

	// The server forgets the session: next request logs us out
	api.ExpireTokens()
	out = h.o.ListArticles(ctx)
	assert.Equal(t, outcome.Unauthorized, out.Kind)
	assert.Equal(t, session.LoggedOut, h.o.SessionState())
	assert.Equal(t, nav.GoLogin, h.nav.Last())
	assert.Empty(t, h.o.Articles())
}

func TestOverlappingCreates(t *testing.T) {
	h, api := newLiveHarness(t)
	ctx := context.Background()
	require.True(t, h.o.Login(ctx, "foo", "12345678").OK())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.o.CreateArticle(ctx, model.Draft{Title: "T", Text: "X", Topic: model.TopicNode})
		}()
	}
	wg.Wait()

	assert.False(t, h.o.Status().Busy)
	assert.Len(t, h.o.Articles(), 10)
	assert.ElementsMatch(t, api.Articles(), h.o.Articles())
	assert.Equal(t, 10, api.Calls("create"))
}

func TestInjectedServerFailure(t *testing.T) {
	h, api := newLiveHarness(t)
	ctx := context.Background()
	require.True(t, h.o.Login(ctx, "foo", "12345678").OK())

	api.FailNext("list", http.StatusServiceUnavailable, "")
	out := h.o.ListArticles(ctx)

	assert.Equal(t, outcome.Rejected, out.Kind)
	assert.Equal(t, "Failed to fetch articles", h.o.Status().Message)
	assert.Equal(t, session.Authenticated, h.o.SessionState())
}

// held answers GET /articles only once release is closed. Every other
// request gets next.
type held struct {
	started chan struct{}
	release chan struct{}
	list    outcome.Exchange
	next    outcome.Exchange
}

func newHeld(list, next outcome.Exchange) *held {
	return &held{started: make(chan struct{}), release: make(chan struct{}), list: list, next: next}
}

func (h *held) Do(_ context.Context, req remote.Request) outcome.Exchange {
	if req.Method == http.MethodGet {
		close(h.started)
		<-h.release
		return h.list
	}
	return h.next
}

func TestLateListAfterForcedLogout_LeavesCollectionEmpty(t *testing.T) {
	tr := newHeld(
		reply(200, `{"message":"ok","articles":[{"article_id":1,"title":"A","text":"x","topic":"React"}]}`),
		reply(401, `{"message":"Token expired"}`),
	)
	h := newHarness(t, tr, "abc")
	ctx := context.Background()

	done := make(chan outcome.Outcome)
	go func() { done <- h.o.ListArticles(ctx) }()
	<-tr.started

	out := h.o.DeleteArticle(ctx, 9)
	require.Equal(t, outcome.Unauthorized, out.Kind)
	require.Equal(t, session.LoggedOut, h.o.SessionState())
	assert.True(t, h.o.Status().Busy, "list still in flight")

	close(tr.release)
	late := <-done

	assert.Equal(t, outcome.OK, late.Kind)
	assert.Equal(t, session.LoggedOut, h.o.SessionState())
	assert.Empty(t, h.o.Articles())
	assert.Equal(t, status.Snapshot{Message: "ok", Busy: false}, h.o.Status())
}

func TestLate401AfterNewLogin_KeepsNewSession(t *testing.T) {
	tr := newHeld(
		reply(401, `{"message":"Token expired"}`),
		reply(200, `{"message":"Welcome back","token":"fresh"}`),
	)
	h := newHarness(t, tr, "old")
	ctx := context.Background()

	done := make(chan outcome.Outcome)
	go func() { done <- h.o.ListArticles(ctx) }()
	<-tr.started

	require.True(t, h.o.Login(ctx, "foo", "12345678").OK())
	h.nav.Take()

	close(tr.release)
	late := <-done

	assert.Equal(t, outcome.Unauthorized, late.Kind)
	assert.Equal(t, session.Authenticated, h.o.SessionState())
	tok, ok := h.token(t)
	assert.True(t, ok)
	assert.Equal(t, "fresh", tok)
	assert.Empty(t, h.nav.Take(), "no redirect to login")
}

func TestInvalidRequest_IsNotANetworkError(t *testing.T) {
	tr := &scripted{responses: []outcome.Exchange{
		{Err: fmt.Errorf("%w: encode body: unsupported type", remote.ErrInvalidRequest)},
	}}
	h := newHarness(t, tr, "abc")

	out := h.o.CreateArticle(context.Background(), model.Draft{Title: "T", Text: "X", Topic: "React"})

	assert.Equal(t, outcome.Rejected, out.Kind)
	assert.Equal(t, "Failed to create article", h.o.Status().Message)
	assert.NotEqual(t, outcome.NetworkError, h.o.Status().Message)
	assert.Equal(t, session.Authenticated, h.o.SessionState())
	assert.Empty(t, h.o.Articles())
}
