// Package testserver is an in-memory stand-in for the article service,
// used by the client's tests. It follows the same wire contract: tokens in
// the Authorization header, JSON bodies with a message.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"article-desk/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type failure struct {
	status  int
	message string
}

type Server struct {
	mu       sync.Mutex
	tokens   map[string]string // token -> username
	articles []model.Article
	nextID   int
	fail     map[string]failure // route name -> canned failure for the next call
	calls    map[string]int
	logger   *zap.Logger
	router   *mux.Router
}

// New returns a server whose routes live under /api.
func New(logger *zap.Logger) *Server {
	s := &Server{
		tokens: make(map[string]string),
		nextID: 1,
		fail:   make(map[string]failure),
		calls:  make(map[string]int),
		logger: logger,
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", s.handleLogin).Methods("POST").Name("login")
	api.HandleFunc("/articles", s.auth(s.handleList)).Methods("GET").Name("list")
	api.HandleFunc("/articles", s.auth(s.handleCreate)).Methods("POST").Name("create")
	api.HandleFunc("/articles/{id:[0-9]+}", s.auth(s.handleUpdate)).Methods("PUT").Name("update")
	api.HandleFunc("/articles/{id:[0-9]+}", s.auth(s.handleDelete)).Methods("DELETE").Name("delete")
	api.Use(s.countAndFail)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Seed replaces the stored articles. IDs continue after the highest seeded one.
func (s *Server) Seed(articles ...model.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = append([]model.Article(nil), articles...)
	for _, a := range articles {
		if a.ID >= s.nextID {
			s.nextID = a.ID + 1
		}
	}
}

// Articles returns what the server currently stores.
func (s *Server) Articles() []model.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Article(nil), s.articles...)
}

// ExpireTokens invalidates every issued token.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// IssueToken registers a valid token for username without a login call.
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.tokens[token] = username
	return token
}

// FailNext makes the next call to route ("login", "list", "create",
// "update" or "delete") answer with status and message.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[route] = failure{status: status, message: message}
}

// Calls reports how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		s.mu.Lock()
		s.calls[name]++
		f, ok := s.fail[name]
		delete(s.fail, name)
		s.mu.Unlock()

		if ok {
			s.logger.Debug("Injected failure", zap.String("route", name), zap.Int("status", f.status))
			writeJSON(w, f.status, map[string]any{"message": f.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, username string)

func (s *Server) auth(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")

		s.mu.Lock()
		username, ok := s.tokens[token]
		s.mu.Unlock()

		if token == "" || !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Ouch: jwt malformed"})
			return
		}
		next(w, r, username)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Ouch: malformed body"})
		return
	}
	username := strings.TrimSpace(creds.Username)
	if len(username) < 3 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Ouch: username must be at least 3 characters"})
		return
	}
	if len(strings.TrimSpace(creds.Password)) < 8 {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Ouch: invalid credentials"})
		return
	}

	token := s.IssueToken(username)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Here are your articles, %s!", username),
		"token":   token,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, username string) {
	articles := s.Articles()
	if articles == nil {
		articles = []model.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  fmt.Sprintf("Take a look at your articles, %s!", username),
		"articles": articles,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, username string) {
	d, ok := decodeDraft(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	a := model.Article{ID: s.nextID, Title: d.Title, Text: d.Text, Topic: d.Topic}
	s.nextID++
	s.articles = append(s.articles, a)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("Well done, %s. Great article!", username),
		"article": a,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, username string) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	d, ok := decodeDraft(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	i := s.index(id)
	var a model.Article
	if i >= 0 {
		a = model.Article{ID: id, Title: d.Title, Text: d.Text, Topic: d.Topic}
		s.articles[i] = a
	}
	s.mu.Unlock()

	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": fmt.Sprintf("Ouch: article %d not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Nice update, %s!", username),
		"article": a,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, username string) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	s.mu.Lock()
	i := s.index(id)
	if i >= 0 {
		s.articles = append(s.articles[:i:i], s.articles[i+1:]...)
	}
	s.mu.Unlock()

	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": fmt.Sprintf("Ouch: article %d not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Article %d was deleted, %s!", id, username),
	})
}

func decodeDraft(w http.ResponseWriter, r *http.Request) (model.Draft, bool) {
	var d model.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Ouch: malformed body"})
		return d, false
	}
	d.Title, d.Text = strings.TrimSpace(d.Title), strings.TrimSpace(d.Text)
	if d.Title == "" || d.Text == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Ouch: title and text are required"})
		return d, false
	}
	switch d.Topic {
	case model.TopicJavaScript, model.TopicReact, model.TopicNode:
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Ouch: topic must be one of JavaScript, React, Node"})
		return d, false
	}
	return d, true
}

// index must be called with s.mu held.
func (s *Server) index(id int) int {
	for i, a := range s.articles {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
