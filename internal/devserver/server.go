package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agora-dev/agora/pkg/livefeed"
	"github.com/agora-dev/agora/pkg/remote"
)

// SessionCookie is the name of the session cookie set by /auth/login.
const SessionCookie = "AGORA_SESSION"

// Envelope selects the key that carries response payloads.
type Envelope string

const (
	EnvelopeResult Envelope = "result"
	EnvelopeData   Envelope = "data"
)

// Anonymous selects how protected endpoints answer requests without a
// session.
type Anonymous int

const (
	// AnonymousUnauthorized answers 401 with an error envelope.
	AnonymousUnauthorized Anonymous = iota
	// AnonymousRedirect answers 302 to the HTML login page.
	AnonymousRedirect
)

// Options configures the development backend.
type Options struct {
	// Logger receives request and event logs.
	Logger *slog.Logger

	// Envelope is the payload key. Default: EnvelopeResult.
	Envelope Envelope

	// Anonymous is the behaviour for requests without a session.
	Anonymous Anonymous

	// Users maps usernames to passwords. Default: alice and bob, both with
	// password "password".
	Users map[string]string

	// Seed fills the board with sample posts.
	Seed bool

	// Registry receives the server's metrics. Default: a new registry.
	Registry *prometheus.Registry

	// PingInterval is how often event clients are pinged. Default: 30s.
	PingInterval time.Duration
}

// Server is an in-memory backend implementing every endpoint the client
// calls. It is meant for local development and tests.
type Server struct {
	opts     Options
	logger   *slog.Logger
	store    *store
	hub      *Hub
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	router   chi.Router

	mu       sync.RWMutex
	sessions map[string]string
}

type userKey struct{}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Envelope == "" {
		opts.Envelope = EnvelopeResult
	}
	if opts.Users == nil {
		opts.Users = map[string]string{"alice": "password", "bob": "password"}
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		store:    newStore(),
		hub:      NewHub(opts.Logger, opts.PingInterval),
		registry: opts.Registry,
		sessions: make(map[string]string),
	}
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "devserver",
		Name:      "requests_total",
		Help:      "Requests served by the development backend.",
	}, []string{"route", "method", "status"})
	s.registry.MustRegister(s.requests)
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "agora",
		Subsystem: "devserver",
		Name:      "event_clients",
		Help:      "Connected change-event clients.",
	}, func() float64 { return float64(s.hub.ClientCount()) }))

	if opts.Seed {
		s.store.seed()
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Post("/auth/login", s.handleLogin)
	r.Get("/login", s.handleLoginPage)
	r.Get("/events", s.hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Public reads.
	r.Get("/posts", s.handleListPosts)
	r.Get("/posts/{id}", s.handleGetPost)
	r.Get("/posts/{id}/comments", s.handleListComments)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Get("/posts/me", s.handleListMyPosts)
		r.Get("/likes", s.handleListLikes)

		r.Post("/posts/{id}/likes", s.handleLike(true))
		r.Delete("/posts/{id}/likes", s.handleLike(false))
		r.Patch("/posts/{id}", s.handleEditPost)
		r.Delete("/posts/{id}", s.handleDeletePost)

		r.Post("/posts/{id}/comments", s.handleCreateComment)
		r.Patch("/posts/{id}/comments/{commentId}", s.handleEditComment)
		r.Delete("/posts/{id}/comments/{commentId}", s.handleDeleteComment)

		r.Post("/posts/{id}/reports", s.handleReportPost)
		r.Post("/posts/{id}/comments/{commentId}/reports", s.handleReportComment)
	})
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the change-event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Registry returns the metrics registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// AddPost creates a post written by writer.
func (s *Server) AddPost(writer, title, content string) remote.Post {
	return s.store.addPost(writer, title, content)
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
// ready, if non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if ready != nil {
		ready(ln.Addr())
	}
	s.logger.Info("devserver listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		s.logger.Debug("devserver request", "method", r.Method, "route", route, "status", status)
	})
}

// Sessions

func (s *Server) userOf(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[c.Value]
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := s.userOf(r)
		if user == "" {
			if s.opts.Anonymous == AnonymousRedirect {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			s.fail(w, http.StatusUnauthorized, "AUTH401", "Login is required.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func currentUser(r *http.Request) string {
	user, _ := r.Context().Value(userKey{}).(string)
	return user
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds remote.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		s.fail(w, http.StatusBadRequest, "COMMON400", "Malformed request body.")
		return
	}
	if pw, ok := s.opts.Users[creds.Username]; !ok || pw != creds.Password {
		s.fail(w, http.StatusUnauthorized, "AUTH401", "Invalid username or password.")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = creds.Username
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.ok(w, http.StatusOK, map[string]string{"username": creds.Username})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!doctype html><title>Sign in</title><form method=post action=/auth/login></form>"))
}

// Envelopes

func (s *Server) ok(w http.ResponseWriter, status int, payload any) {
	body := map[string]any{
		"isSuccess": true,
		"code":      "COMMON200",
		"message":   "OK",
	}
	if payload != nil {
		body[string(s.opts.Envelope)] = payload
	}
	writeJSON(w, status, body)
}

func (s *Server) fail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"isSuccess": false,
		"code":      code,
		"message":   message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) publish(t livefeed.EventType, postID, commentID int) {
	s.hub.Publish(livefeed.Event{Type: t, PostID: postID, CommentID: commentID, At: time.Now()})
}
