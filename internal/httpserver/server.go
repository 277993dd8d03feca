package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"filippo.io/csrf"
	"github.com/rs/zerolog"

	"tasktracker/tasks-api/internal/apperr"
	"tasktracker/tasks-api/internal/audit"
	"tasktracker/tasks-api/internal/auth"
	"tasktracker/tasks-api/internal/config"
	"tasktracker/tasks-api/internal/migrations"
	"tasktracker/tasks-api/internal/tasks"
)

type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (auth.AuthResult, error)
	Login(ctx context.Context, username, password string) (auth.AuthResult, error)
	Logout(ctx context.Context, sessionID string) (auth.Cookie, error)
	ValidateRequest(ctx context.Context, cookieValue string) (auth.Validation, error)
	ListUsers(ctx context.Context, actor auth.User) ([]auth.User, error)
}

type TaskService interface {
	List(ctx context.Context, actor auth.User, q tasks.ListQuery) (tasks.Page, error)
	ListForUser(ctx context.Context, actor auth.User, userID string, q tasks.ListQuery) (tasks.Page, error)
	Get(ctx context.Context, actor auth.User, id string) (tasks.Task, error)
	Create(ctx context.Context, actor auth.User, in tasks.CreateInput) (tasks.Task, error)
	CreateForUser(ctx context.Context, actor auth.User, userID string, in tasks.CreateInput) (tasks.Task, error)
	Update(ctx context.Context, actor auth.User, id string, in tasks.UpdateInput) (tasks.Task, error)
	UpdateForUser(ctx context.Context, actor auth.User, userID, taskID string, in tasks.UpdateInput) (tasks.Task, error)
	Delete(ctx context.Context, actor auth.User, id string) error
	AttachImage(ctx context.Context, actor auth.User, id string, data []byte) (tasks.Task, error)
}

type MigrationService interface {
	Status(ctx context.Context) (migrations.Report, error)
}

type AuditLogger interface {
	Record(e audit.Event)
}

type Deps struct {
	Auth       AuthService
	Tasks      TaskService
	Migrations MigrationService
	Audit      AuditLogger
	// CookieName is the session cookie read on every request.
	CookieName string
	// Ready reports whether backing services answer; nil means always ready.
	Ready   func(ctx context.Context) error
	Version string
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, logger zerolog.Logger, trustedOrigins []string, deps Deps) (*Server, error) {
	handler, err := protect(NewHandler(deps), trustedOrigins)
	if err != nil {
		return nil, err
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      loggingMiddleware(logger, handler),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// protect rejects cross-origin browser requests with unsafe methods. The
// session cookie is the only credential, so every mutating route needs it.
func protect(next http.Handler, trustedOrigins []string) (http.Handler, error) {
	protection := csrf.New()
	for _, origin := range trustedOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("csrf trusted origin %q: %w", origin, err)
		}
	}
	return protection.Handler(next), nil
}

func NewHandler(deps Deps) http.Handler {
	if deps.CookieName == "" {
		deps.CookieName = auth.DefaultCookieName
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	h := &handler{deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", h.readyz)
	mux.HandleFunc("GET /v1/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "tasks-api",
			"version": deps.Version,
		})
	})

	mux.HandleFunc("POST /v1/auth/signup", h.signup)
	mux.HandleFunc("POST /v1/auth/login", h.login)
	mux.HandleFunc("POST /v1/auth/logout", h.logout)
	mux.HandleFunc("GET /v1/auth/me", h.me)

	mux.HandleFunc("GET /v1/tasks", h.listTasks)
	mux.HandleFunc("POST /v1/tasks", h.createTask)
	mux.HandleFunc("GET /v1/tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /v1/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /v1/tasks/{id}", h.deleteTask)
	mux.HandleFunc("POST /v1/tasks/{id}/image", h.uploadTaskImage)

	mux.HandleFunc("GET /v1/admin/users", h.listUsers)
	mux.HandleFunc("GET /v1/admin/users/{userId}/tasks", h.listUserTasks)
	mux.HandleFunc("POST /v1/admin/users/{userId}/tasks", h.createUserTask)
	mux.HandleFunc("PUT /v1/admin/users/{userId}/tasks/{taskId}", h.updateUserTask)

	mux.HandleFunc("GET /v1/system/migrations/status", h.migrationStatus)

	return mux
}

type handler struct {
	deps Deps
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		if err := h.deps.Ready(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requireUser resolves the session cookie. Any cookie directive from the
// validation is written before the response status, including on 401.
func (h *handler) requireUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	if h.deps.Auth == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable", nil)
		return auth.User{}, false
	}

	v, err := h.deps.Auth.ValidateRequest(r.Context(), h.sessionCookie(r))
	if err != nil {
		h.fail(w, r, err)
		return auth.User{}, false
	}
	if v.Cookie != nil {
		http.SetCookie(w, v.Cookie.HTTP())
	}
	if !v.Authenticated() {
		writeError(w, http.StatusUnauthorized, "not authenticated", nil)
		return auth.User{}, false
	}
	return *v.User, true
}

func (h *handler) sessionCookie(r *http.Request) string {
	c, err := r.Cookie(h.deps.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *handler) record(r *http.Request, e audit.Event) {
	if h.deps.Audit == nil {
		return
	}
	e.RequestID = requestIDFromContext(r.Context())
	e.IP = clientIP(r)
	h.deps.Audit.Record(e)
}

// failAudited answers err and records a denied event when the actor was
// refused access to target.
func (h *handler) failAudited(w http.ResponseWriter, r *http.Request, actor auth.User, action, target string, err error) {
	if apperr.Is(err, apperr.KindForbidden) {
		h.record(r, audit.Event{Actor: actor.Username, Action: action, Target: target, Outcome: audit.OutcomeDenied})
	}
	h.fail(w, r, err)
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
