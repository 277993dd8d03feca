package httpserver

import (
	"errors"
	"net/http"

	"tasktracker/tasks-api/internal/apperr"
	"tasktracker/tasks-api/internal/audit"
	"tasktracker/tasks-api/internal/auth"
)

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Auth == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable", nil)
		return
	}

	var req auth.SignupInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.deps.Auth.Signup(r.Context(), req)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			h.record(r, audit.Event{Actor: req.Username, Action: "auth.signup", Outcome: audit.OutcomeFailure, Reason: "username_taken"})
		}
		h.fail(w, r, err)
		return
	}
	h.record(r, audit.Event{Actor: res.User.Username, Action: "auth.signup", Target: res.User.ID, Outcome: audit.OutcomeSuccess})

	http.SetCookie(w, res.Cookie.HTTP())
	writeJSON(w, http.StatusOK, res.User)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if h.deps.Auth == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable", nil)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.deps.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		var lf *auth.LoginFailure
		if errors.As(err, &lf) {
			h.record(r, audit.Event{Actor: lf.Username, Action: "auth.login", Outcome: audit.OutcomeFailure, Reason: lf.Reason})
		}
		h.fail(w, r, err)
		return
	}
	h.record(r, audit.Event{Actor: res.User.Username, Action: "auth.login", Target: res.User.ID, Outcome: audit.OutcomeSuccess})

	http.SetCookie(w, res.Cookie.HTTP())
	writeJSON(w, http.StatusOK, res.User)
}

// logout always clears the client cookie, even when the session could not
// be resolved.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if h.deps.Auth == nil {
		writeError(w, http.StatusServiceUnavailable, "auth service unavailable", nil)
		return
	}

	cookie, err := h.deps.Auth.Logout(r.Context(), h.sessionCookie(r))
	http.SetCookie(w, cookie.HTTP())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	users, err := h.deps.Auth.ListUsers(r.Context(), actor)
	if err != nil {
		h.failAudited(w, r, actor, "admin.users.list", "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (h *handler) migrationStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := auth.RequireAdmin(actor); err != nil {
		h.failAudited(w, r, actor, "migration.status", "", err)
		return
	}
	if h.deps.Migrations == nil {
		writeError(w, http.StatusServiceUnavailable, "migrations require a database", nil)
		return
	}

	report, err := h.deps.Migrations.Status(r.Context())
	if err != nil {
		h.fail(w, r, apperr.Internal("migration status", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
