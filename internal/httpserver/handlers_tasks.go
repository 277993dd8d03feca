package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tasktracker/tasks-api/internal/apperr"
	"tasktracker/tasks-api/internal/audit"
	"tasktracker/tasks-api/internal/auth"
	"tasktracker/tasks-api/internal/imagestore"
	"tasktracker/tasks-api/internal/tasks"
)

// multipart framing allowance on top of the image itself
const uploadOverhead = 1 << 20

func (h *handler) taskActor(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	if h.deps.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "task service unavailable", nil)
		return auth.User{}, false
	}
	return h.requireUser(w, r)
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.deps.Tasks.List(r.Context(), actor, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	var in tasks.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.deps.Tasks.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	t, err := h.deps.Tasks.Get(r.Context(), actor, id)
	if err != nil {
		h.failAudited(w, r, actor, "task.get", id, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) updateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	var in tasks.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.deps.Tasks.Update(r.Context(), actor, id, in)
	if err != nil {
		h.failAudited(w, r, actor, "task.update", id, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := h.deps.Tasks.Delete(r.Context(), actor, id); err != nil {
		h.failAudited(w, r, actor, "task.delete", id, err)
		return
	}
	h.record(r, audit.Event{Actor: actor.Username, Action: "task.delete", Target: id, Outcome: audit.OutcomeSuccess})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func (h *handler) uploadTaskImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	data, err := readUpload(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.deps.Tasks.AttachImage(r.Context(), actor, id, data)
	if err != nil {
		h.failAudited(w, r, actor, "task.image", id, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// readUpload returns the multipart "file" part. Oversized bodies are read
// one byte past the limit so the size check downstream rejects them.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, imagestore.MaxImageSize+uploadOverhead)
	if err := r.ParseMultipartForm(imagestore.MaxImageSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation(apperr.FieldError{Field: "file", Message: "must be at most 5 MiB"})
		}
		return nil, apperr.Validation(apperr.FieldError{Field: "file", Message: "must be sent as multipart/form-data"})
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, apperr.Validation(apperr.FieldError{Field: "file", Message: "is required"})
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, imagestore.MaxImageSize+1))
	if err != nil {
		return nil, apperr.Internal("read upload", err)
	}
	return data, nil
}

func (h *handler) listUserTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("userId")
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.deps.Tasks.ListForUser(r.Context(), actor, userID, q)
	if err != nil {
		h.failAudited(w, r, actor, "admin.tasks.list", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) createUserTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("userId")
	var in tasks.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.deps.Tasks.CreateForUser(r.Context(), actor, userID, in)
	if err != nil {
		h.failAudited(w, r, actor, "admin.tasks.create", userID, err)
		return
	}
	h.record(r, audit.Event{Actor: actor.Username, Action: "admin.tasks.create", Target: t.ID, Outcome: audit.OutcomeSuccess})
	writeJSON(w, http.StatusCreated, t)
}

func (h *handler) updateUserTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.taskActor(w, r)
	if !ok {
		return
	}
	userID, taskID := r.PathValue("userId"), r.PathValue("taskId")
	var in tasks.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.deps.Tasks.UpdateForUser(r.Context(), actor, userID, taskID, in)
	if err != nil {
		h.failAudited(w, r, actor, "admin.tasks.update", taskID, err)
		return
	}
	h.record(r, audit.Event{Actor: actor.Username, Action: "admin.tasks.update", Target: t.ID, Outcome: audit.OutcomeSuccess})
	writeJSON(w, http.StatusOK, t)
}

// parseListQuery reads page, limit, status, priority, from and to. Range
// checks beyond "is a positive number" are left to the task service.
func parseListQuery(v url.Values) (tasks.ListQuery, error) {
	var (
		q      tasks.ListQuery
		fields []apperr.FieldError
	)

	if raw := v.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields = append(fields, apperr.FieldError{Field: "page", Message: "must be at least 1"})
		}
		q.Page = n
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields = append(fields, apperr.FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", tasks.MaxLimit)})
		}
		q.Limit = n
	}
	q.Status = tasks.Status(v.Get("status"))
	q.Priority = tasks.Priority(v.Get("priority"))

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: p.name, Message: "must be an RFC 3339 timestamp"})
			continue
		}
		*p.dst = &ts
	}

	if len(fields) > 0 {
		return tasks.ListQuery{}, apperr.Validation(fields...)
	}
	return q, nil
}
