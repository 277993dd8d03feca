package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tasktracker/tasks-api/internal/audit"
	"tasktracker/tasks-api/internal/auth"
	"tasktracker/tasks-api/internal/migrations"
	"tasktracker/tasks-api/internal/password"
	"tasktracker/tasks-api/internal/tasks"
)

type recordedEvents struct {
	events []audit.Event
}

func (r *recordedEvents) Record(e audit.Event) { r.events = append(r.events, e) }

func (r *recordedEvents) find(action, outcome string) (audit.Event, bool) {
	for _, e := range r.events {
		if e.Action == action && e.Outcome == outcome {
			return e, true
		}
	}
	return audit.Event{}, false
}

type fakeImages struct {
	gotData []byte
}

func (f *fakeImages) PutTaskImage(_ context.Context, taskID string, data []byte) (string, error) {
	f.gotData = data
	return "https://cdn.example.com/task-images/" + taskID + ".png", nil
}

type fakeMigrations struct {
	report migrations.Report
}

func (f fakeMigrations) Status(context.Context) (migrations.Report, error) { return f.report, nil }

type testServer struct {
	handler http.Handler
	auth    *auth.Service
	audit   *recordedEvents
	images  *fakeImages
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2() error: %v", err)
	}
	users := auth.NewInMemoryUserStore()
	manager, err := auth.NewSessionManager(auth.NewInMemorySessionStore(), users, auth.SessionManagerConfig{})
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}
	authSvc, err := auth.NewService(users, auth.ServiceConfig{Sessions: manager, Hasher: hasher})
	if err != nil {
		t.Fatalf("auth.NewService() error: %v", err)
	}
	images := &fakeImages{}
	taskSvc, err := tasks.NewService(tasks.NewInMemoryStore(), tasks.ServiceConfig{Users: authSvc, Images: images})
	if err != nil {
		t.Fatalf("tasks.NewService() error: %v", err)
	}
	if _, _, err := authSvc.EnsureAdmin(context.Background(), "root", "rootpass1"); err != nil {
		t.Fatalf("EnsureAdmin() error: %v", err)
	}

	events := &recordedEvents{}
	deps := Deps{Auth: authSvc, Tasks: taskSvc, Audit: events, Version: "test"}
	if mutate != nil {
		mutate(&deps)
	}
	handler, err := protect(NewHandler(deps), nil)
	if err != nil {
		t.Fatalf("protect() error: %v", err)
	}
	return &testServer{
		handler: loggingMiddleware(zerolog.Nop(), handler),
		auth:    authSvc,
		audit:   events,
		images:  images,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, session *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != nil {
		req.AddCookie(session)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.DefaultCookieName {
			return c
		}
	}
	t.Fatalf("expected %s cookie in response", auth.DefaultCookieName)
	return nil
}

func (s *testServer) signup(t *testing.T, username string) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/auth/signup", map[string]string{"username": username, "password": "secret1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup %s: expected 200, got %d (%s)", username, rec.Code, rec.Body.String())
	}
	return sessionCookie(t, rec)
}

func (s *testServer) login(t *testing.T, username, pass string) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"username": username, "password": pass}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (%s)", username, rec.Code, rec.Body.String())
	}
	return sessionCookie(t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/healthz", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}
}

func TestInfo(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/v1/info", nil, nil)

	body := decode[map[string]string](t, rec)
	if body["service"] != "tasks-api" || body["version"] != "test" {
		t.Fatalf("unexpected info payload: %+v", body)
	}
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("db down") }
	})
	rec := s.do(t, http.MethodGet, "/readyz", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSignupSetsSessionCookieAndMe(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "/v1/auth/signup", map[string]string{"username": "alice", "password": "secret1", "fullName": "Alice A"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	c := sessionCookie(t, rec)
	if !c.HttpOnly || c.Path != "/" || len(c.Value) != 64 {
		t.Fatalf("unexpected session cookie: %+v", c)
	}
	user := decode[map[string]any](t, rec)
	if user["username"] != "alice" || user["role"] != "user" || user["fullName"] != "Alice A" {
		t.Fatalf("unexpected signup payload: %+v", user)
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatalf("password hash must not be serialized: %+v", user)
	}

	rec = s.do(t, http.MethodGet, "/v1/auth/me", nil, c)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d", rec.Code)
	}
	if me := decode[map[string]any](t, rec); me["username"] != "alice" {
		t.Fatalf("unexpected /me payload: %+v", me)
	}
	if _, ok := s.audit.find("auth.signup", audit.OutcomeSuccess); !ok {
		t.Fatalf("expected signup audit event, got %+v", s.audit.events)
	}
}

func TestSignupConflictAndValidation(t *testing.T) {
	s := newTestServer(t, nil)
	s.signup(t, "alice")

	rec := s.do(t, http.MethodPost, "/v1/auth/signup", map[string]string{"username": "alice", "password": "anything"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/v1/auth/signup", map[string]string{"username": "al", "password": "123"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signup, got %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if len(body.Fields) != 2 {
		t.Fatalf("expected username and password field errors, got %+v", body.Fields)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signup", strings.NewReader("{not json"))
	out := httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	if out.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", out.Code)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, nil)
	s.signup(t, "alice")

	wrong := s.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"username": "alice", "password": "wrongpass"}, nil)
	ghost := s.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"username": "ghost", "password": "x"}, nil)

	if wrong.Code != http.StatusUnauthorized || ghost.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both failures, got %d and %d", wrong.Code, ghost.Code)
	}
	if wrong.Body.String() != ghost.Body.String() {
		t.Fatalf("failure bodies differ: %q vs %q", wrong.Body.String(), ghost.Body.String())
	}
	if len(wrong.Result().Cookies()) != 0 {
		t.Fatalf("failed login must not set a cookie")
	}

	reasons := map[string]string{}
	for _, e := range s.audit.events {
		if e.Action == "auth.login" && e.Outcome == audit.OutcomeFailure {
			reasons[e.Actor] = e.Reason
		}
	}
	if reasons["alice"] != auth.ReasonPasswordMismatch || reasons["ghost"] != auth.ReasonUserNotFound {
		t.Fatalf("expected audit to keep failure reasons, got %+v", reasons)
	}
}

func TestLogoutAlwaysClearsCookie(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.signup(t, "alice")

	rec := s.do(t, http.MethodPost, "/v1/auth/logout", nil, c)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", rec.Code)
	}
	if blank := sessionCookie(t, rec); blank.Value != "" || blank.MaxAge >= 0 {
		t.Fatalf("expected blank cookie, got %+v", blank)
	}
	if body := decode[map[string]bool](t, rec); !body["success"] {
		t.Fatalf("unexpected logout payload: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/v1/auth/me", nil, c)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/v1/auth/logout", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from anonymous logout, got %d", rec.Code)
	}
	if blank := sessionCookie(t, rec); blank.MaxAge >= 0 {
		t.Fatalf("expected anonymous logout to clear cookie, got %+v", blank)
	}
}

func TestProtectedRouteWithoutSession(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/tasks", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("absent cookie must not produce a cookie directive")
	}

	rec = s.do(t, http.MethodGet, "/v1/tasks", nil, &http.Cookie{Name: auth.DefaultCookieName, Value: "garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed cookie, got %d", rec.Code)
	}
	if blank := sessionCookie(t, rec); blank.MaxAge >= 0 {
		t.Fatalf("expected malformed cookie to be cleared, got %+v", blank)
	}
}

func TestTaskOwnership(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.signup(t, "alice")
	bob := s.signup(t, "bob")
	root := s.login(t, "root", "rootpass1")

	rec := s.do(t, http.MethodPost, "/v1/tasks", map[string]string{"title": "write report"}, alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	task := decode[tasks.Task](t, rec)
	if task.Status != tasks.StatusPending || task.Priority != tasks.PriorityMedium {
		t.Fatalf("expected defaults, got %+v", task)
	}

	path := "/v1/tasks/" + task.ID
	if rec := s.do(t, http.MethodGet, path, nil, bob); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bob, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, path, map[string]string{"title": "hijacked"}, bob); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bob update, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, path, nil, bob); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bob delete, got %d", rec.Code)
	}
	if e, ok := s.audit.find("task.delete", audit.OutcomeDenied); !ok || e.Actor != "bob" || e.Target != task.ID {
		t.Fatalf("expected denied delete audit event, got %+v", s.audit.events)
	}

	rec = s.do(t, http.MethodPut, path, map[string]string{"status": "completed"}, root)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin update to succeed, got %d", rec.Code)
	}
	if got := decode[tasks.Task](t, rec); got.Status != tasks.StatusCompleted || got.UserID != task.UserID {
		t.Fatalf("unexpected task after admin update: %+v", got)
	}

	if rec := s.do(t, http.MethodGet, "/v1/tasks/does-not-exist", nil, bob); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing task, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, path, nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected owner delete to succeed, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["message"] == "" {
		t.Fatalf("expected delete message, got %s", rec.Body.String())
	}
}

func TestListTasksScopedAndPaginated(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.signup(t, "alice")
	bob := s.signup(t, "bob")

	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/v1/tasks", map[string]string{"title": "alice task", "priority": "high"}, alice)
	}
	s.do(t, http.MethodPost, "/v1/tasks", map[string]string{"title": "bob task"}, bob)

	rec := s.do(t, http.MethodGet, "/v1/tasks?page=2&limit=2", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	page := decode[tasks.Page](t, rec)
	if len(page.Data) != 1 || page.Pagination.Total != 3 || page.Pagination.TotalPages != 2 || page.Pagination.Page != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	for _, task := range page.Data {
		if task.Title != "alice task" {
			t.Fatalf("alice must only see her own tasks, got %+v", task)
		}
	}

	rec = s.do(t, http.MethodGet, "/v1/tasks?priority=medium", nil, alice)
	if got := decode[tasks.Page](t, rec); got.Pagination.Total != 0 {
		t.Fatalf("expected priority filter to exclude alice's tasks, got %+v", got.Pagination)
	}

	for _, q := range []string{"limit=0", "limit=51", "page=0", "page=9223372036854775807&limit=10", "page=x", "from=yesterday", "status=done"} {
		if rec := s.do(t, http.MethodGet, "/v1/tasks?"+q, nil, alice); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", q, rec.Code)
		}
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.signup(t, "alice")
	s.signup(t, "bob")
	root := s.login(t, "root", "rootpass1")

	if rec := s.do(t, http.MethodGet, "/v1/admin/users", nil, alice); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	if _, ok := s.audit.find("admin.users.list", audit.OutcomeDenied); !ok {
		t.Fatalf("expected denied audit event for admin route")
	}

	rec := s.do(t, http.MethodGet, "/v1/admin/users", nil, root)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	list := decode[struct {
		Items []auth.User `json:"items"`
	}](t, rec)
	if len(list.Items) != 3 {
		t.Fatalf("expected 3 users, got %d", len(list.Items))
	}
	ids := map[string]string{}
	for _, u := range list.Items {
		ids[u.Username] = u.ID
	}

	rec = s.do(t, http.MethodPost, "/v1/admin/users/"+ids["alice"]+"/tasks", map[string]string{"title": "assigned"}, root)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin create, got %d (%s)", rec.Code, rec.Body.String())
	}
	task := decode[tasks.Task](t, rec)
	if task.UserID != ids["alice"] {
		t.Fatalf("expected task owned by alice, got %q", task.UserID)
	}

	rec = s.do(t, http.MethodGet, "/v1/admin/users/"+ids["alice"]+"/tasks", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected user to list own tasks via admin route, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/v1/admin/users/"+ids["bob"]+"/tasks", nil, alice); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 listing someone else's tasks, got %d", rec.Code)
	}

	wrongOwner := "/v1/admin/users/" + ids["bob"] + "/tasks/" + task.ID
	if rec := s.do(t, http.MethodPut, wrongOwner, map[string]string{"title": "x"}, root); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatched owner, got %d", rec.Code)
	}
	rightOwner := "/v1/admin/users/" + ids["alice"] + "/tasks/" + task.ID
	if rec := s.do(t, http.MethodPut, rightOwner, map[string]string{"priority": "high"}, root); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin update, got %d", rec.Code)
	}
}

func TestUploadTaskImage(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.signup(t, "alice")
	bob := s.signup(t, "bob")
	task := decode[tasks.Task](t, s.do(t, http.MethodPost, "/v1/tasks", map[string]string{"title": "with image"}, alice))

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	upload := func(session *http.Cookie) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", "pic.png")
		if err != nil {
			t.Fatalf("CreateFormFile() error: %v", err)
		}
		_, _ = fw.Write(png)
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/v1/tasks/"+task.ID+"/image", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.AddCookie(session)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := upload(bob); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner upload, got %d", rec.Code)
	}

	rec := upload(alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	got := decode[tasks.Task](t, rec)
	if got.ImageURL == nil || !strings.HasSuffix(*got.ImageURL, task.ID+".png") {
		t.Fatalf("expected image url on task, got %+v", got.ImageURL)
	}
	if !bytes.Equal(s.images.gotData, png) {
		t.Fatalf("uploaded bytes were not passed through")
	}

	rec = s.do(t, http.MethodPost, "/v1/tasks/"+task.ID+"/image", map[string]string{"file": "nope"}, alice)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart upload, got %d", rec.Code)
	}
}

func TestMigrationStatus(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.signup(t, "alice")
	root := s.login(t, "root", "rootpass1")

	if rec := s.do(t, http.MethodGet, "/v1/system/migrations/status", nil, alice); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/v1/system/migrations/status", nil, root); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a database, got %d", rec.Code)
	}

	withDB := newTestServer(t, func(d *Deps) {
		d.Migrations = fakeMigrations{report: migrations.Report{CurrentVersion: 3}}
	})
	root = withDB.login(t, "root", "rootpass1")
	rec := withDB.do(t, http.MethodGet, "/v1/system/migrations/status", nil, root)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[migrations.Report](t, rec); got.CurrentVersion != 3 {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestCrossOriginMutationRejected(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"username":"root","password":"rootpass1"}`))
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected cross-origin POST to be rejected, got %d", rec.Code)
	}
}

func TestProtectTrustedOrigin(t *testing.T) {
	h, err := protect(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), []string{"https://app.example.com"})
	if err != nil {
		t.Fatalf("protect() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", nil)
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected trusted origin to pass, got %d", rec.Code)
	}

	if _, err := protect(http.NotFoundHandler(), []string{"not a url"}); err == nil {
		t.Fatalf("expected invalid origin to be rejected")
	}
}

func TestSessionRenewalWritesCookie(t *testing.T) {
	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2() error: %v", err)
	}
	users := auth.NewInMemoryUserStore()
	sessions := auth.NewInMemorySessionStore()
	manager, err := auth.NewSessionManager(sessions, users, auth.SessionManagerConfig{TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}
	authSvc, err := auth.NewService(users, auth.ServiceConfig{Sessions: manager, Hasher: hasher})
	if err != nil {
		t.Fatalf("auth.NewService() error: %v", err)
	}
	res, err := authSvc.Signup(context.Background(), auth.SignupInput{Username: "alice", Password: "secret1"})
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	// Pull expiry forward so more than half the lifetime has elapsed.
	if err := sessions.UpdateExpiry(context.Background(), res.Session.ID, time.Now().Add(20*time.Minute)); err != nil {
		t.Fatalf("UpdateExpiry() error: %v", err)
	}

	h := NewHandler(Deps{Auth: authSvc})
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(res.Cookie.HTTP())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	renewed := sessionCookie(t, rec)
	if renewed.Value != res.Session.ID || renewed.MaxAge != int(time.Hour/time.Second) {
		t.Fatalf("expected renewed cookie for the same session, got %+v", renewed)
	}
}
