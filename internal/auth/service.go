package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"tasktracker/tasks-api/internal/apperr"
)

// ErrInvalidCredentials is the only login failure a caller ever sees.
var ErrInvalidCredentials = apperr.Unauthenticated("invalid username or password")

const (
	minUsernameLength = 3
	maxUsernameLength = 255
	minPasswordLength = 6
	maxPasswordLength = 255
	maxFullNameLength = 255

	dummyPassword = "timing-equalizer"
)

// Login failure reasons, kept for audit only.
const (
	ReasonUserNotFound     = "user_not_found"
	ReasonPasswordMismatch = "password_mismatch"
)

// LoginFailure records why a login was refused. It unwraps to
// ErrInvalidCredentials so the reason never leaks past the audit log.
type LoginFailure struct {
	Username string
	Reason   string
}

func (f *LoginFailure) Error() string { return ErrInvalidCredentials.Error() }

func (f *LoginFailure) Unwrap() error { return ErrInvalidCredentials }

type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(encoded, plaintext string) (bool, error)
}

type ServiceConfig struct {
	Sessions *SessionManager
	Hasher   Hasher
}

// Service implements the credential flows on top of a UserStore and a
// SessionManager.
type Service struct {
	users    UserStore
	sessions *SessionManager
	hasher   Hasher

	// dummyHash is verified against when a login names an unknown user so
	// both failure paths pay for one hash.
	dummyHash string

	nowFunc   func() time.Time
	newUserID func() string
}

func NewService(userStore UserStore, cfg ServiceConfig) (*Service, error) {
	if userStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	dummy, err := cfg.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &Service{
		users:     userStore,
		sessions:  cfg.Sessions,
		hasher:    cfg.Hasher,
		dummyHash: dummy,
		nowFunc:   time.Now,
		newUserID: uuid.NewString,
	}, nil
}

func (s *Service) Sessions() *SessionManager { return s.sessions }

type SignupInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (in SignupInput) validate() error {
	var fields []apperr.FieldError
	if n := utf8.RuneCountInString(in.Username); n < minUsernameLength || n > maxUsernameLength {
		fields = append(fields, apperr.FieldError{
			Field:   "username",
			Message: fmt.Sprintf("must be between %d and %d characters", minUsernameLength, maxUsernameLength),
		})
	}
	if n := utf8.RuneCountInString(in.Password); n < minPasswordLength || n > maxPasswordLength {
		fields = append(fields, apperr.FieldError{
			Field:   "password",
			Message: fmt.Sprintf("must be between %d and %d characters", minPasswordLength, maxPasswordLength),
		})
	}
	if utf8.RuneCountInString(in.FullName) > maxFullNameLength {
		fields = append(fields, apperr.FieldError{
			Field:   "fullName",
			Message: fmt.Sprintf("must be at most %d characters", maxFullNameLength),
		})
	}
	if len(fields) > 0 {
		return apperr.Validation(fields...)
	}
	return nil
}

// Signup registers a user with role "user" and logs them in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (AuthResult, error) {
	if err := in.validate(); err != nil {
		return AuthResult{}, err
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fullName = in.Username
	}

	user, err := s.createUser(ctx, in.Username, in.Password, fullName, RoleUser)
	if err != nil {
		return AuthResult{}, err
	}
	return s.startSession(ctx, user)
}

func (s *Service) createUser(ctx context.Context, username, password, fullName string, role Role) (User, error) {
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return User{}, apperr.Conflict("username already exists")
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, apperr.Internal("look up user", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, apperr.Internal("hash password", err)
	}

	user, err := s.users.Insert(ctx, User{
		ID:           s.newUserID(),
		Username:     username,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         role,
		CreatedAt:    s.nowFunc().UTC(),
	})
	if err != nil {
		// Lost a race with a concurrent signup for the same name.
		if errors.Is(err, ErrUserExists) {
			return User{}, apperr.Conflict("username already exists")
		}
		return User{}, apperr.Internal("insert user", err)
	}
	return user, nil
}

// Login checks the credentials and opens a session. Unknown users and wrong
// passwords fail identically with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (AuthResult, error) {
	if username == "" || password == "" {
		return AuthResult{}, apperr.Validation(requiredFields(username, password)...)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, apperr.Internal("look up user", err)
		}
		_, _ = s.hasher.Verify(s.dummyHash, password)
		return AuthResult{}, &LoginFailure{Username: username, Reason: ReasonUserNotFound}
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return AuthResult{}, apperr.Internal("verify password", err)
	}
	if !ok {
		return AuthResult{}, &LoginFailure{Username: username, Reason: ReasonPasswordMismatch}
	}
	return s.startSession(ctx, user)
}

func requiredFields(username, password string) []apperr.FieldError {
	var fields []apperr.FieldError
	if username == "" {
		fields = append(fields, apperr.FieldError{Field: "username", Message: "is required"})
	}
	if password == "" {
		fields = append(fields, apperr.FieldError{Field: "password", Message: "is required"})
	}
	return fields
}

func (s *Service) startSession(ctx context.Context, user User) (AuthResult, error) {
	sess, cookie, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Session: sess, Cookie: cookie}, nil
}

// Logout ends the session behind sessionID if there is one. The returned
// cookie always clears the client's session cookie.
func (s *Service) Logout(ctx context.Context, sessionID string) (Cookie, error) {
	v, err := s.sessions.ValidateSession(ctx, sessionID)
	if err != nil {
		return s.sessions.BlankCookie(), err
	}
	if v.Session != nil {
		if err := s.sessions.InvalidateSession(ctx, v.Session.ID); err != nil {
			return s.sessions.BlankCookie(), err
		}
	}
	return s.sessions.BlankCookie(), nil
}

// ValidateRequest resolves the session cookie of an incoming request.
func (s *Service) ValidateRequest(ctx context.Context, cookieValue string) (Validation, error) {
	return s.sessions.ValidateSession(ctx, cookieValue)
}

func (s *Service) ListUsers(ctx context.Context, actor User) ([]User, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperr.Internal("list users", err)
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, apperr.Internal("load user", err)
	}
	return u, nil
}

// EnsureAdmin creates an admin account named username unless a user with
// that name already exists. It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (User, bool, error) {
	existing, err := s.users.FindByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, false, apperr.Internal("look up admin", err)
	}

	in := SignupInput{Username: username, Password: password}
	if err := in.validate(); err != nil {
		return User{}, false, err
	}
	user, err := s.createUser(ctx, username, password, username, RoleAdmin)
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}
