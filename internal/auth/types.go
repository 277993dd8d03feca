package auth

import (
	"net/http"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is the server-side record behind a session cookie. Fresh is only
// set on a session returned by a validation that just extended it.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Fresh     bool      `json:"-"`
}

// Cookie is an instruction for the transport layer to set (or clear) the
// session cookie. The auth package never touches response headers itself.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	Expires  time.Time
	MaxAge   int
}

func (c Cookie) HTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		HttpOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		Expires:  c.Expires,
		MaxAge:   c.MaxAge,
	}
}

// Validation is the outcome of resolving a session cookie. User and Session
// are both nil when the request is unauthenticated. Cookie is non-nil only
// when the caller must write it: a renewed session cookie or a blank one.
type Validation struct {
	User    *User
	Session *Session
	Cookie  *Cookie
}

func (v Validation) Authenticated() bool {
	return v.User != nil && v.Session != nil
}

// AuthResult is returned by flows that log a user in.
type AuthResult struct {
	User    User
	Session Session
	Cookie  Cookie
}
