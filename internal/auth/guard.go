package auth

import "tasktracker/tasks-api/internal/apperr"

// CanAccess decides whether actor may act on a resource owned by ownerID.
// Admins may access everything; everyone else only what they own.
func CanAccess(actor User, ownerID string) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	return actor.ID != "" && actor.ID == ownerID
}

func RequireAdmin(actor User) error {
	if actor.Role != RoleAdmin {
		return apperr.Forbidden("admin role required")
	}
	return nil
}

// Authorize is CanAccess as an error.
func Authorize(actor User, ownerID string) error {
	if !CanAccess(actor, ownerID) {
		return apperr.Forbidden("access denied")
	}
	return nil
}
