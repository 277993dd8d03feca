package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresSessionStore keeps one row per session. The user_id foreign key
// cascades, so deleting a user drops their sessions.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) (*PostgresSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresSessionStore{db: db}, nil
}

func (s *PostgresSessionStore) Find(ctx context.Context, id string) (Session, error) {
	const q = `SELECT id, user_id, expires_at FROM sessions WHERE id = $1`

	var sess Session
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

func (s *PostgresSessionStore) Insert(ctx context.Context, session Session) error {
	const q = `INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, q, session.ID, session.UserID, session.ExpiresAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	const q = `UPDATE sessions SET expires_at = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, expiresAt)
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read update affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM sessions WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	const q = `DELETE FROM sessions WHERE user_id = $1`
	return s.execCount(ctx, "delete user sessions", q, userID)
}

func (s *PostgresSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	const q = `DELETE FROM sessions WHERE expires_at <= $1`
	return s.execCount(ctx, "delete expired sessions", q, now)
}

func (s *PostgresSessionStore) execCount(ctx context.Context, op, q string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: read affected rows: %w", op, err)
	}
	return int(n), nil
}
