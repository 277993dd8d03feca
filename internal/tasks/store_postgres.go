package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tasktracker/tasks-api/internal/dbx"
)

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) (*PGStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PGStore{db: db}, nil
}

const taskColumns = `id, title, description, status, priority, image_url, user_id, created_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var (
		t                Task
		desc, image      sql.NullString
		status, priority string
	)
	if err := row.Scan(&t.ID, &t.Title, &desc, &status, &priority, &image, &t.UserID, &t.CreatedAt); err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	if desc.Valid {
		t.Description = &desc.String
	}
	if image.Valid {
		t.ImageURL = &image.String
	}
	return t, nil
}

// where renders f as a WHERE clause with positional arguments.
func where(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.OwnerID != nil {
		add("user_id = $%d", *f.OwnerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Priority != "" {
		add("priority = $%d", string(f.Priority))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PGStore) FindByID(ctx context.Context, id string) (Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Task{}, ErrNotFound
	}
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTask(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidText(err) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *PGStore) List(ctx context.Context, f ListFilter, p Paging) ([]Task, error) {
	clause, args := where(f)
	q := `SELECT ` + taskColumns + ` FROM tasks` + clause + ` ORDER BY created_at DESC, id DESC`
	if p.Limit > 0 {
		args = append(args, p.Limit, p.Offset)
		q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if dbx.IsInvalidText(err) {
			return []Task{}, nil
		}
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func (s *PGStore) Count(ctx context.Context, f ListFilter) (int, error) {
	clause, args := where(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+clause, args...).Scan(&n); err != nil {
		if dbx.IsInvalidText(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (s *PGStore) Insert(ctx context.Context, t Task) (Task, error) {
	const q = `
INSERT INTO tasks (id, title, description, status, priority, image_url, user_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.db.ExecContext(ctx, q, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.ImageURL, t.UserID, t.CreatedAt); err != nil {
		if dbx.IsForeignKeyViolation(err) || dbx.IsInvalidText(err) {
			return Task{}, ErrOwnerNotFound
		}
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// Update writes the mutable columns. Owner and creation time never change.
func (s *PGStore) Update(ctx context.Context, t Task) (Task, error) {
	q := `
UPDATE tasks
SET title = $2,
	description = $3,
	status = $4,
	priority = $5,
	image_url = $6
WHERE id = $1
RETURNING ` + taskColumns
	updated, err := scanTask(s.db.QueryRowContext(ctx, q, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.ImageURL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidText(err) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return updated, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		if dbx.IsInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read delete affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
