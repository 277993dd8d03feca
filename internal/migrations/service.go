// Package migrations owns the database schema. The SQL files are embedded in
// the binary and applied with goose.
package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

const dialect = "postgres"

type FileInfo struct {
	Name     string `json:"name"`
	Version  int64  `json:"version"`
	Checksum string `json:"checksum"`
}

type Status struct {
	FileInfo
	Applied bool `json:"applied"`
}

type Report struct {
	CurrentVersion int64    `json:"current_version"`
	Migrations     []Status `json:"migrations"`
}

// Seams for goose, which needs a live database.
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseVersion = goose.GetDBVersionContext
)

type Service struct {
	db   *sql.DB
	fsys fs.FS
}

func NewService(db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return &Service{db: db, fsys: sub}, nil
}

// Up applies every pending migration.
func (s *Service) Up(ctx context.Context) error {
	goose.SetBaseFS(s.fsys)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// List returns the embedded migration files ordered by version.
func (s *Service) List() ([]FileInfo, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := goose.NumericComponent(e.Name())
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		b, err := fs.ReadFile(s.fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(b)
		out = append(out, FileInfo{Name: e.Name(), Version: version, Checksum: hex.EncodeToString(sum[:])})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Status reports the schema version recorded by goose and which embedded
// migrations it covers.
func (s *Service) Status(ctx context.Context) (Report, error) {
	files, err := s.List()
	if err != nil {
		return Report{}, err
	}
	if err := goose.SetDialect(dialect); err != nil {
		return Report{}, fmt.Errorf("set goose dialect: %w", err)
	}
	current, err := gooseVersion(ctx, s.db)
	if err != nil {
		return Report{}, fmt.Errorf("read schema version: %w", err)
	}

	out := make([]Status, 0, len(files))
	for _, f := range files {
		out = append(out, Status{FileInfo: f, Applied: f.Version <= current})
	}
	return Report{CurrentVersion: current, Migrations: out}, nil
}
