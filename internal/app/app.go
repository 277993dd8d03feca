package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tasktracker/tasks-api/internal/audit"
	"tasktracker/tasks-api/internal/auth"
	"tasktracker/tasks-api/internal/config"
	"tasktracker/tasks-api/internal/dbx"
	"tasktracker/tasks-api/internal/httpserver"
	"tasktracker/tasks-api/internal/imagestore"
	"tasktracker/tasks-api/internal/migrations"
	"tasktracker/tasks-api/internal/password"
	"tasktracker/tasks-api/internal/tasks"
)

const redisKeyPrefix = "tt"

type App struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *sql.DB
	rdb      *redis.Client
	audit    *audit.Logger
	sessions *auth.SessionManager
	server   *httpserver.Server
}

type stores struct {
	users    auth.UserStore
	sessions auth.SessionStore
	tasks    tasks.Store
}

func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, version string) (*App, error) {
	a := &App{cfg: cfg, log: logger}
	if err := a.init(ctx, version); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, version string) error {
	cfg := a.cfg

	var migrationService httpserver.MigrationService
	if cfg.Database.URL != "" {
		db, err := dbx.Open(ctx, cfg.Database.URL, cfg.Database.ConnectWait)
		if err != nil {
			return err
		}
		a.db = db

		m, err := migrations.NewService(db)
		if err != nil {
			return fmt.Errorf("create migration service: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := m.Up(ctx); err != nil {
				return err
			}
			a.log.Info().Msg("database migrations applied")
		}
		migrationService = m
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.rdb = redis.NewClient(opts)
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	st, err := a.openStores()
	if err != nil {
		return err
	}

	hasherCfg := password.DefaultConfig()
	hasherCfg.Memory = cfg.Argon2.MemoryKiB
	hasherCfg.Time = cfg.Argon2.Time
	hasherCfg.Parallelism = cfg.Argon2.Parallelism
	hasher, err := password.NewArgon2(hasherCfg)
	if err != nil {
		return fmt.Errorf("create password hasher: %w", err)
	}

	a.sessions, err = auth.NewSessionManager(st.sessions, st.users, auth.SessionManagerConfig{
		TTL:        cfg.Auth.SessionTTL,
		CookieName: cfg.Auth.CookieName,
		Secure:     cfg.Production(),
	})
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}
	authService, err := auth.NewService(st.users, auth.ServiceConfig{Sessions: a.sessions, Hasher: hasher})
	if err != nil {
		return fmt.Errorf("create auth service: %w", err)
	}

	if cfg.Auth.BootstrapUsername != "" {
		admin, created, err := authService.EnsureAdmin(ctx, cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			a.log.Info().Str("username", admin.Username).Msg("bootstrap admin created")
		}
	}

	var images tasks.Images
	if cfg.S3.Bucket != "" {
		store, err := imagestore.New(ctx, imagestore.Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("create image store: %w", err)
		}
		images = store
	} else {
		a.log.Warn().Msg("S3_BUCKET not set, task image upload disabled")
	}

	taskService, err := tasks.NewService(st.tasks, tasks.ServiceConfig{Users: authService, Images: images})
	if err != nil {
		return fmt.Errorf("create task service: %w", err)
	}

	a.audit, err = audit.NewLogger(cfg.AuditLogFile)
	if err != nil {
		return err
	}

	deps := httpserver.Deps{
		Auth:       authService,
		Tasks:      taskService,
		Migrations: migrationService,
		Audit:      a.audit,
		CookieName: cfg.Auth.CookieName,
		Ready:      a.ready,
		Version:    version,
	}
	a.server, err = httpserver.New(cfg.HTTP, a.log, cfg.CSRF.TrustedOrigins, deps)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}
	return nil
}

// openStores picks Postgres when a database is configured and the local
// file/memory stores otherwise. Redis, when configured, always holds sessions.
func (a *App) openStores() (stores, error) {
	var st stores
	var err error

	if a.db != nil {
		if st.users, err = auth.NewPostgresUserStore(a.db); err != nil {
			return stores{}, fmt.Errorf("create postgres user store: %w", err)
		}
		if st.sessions, err = auth.NewPostgresSessionStore(a.db); err != nil {
			return stores{}, fmt.Errorf("create postgres session store: %w", err)
		}
		if st.tasks, err = tasks.NewPGStore(a.db); err != nil {
			return stores{}, fmt.Errorf("create postgres task store: %w", err)
		}
	} else {
		if st.users, err = auth.NewFileUserStore(a.cfg.Auth.UserStateFile); err != nil {
			return stores{}, fmt.Errorf("create user store: %w", err)
		}
		st.sessions = auth.NewInMemorySessionStore()
		st.tasks = tasks.NewInMemoryStore()
		a.log.Warn().Str("user_state_file", a.cfg.Auth.UserStateFile).Msg("DATABASE_URL not set, tasks and sessions are kept in memory")
	}

	if a.rdb != nil {
		if st.sessions, err = auth.NewRedisSessionStore(a.rdb, redisKeyPrefix); err != nil {
			return stores{}, fmt.Errorf("create redis session store: %w", err)
		}
	}
	return st, nil
}

func (a *App) ready(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go a.cleanupLoop(cleanupCtx)

	errCh := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.cfg.HTTP.Addr).Msg("http server starting")
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Auth.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cleanupSessions(ctx)
		}
	}
}

func (a *App) cleanupSessions(ctx context.Context) {
	n, err := a.sessions.DeleteExpired(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("expired session cleanup failed")
		return
	}
	if n > 0 {
		a.log.Info().Int("deleted", n).Msg("expired sessions removed")
	}
}

func (a *App) close() {
	if a.audit != nil {
		_ = a.audit.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// Migrate applies pending migrations and reports the resulting schema
// version. It needs DATABASE_URL.
func Migrate(ctx context.Context, cfg config.Config, logger zerolog.Logger) (migrations.Report, error) {
	if cfg.Database.URL == "" {
		return migrations.Report{}, fmt.Errorf("DATABASE_URL is required to migrate")
	}
	db, err := dbx.Open(ctx, cfg.Database.URL, cfg.Database.ConnectWait)
	if err != nil {
		return migrations.Report{}, err
	}
	defer db.Close()

	m, err := migrations.NewService(db)
	if err != nil {
		return migrations.Report{}, err
	}
	if err := m.Up(ctx); err != nil {
		return migrations.Report{}, err
	}
	report, err := m.Status(ctx)
	if err != nil {
		return migrations.Report{}, err
	}
	logger.Info().Int64("version", report.CurrentVersion).Msg("database migrated")
	return report, nil
}
