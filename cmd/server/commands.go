package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tasktracker/tasks-api/internal/app"
	"tasktracker/tasks-api/internal/config"
	"tasktracker/tasks-api/internal/observability"
)

type Globals struct {
	Debug   bool
	Version string
}

func setup(globals *Globals) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	log := observability.NewLogger(globals.Debug || cfg.LogDebug)
	return cfg, log, nil
}

type ServeCmd struct{}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, log, err := setup(globals)
	if err != nil {
		return err
	}
	log.Info().Str("version", globals.Version).Str("env", cfg.Env).Msg("starting tasks-api")

	a, err := app.New(ctx, cfg, log, globals.Version)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return a.Run(ctx)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, log, err := setup(globals)
	if err != nil {
		return err
	}
	report, err := app.Migrate(ctx, cfg, log)
	if err != nil {
		return err
	}
	for _, m := range report.Migrations {
		log.Info().Str("name", m.Name).Int64("version", m.Version).Bool("applied", m.Applied).Msg("migration")
	}
	return nil
}
