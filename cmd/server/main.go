package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool             `help:"Enable debug logging (overrides LOG_DEBUG)."`
		Version kong.VersionFlag `help:"Print the version and exit."`

		Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP API (default)."`
		Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit."`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("tasks-api"),
		kong.Description("Multi-tenant task tracker API."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
