package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joao-fontenele/storefront-checkout/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	path := flag.String("path", "file://migrations", "migrations source URL")
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		logger.Error("usage: migrate [-path url] <up|down|version|force N>")
		os.Exit(1)
	}

	if err := config.Load(); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	m, err := migrate.New(*path, databaseURL)
	if err != nil {
		logger.Error("failed to create migrate instance", "error", err)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	switch command := args[0]; command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no pending migrations")
			return
		}
		if err != nil {
			logger.Error("migration up failed", "error", err)
			os.Exit(1)
		}
		logger.Info("commerce schema is up to date")

	case "down":
		err = m.Steps(-1)
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to rollback")
			return
		}
		if err != nil {
			logger.Error("migration down failed", "error", err)
			os.Exit(1)
		}
		logger.Info("rolled back one migration")

	case "force":
		if len(args) < 2 {
			logger.Error("usage: migrate force <version>")
			os.Exit(1)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			logger.Error("invalid version", "version", args[1], "error", err)
			os.Exit(1)
		}
		if err := m.Force(version); err != nil {
			logger.Error("force failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migration version forced", "version", version)

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return
		}
		if err != nil {
			logger.Error("failed to get version", "error", err)
			os.Exit(1)
		}
		logger.Info("current migration version", "version", version, "dirty", dirty)

	default:
		logger.Error("unknown command", "command", command)
		os.Exit(1)
	}
}
