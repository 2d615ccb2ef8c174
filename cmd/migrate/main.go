package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kisansahayak/kisan/internal/app/storage"
	"github.com/kisansahayak/kisan/internal/repository/mongo"
	"github.com/kisansahayak/kisan/pkg/config"
	"github.com/kisansahayak/kisan/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	log := logger.New("migrate", slog.LevelInfo)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, config.GetString("DATABASE_URL", ""), *command, *target, log); err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, command string, target int64, log *slog.Logger) error {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	parsed, err := storage.Parse(databaseURL)
	if err != nil {
		return err
	}
	if parsed.Kind == storage.KindMongo {
		if err := ensureMongoIndexes(ctx, parsed.DSN, command); err != nil {
			return fmt.Errorf("mongodb index setup: %w", err)
		}
		log.Info("migration command completed", "command", command, "backend", string(parsed.Kind))
		return nil
	}

	migrator, err := storage.OpenMigrator(ctx, databaseURL, log)
	if err != nil {
		return fmt.Errorf("configure migration runner: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Ping(ctx); err != nil {
		return err
	}

	switch command {
	case "up":
		if err := migrator.Ensure(ctx); err != nil {
			return err
		}
	case "status":
		if _, err := migrator.Status(ctx); err != nil {
			return err
		}
	case "down":
		if err := migrator.Down(ctx, target); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported command %q", command)
	}

	version, err := migrator.Version(ctx)
	if err != nil {
		return err
	}
	log.Info("migration command completed", "command", command, "backend", string(parsed.Kind), "version", version)
	return nil
}

func ensureMongoIndexes(ctx context.Context, uri, command string) error {
	if command != "up" {
		return errors.New("mongodb only supports the up command")
	}
	repo, err := mongo.Connect(ctx, uri, config.GetString("MONGODB_DATABASE", "kisan"))
	if err != nil {
		return err
	}
	defer repo.Close(context.Background())
	return repo.EnsureIndexes(ctx)
}
