// Package main содержит разовую команду миграции премиум-статусов.
//
// Без аргументов мигрирует всех пользователей, с флагом -user только одного.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/storefront-entitlements/internal/cache"
	"github.com/magabrotheeeer/storefront-entitlements/internal/config"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
	"github.com/magabrotheeeer/storefront-entitlements/internal/services/migrator"
	"github.com/magabrotheeeer/storefront-entitlements/internal/storage/repository"
)

func main() {
	userUID := flag.String("user", "", "migrate a single user by uid")
	flag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting premium-migrator", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *userUID); err != nil {
		logger.Error("premium migration failed", sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, userUID string) error {
	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	var userCache migrator.Cache
	if cfg.AddressRedis != "" {
		c, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			logger.Warn("cache unavailable, cached users expire by ttl", sl.Err(err))
		} else {
			defer func() {
				_ = c.Close()
			}()
			userCache = c
		}
	}

	m := migrator.New(db, userCache, logger, cfg.Concurrency)

	if userUID != "" {
		migrated, err := m.FixUserPremiumStatus(ctx, userUID)
		if err != nil {
			return err
		}
		logger.Info("user processed", sl.UserUID(userUID), slog.Bool("migrated", migrated))
		return nil
	}

	report, err := m.MigrateAll(ctx)
	if err != nil {
		return err
	}
	for _, f := range report.Failed {
		logger.Warn("user not migrated", sl.UserUID(f.UserUID), slog.String("error", f.Error))
	}
	return reportErr(report)
}

// reportErr превращает частичный сбой миграции в ненулевой код выхода
func reportErr(report *models.MigrationReport) error {
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d users not migrated", len(report.Failed), report.Scanned)
	}
	return nil
}
