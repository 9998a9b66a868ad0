// Package main содержит точку входа для сервиса прав доступа витрины.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/storefront-entitlements/internal/app/entitlements"
	"github.com/magabrotheeeer/storefront-entitlements/internal/config"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
)

// @title Storefront Entitlements API
// @version 1.0
// @description Права доступа владельцев магазинов: пробный период, премиум и административные действия.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting entitlements service", slog.String("env", cfg.Env))
	logger.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := entitlements.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize entitlements app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("entitlements app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("entitlements app stopped gracefully")
}
