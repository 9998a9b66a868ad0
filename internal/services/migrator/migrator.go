// Package migrator восстанавливает маркер бессрочного премиума у пользователей,
// получивших is_premium до появления поля is_premium_admin_set.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/storefront-entitlements/internal/cache"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/entitlement"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/metrics"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// Repository описывает чтение и запись пользователей для миграции.
type Repository interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	// BackfillPremiumAdminSet выполняет запись, только если на момент записи
	// пользователь всё ещё подходит под правило. false означает, что запись не изменена.
	BackfillPremiumAdminSet(ctx context.Context, userUID string) (bool, error)
}

// Cache сбрасывает закешированную запись пользователя.
type Cache interface {
	Invalidate(ctx context.Context, key string) error
}

// Migrator выполняет пакетную и точечную миграцию премиальных флагов.
type Migrator struct {
	repo        Repository
	cache       Cache
	log         *slog.Logger
	concurrency int
}

// New создает Migrator. concurrency ограничивает число одновременных записей.
func New(repo Repository, cache Cache, log *slog.Logger, concurrency int) *Migrator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Migrator{
		repo:        repo,
		cache:       cache,
		log:         log,
		concurrency: concurrency,
	}
}

// MigrateAll проходит по всем пользователям. Ошибка записи отдельного
// пользователя попадает в отчёт и не прерывает проход; ошибка чтения
// списка или отмена ctx возвращаются вместе с частичным отчётом.
// Пользователи, изменённые после чтения списка, учитываются как пропущенные.
func (m *Migrator) MigrateAll(ctx context.Context) (*models.MigrationReport, error) {
	const op = "migrator.MigrateAll"
	log := m.log.With(slog.String("op", op))
	log.Warn("backfill treats legacy is_premium without admin marker as a permanent grant; confirm with product before running")

	users, err := m.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	report := &models.MigrationReport{Scanned: len(users)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, u := range users {
		if !entitlement.NeedsPremiumBackfill(u) {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			migrated, err := m.apply(gctx, u.UUID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				metrics.MigratedUsersTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
				log.Error("failed to migrate user", sl.UserUID(u.UUID), sl.Err(err))
				report.Failed = append(report.Failed, models.MigrationFailure{UserUID: u.UUID, Error: err.Error()})
			case migrated:
				metrics.MigratedUsersTotal.WithLabelValues(metrics.OutcomeMigrated).Inc()
				report.Migrated++
			default:
				metrics.MigratedUsersTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
				log.Info("user changed since scan, skipped", sl.UserUID(u.UUID))
				report.Skipped++
			}
			return nil
		})
	}
	// горутины не возвращают ошибок, итог определяет ctx
	_ = g.Wait()

	log.Info("premium migration finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("migrated", report.Migrated),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", len(report.Failed)),
	)
	if err = ctx.Err(); err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}
	return report, nil
}

// FixUserPremiumStatus применяет то же правило к одному пользователю.
// Возвращает true, если запись была изменена.
func (m *Migrator) FixUserPremiumStatus(ctx context.Context, userUID string) (bool, error) {
	const op = "migrator.FixUserPremiumStatus"

	u, err := m.repo.GetUser(ctx, userUID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !entitlement.NeedsPremiumBackfill(u) {
		m.log.Info("user premium status needs no fix", slog.String("op", op), sl.UserUID(userUID))
		return false, nil
	}
	migrated, err := m.apply(ctx, userUID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !migrated {
		m.log.Info("user changed since read, skipped", slog.String("op", op), sl.UserUID(userUID))
		return false, nil
	}
	m.log.Info("user premium status fixed", slog.String("op", op), sl.UserUID(userUID))
	return true, nil
}

func (m *Migrator) apply(ctx context.Context, userUID string) (bool, error) {
	migrated, err := m.repo.BackfillPremiumAdminSet(ctx, userUID)
	if err != nil || !migrated {
		return false, err
	}
	if m.cache != nil {
		if err = m.cache.Invalidate(ctx, cache.UserKey(userUID)); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn("failed to invalidate cached user", sl.UserUID(userUID), sl.Err(err))
		}
	}
	return true, nil
}
