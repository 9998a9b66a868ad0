package enforcer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/metrics"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// ExpiredTrialFinder находит пользователей с истёкшим пробным периодом и невыключенным премиумом,
// а также уже пониженных пользователей, чьи магазины остались с премиальными флагами.
type ExpiredTrialFinder interface {
	FindExpiredPremiumTrials(ctx context.Context, now time.Time) ([]*models.User, error)
	FindStoresPendingDisable(ctx context.Context, now time.Time) ([]string, error)
}

// Sweeper периодически прогоняет через Enforcer пользователей, по которым
// не пришло уведомление об изменении.
type Sweeper struct {
	finder   ExpiredTrialFinder
	enforcer *Enforcer
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(finder ExpiredTrialFinder, enforcer *Enforcer, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		finder:   finder,
		enforcer: enforcer,
		interval: interval,
		log:      log,
	}
}

// Run выполняет проход сразу и затем каждые interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("expired trial sweeper started", slog.Duration("interval", s.interval))
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expired trial sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	enforced, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("expired trial sweep failed", slog.Int("enforced", enforced), sl.Err(err))
	}
	repaired, repairErr := s.RepairStores(ctx)
	if repairErr != nil {
		s.log.Error("store repair pass failed", slog.Int("repaired", repaired), sl.Err(repairErr))
	}
	if err != nil || repairErr != nil {
		metrics.SweepRuns.WithLabelValues(metrics.OutcomeFailed).Inc()
		return
	}
	metrics.SweepRuns.WithLabelValues(metrics.OutcomeOK).Inc()
}

// Sweep выполняет один проход и возвращает число пользователей, для которых
// выполнялись записи. Ошибка по отдельному пользователю не прерывает проход.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	const op = "enforcer.Sweep"

	users, err := s.finder.FindExpiredPremiumTrials(ctx, s.enforcer.eval.Time())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(users) == 0 {
		s.log.Debug("no expired trials found")
		return 0, nil
	}
	s.log.Info("found expired trials", slog.Int("count", len(users)))

	enforced := 0
	for _, u := range users {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return enforced, fmt.Errorf("%s: %w", op, ctxErr)
		}
		ok, enforceErr := s.enforcer.Enforce(ctx, u)
		if ok {
			enforced++
		}
		if enforceErr != nil {
			s.log.Error("failed to enforce expired trial", sl.UserUID(u.UUID), sl.Err(enforceErr))
		}
	}
	return enforced, nil
}

// RepairStores выключает премиальные флаги магазинов у пользователей, премиум
// которых уже снят, а запись магазина при Enforce не удалась. Возвращает число
// исправленных магазинов. Ошибка по отдельному магазину не прерывает проход.
func (s *Sweeper) RepairStores(ctx context.Context) (int, error) {
	const op = "enforcer.RepairStores"

	owners, err := s.finder.FindStoresPendingDisable(ctx, s.enforcer.eval.Time())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(owners) == 0 {
		return 0, nil
	}
	s.log.Warn("found stores left enabled after downgrade", slog.Int("count", len(owners)))

	repaired := 0
	for _, uid := range owners {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return repaired, fmt.Errorf("%s: %w", op, ctxErr)
		}
		if repairErr := s.enforcer.RepairStore(ctx, uid); repairErr != nil {
			s.log.Error("failed to repair store features", sl.UserUID(uid), sl.Err(repairErr))
			continue
		}
		repaired++
	}
	return repaired, nil
}
