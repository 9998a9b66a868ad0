// Package enforcer снимает премиум с пользователей, у которых закончился
// пробный период, и выключает премиальные функции их магазинов.
package enforcer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/magabrotheeeer/storefront-entitlements/internal/cache"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/entitlement"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/metrics"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// Repository описывает записи, которые выполняет Enforcer.
type Repository interface {
	// UpdateUser частично обновляет запись пользователя.
	UpdateUser(ctx context.Context, userUID string, upd models.UserUpdate) error
	// UpdateStoreFeatures записывает премиальные флаги магазина пользователя.
	UpdateStoreFeatures(ctx context.Context, ownerUID string, features models.StoreFeatures) error
}

// Cache сбрасывает закешированную запись пользователя.
type Cache interface {
	Invalidate(ctx context.Context, key string) error
}

// Notifier сообщает о снятии премиума.
type Notifier interface {
	TrialExpired(ctx context.Context, userUID string) error
}

// Enforcer приводит хранимое состояние в соответствие с истёкшим пробным периодом.
type Enforcer struct {
	repo     Repository
	cache    Cache
	notifier Notifier
	eval     *entitlement.Evaluator
	log      *slog.Logger

	retryInitial    time.Duration
	retryMaxElapsed time.Duration
	retryAttempts   uint64
}

type Option func(*Enforcer)

func WithCache(c Cache) Option {
	return func(e *Enforcer) { e.cache = c }
}

func WithNotifier(n Notifier) Option {
	return func(e *Enforcer) { e.notifier = n }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.eval = entitlement.NewEvaluator(now) }
}

// WithStoreRetry настраивает повтор записи флагов магазина.
func WithStoreRetry(initial, maxElapsed time.Duration, attempts uint64) Option {
	return func(e *Enforcer) {
		if initial > 0 {
			e.retryInitial = initial
		}
		if maxElapsed > 0 {
			e.retryMaxElapsed = maxElapsed
		}
		e.retryAttempts = attempts
	}
}

// New создает Enforcer.
func New(repo Repository, log *slog.Logger, opts ...Option) *Enforcer {
	e := &Enforcer{
		repo:            repo,
		eval:            entitlement.NewEvaluator(nil),
		log:             log,
		retryInitial:    200 * time.Millisecond,
		retryMaxElapsed: 10 * time.Second,
		retryAttempts:   3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enforce снимает премиум с пользователя, если его пробный период истёк,
// а флаг is_premium ещё выставлен. Обе записи выполняются всегда, даже
// если первая завершилась ошибкой; ошибки объединяются.
// Возвращает true, если записи выполнялись.
func (e *Enforcer) Enforce(ctx context.Context, user *models.User) (bool, error) {
	const op = "enforcer.Enforce"
	if !e.eval.NeedsEnforcement(user) {
		return false, nil
	}

	log := e.log.With(slog.String("op", op), sl.UserUID(user.UUID))
	log.Info("trial expired, revoking premium")

	var errs []error
	userErr := e.repo.UpdateUser(ctx, user.UUID, models.UserUpdate{IsPremium: models.Bool(false)})
	if userErr != nil {
		log.Error("failed to downgrade user", sl.Err(userErr))
		errs = append(errs, userErr)
	}
	if storeErr := e.disableStoreFeatures(ctx, log, user.UUID); storeErr != nil {
		log.Error("store features left enabled", sl.Err(storeErr))
		errs = append(errs, storeErr)
	}

	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, cache.UserKey(user.UUID)); err != nil {
			log.Warn("failed to invalidate cached user", sl.Err(err))
		}
	}

	switch {
	case userErr != nil:
		metrics.EnforcementsTotal.WithLabelValues(metrics.OutcomeUserWriteFailed).Inc()
	case len(errs) > 0:
		metrics.EnforcementsTotal.WithLabelValues(metrics.OutcomeStoreWriteFailed).Inc()
	default:
		metrics.EnforcementsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	}

	if userErr == nil && e.notifier != nil {
		if err := e.notifier.TrialExpired(ctx, user.UUID); err != nil {
			log.Warn("failed to publish trial expiration", sl.Err(err))
		}
	}

	if len(errs) > 0 {
		return true, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	log.Info("premium revoked")
	return true, nil
}

// RepairStore повторно выключает премиальные флаги магазина пользователя,
// премиум которого уже снят. Нужен, когда при Enforce запись магазина
// не удалась после всех повторов.
func (e *Enforcer) RepairStore(ctx context.Context, userUID string) error {
	const op = "enforcer.RepairStore"
	log := e.log.With(slog.String("op", op), sl.UserUID(userUID))

	if err := e.disableStoreFeatures(ctx, log, userUID); err != nil {
		metrics.StoreRepairs.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.StoreRepairs.WithLabelValues(metrics.OutcomeOK).Inc()
	log.Info("store features disabled")
	return nil
}

func (e *Enforcer) disableStoreFeatures(ctx context.Context, log *slog.Logger, userUID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInitial
	b.MaxElapsedTime = e.retryMaxElapsed

	write := func() error {
		err := e.repo.UpdateStoreFeatures(ctx, userUID, models.DisabledStoreFeatures())
		if errors.Is(err, models.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.StoreWriteRetries.Inc()
		log.Warn("store feature write failed, retrying", sl.Err(err), slog.Duration("next", next))
	}

	return backoff.RetryNotify(write, backoff.WithContext(backoff.WithMaxRetries(b, e.retryAttempts), ctx), notify)
}

// Watch применяет Enforce к каждому снимку из потока, пока поток не закрыт
// или не отменён ctx. Ошибки записываются в лог и не прерывают цикл.
func (e *Enforcer) Watch(ctx context.Context, snapshots <-chan models.UserSnapshot) {
	const op = "enforcer.Watch"
	log := e.log.With(slog.String("op", op))

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				log.Info("user feed closed")
				return
			}
			if snap.User == nil {
				continue
			}
			if _, err := e.Enforce(ctx, snap.User); err != nil {
				log.Error("enforcement failed", sl.UserUID(snap.UserUID), sl.Err(err))
			}
		}
	}
}
