// Package account содержит административные действия над пользователями
// и чтение вычисленных прав с кешированием.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/storefront-entitlements/internal/cache"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/entitlement"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/metrics"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// UserRepository определяет методы для работы с пользователями в хранилище.
type UserRepository interface {
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	// GetUserByEmail возвращает пользователя по адресу почты.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// ListUsers возвращает всех пользователей, новые первыми.
	ListUsers(ctx context.Context) ([]*models.User, error)
	// UpdateUser частично обновляет пользователя.
	UpdateUser(ctx context.Context, userUID string, upd models.UserUpdate) error
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

// EventPublisher сообщает об изменении записи пользователя.
type EventPublisher interface {
	UserChanged(ctx context.Context, userUID string) error
}

// Enforcer снимает премиум после окончания пробного периода.
type Enforcer interface {
	Enforce(ctx context.Context, user *models.User) (bool, error)
}

// Service реализует административные действия и чтение прав пользователя.
type Service struct {
	repo     UserRepository
	cache    Cache
	events   EventPublisher
	enforcer Enforcer
	eval     *entitlement.Evaluator
	log      *slog.Logger
	cacheTTL time.Duration
}

type Option func(*Service)

func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithEnforcer включает снятие премиума при чтении прав пользователя с истёкшим пробным периодом.
func WithEnforcer(e Enforcer) Option {
	return func(s *Service) { s.enforcer = e }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.eval = entitlement.NewEvaluator(now) }
}

// New создает новый экземпляр Service.
func New(repo UserRepository, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		eval:     entitlement.NewEvaluator(nil),
		log:      log,
		cacheTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EndTrial досрочно завершает пробный период. Пользователь должен быть на триале.
func (s *Service) EndTrial(ctx context.Context, userUID string) error {
	const op = "account.EndTrial"

	u, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !s.eval.IsOnTrial(u) {
		return fmt.Errorf("%s: %w: user is not on trial", op, models.ErrInvalidState)
	}

	upd := models.UserUpdate{
		TrialEndDate:      models.Time(models.TrialEndedSentinel),
		IsPremium:         models.Bool(false),
		IsPremiumAdminSet: models.Bool(false),
	}
	if err = s.repo.UpdateUser(ctx, userUID, upd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.changed(ctx, op, userUID)
	return nil
}

// ResetTrial начинает пробный период заново. Разрешено только без бессрочного
// премиума и пока не прошло семь дней с регистрации. Возвращает новую дату окончания.
func (s *Service) ResetTrial(ctx context.Context, userUID string) (time.Time, error) {
	const op = "account.ResetTrial"

	u, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if entitlement.IsPermanent(u) {
		return time.Time{}, fmt.Errorf("%s: %w: permanent premium cannot be reset to trial", op, models.ErrInvalidState)
	}
	if !s.eval.IsOriginalTrialWindowValid(u) {
		return time.Time{}, fmt.Errorf("%s: %w: original trial window has expired", op, models.ErrInvalidState)
	}

	trialEnd := s.eval.Time().Add(models.TrialPeriod)
	upd := models.UserUpdate{
		TrialEndDate:      models.Time(trialEnd),
		IsPremium:         models.Bool(true),
		IsPremiumAdminSet: models.Bool(false),
	}
	if err = s.repo.UpdateUser(ctx, userUID, upd); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	s.changed(ctx, op, userUID)
	return trialEnd, nil
}

// SetPremium выдаёт или отзывает бессрочный премиум. В обоих случаях
// пробный период снимается.
func (s *Service) SetPremium(ctx context.Context, userUID string, premium bool) error {
	const op = "account.SetPremium"

	upd := models.UserUpdate{
		IsPremium:         models.Bool(premium),
		IsPremiumAdminSet: models.Bool(premium),
		ClearTrialEndDate: true,
	}
	if err := s.repo.UpdateUser(ctx, userUID, upd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.changed(ctx, op, userUID)
	return nil
}

// SetRole меняет роль пользователя.
func (s *Service) SetRole(ctx context.Context, userUID, role string) error {
	const op = "account.SetRole"

	if role != models.RoleUser && role != models.RoleAdmin {
		return fmt.Errorf("%s: %w: unknown role %q", op, models.ErrInvalidState, role)
	}
	if err := s.repo.UpdateUser(ctx, userUID, models.UserUpdate{Role: models.String(role)}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.changed(ctx, op, userUID)
	return nil
}

// ListUsers возвращает всех пользователей, новые первыми.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	const op = "account.ListUsers"
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// FindByEmail ищет пользователя по адресу почты.
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "account.FindByEmail"
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// User возвращает запись пользователя, по возможности из кеша.
func (s *Service) User(ctx context.Context, userUID string) (*models.User, error) {
	const op = "account.User"
	u, err := s.loadUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// Entitlements вычисляет права пользователя. Запись пользователя читается через кеш.
func (s *Service) Entitlements(ctx context.Context, userUID string) (*models.Entitlements, error) {
	const op = "account.Entitlements"

	u, err := s.loadUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.enforcer != nil && s.eval.NeedsEnforcement(u) {
		applied, enforceErr := s.enforcer.Enforce(ctx, u)
		switch {
		case enforceErr != nil:
			s.log.Error("enforcement on read failed", slog.String("op", op), sl.UserUID(userUID), sl.Err(enforceErr))
		case applied:
			u.IsPremium = false
		}
	}

	ent := s.eval.Evaluate(u)
	return &ent, nil
}

func (s *Service) loadUser(ctx context.Context, userUID string) (*models.User, error) {
	key := cache.UserKey(userUID)
	if s.cache != nil {
		var cached models.User
		found, err := s.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues(metrics.CacheError).Inc()
			s.log.Warn("failed to read cached user", sl.UserUID(userUID), sl.Err(err))
		case found:
			metrics.CacheLookups.WithLabelValues(metrics.CacheHit).Inc()
			return &cached, nil
		default:
			metrics.CacheLookups.WithLabelValues(metrics.CacheMiss).Inc()
		}
	}

	u, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err = s.cache.Set(ctx, key, u, s.cacheTTL); err != nil {
			s.log.Warn("failed to cache user", sl.UserUID(userUID), sl.Err(err))
		}
	}
	return u, nil
}

// changed сбрасывает кеш и публикует событие после успешной записи.
func (s *Service) changed(ctx context.Context, op, userUID string) {
	log := s.log.With(slog.String("op", op), sl.UserUID(userUID))
	log.Info("user updated")

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, cache.UserKey(userUID)); err != nil {
			log.Warn("failed to invalidate cached user", sl.Err(err))
		}
	}
	if s.events != nil {
		if err := s.events.UserChanged(ctx, userUID); err != nil {
			log.Warn("failed to publish user change", sl.Err(err))
		}
	}
}
