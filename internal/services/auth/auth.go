// Package auth регистрирует владельцев магазинов и выдаёт им токены доступа.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/jwt"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/password"
	"github.com/magabrotheeeer/storefront-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

const (
	minSlugLength   = 3
	slugNameLength  = 10
	slugSuffixDigit = 6
)

var (
	// ErrInvalidCredentials возвращается при неверной почте или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSlug возвращается для слишком короткого или недопустимого адреса магазина.
	ErrInvalidSlug = errors.New("store url must be at least 3 characters of a-z, 0-9 or '-'")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUserWithStore сохраняет пользователя и его магазин, возвращает UID пользователя.
	CreateUserWithStore(ctx context.Context, user models.User, store models.Store) (string, error)
	// GetUserByEmail возвращает пользователя по почте.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// SlugExists сообщает, занят ли адрес магазина.
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// EventPublisher сообщает об изменении записи пользователя.
type EventPublisher interface {
	UserChanged(ctx context.Context, userUID string) error
}

// RegisterRequest данные регистрации.
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	StoreSlug   string
}

// Service отвечает за регистрацию и вход.
type Service struct {
	users    UserRepository
	jwtMaker jwt.Maker
	events   EventPublisher
	log      *slog.Logger
	now      func() time.Time
}

// NewService создает новый экземпляр Service. events может быть nil.
func NewService(users UserRepository, jwtMaker jwt.Maker, events EventPublisher, log *slog.Logger) *Service {
	return &Service{
		users:    users,
		jwtMaker: jwtMaker,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// Register создаёт пользователя с семидневным пробным периодом и магазин по умолчанию.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (string, error) {
	const op = "auth.Register"

	if err := password.Validate(req.Password); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	slug := strings.ToLower(strings.TrimSpace(req.StoreSlug))
	if slug != "" {
		if !validSlug(slug) {
			return "", fmt.Errorf("%s: %w", op, ErrInvalidSlug)
		}
		taken, err := s.users.SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if taken {
			return "", fmt.Errorf("%s: %w: store url %q is already taken", op, models.ErrAlreadyExists, slug)
		}
	} else {
		slug = GenerateSlug(req.DisplayName, now)
	}

	hashed, err := password.GetHash(req.Password)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hashed,
		Role:         models.RoleUser,
		IsPremium:    false,
		TrialEndDate: models.Time(now.Add(models.TrialPeriod)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	store := models.DefaultStore("", user.DisplayName, slug, now)

	uid, err := s.users.CreateUserWithStore(ctx, user, store)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log := s.log.With(slog.String("op", op), sl.UserUID(uid))
	log.Info("user registered", slog.String("store_slug", slug))
	if s.events != nil {
		if err = s.events.UserChanged(ctx, uid); err != nil {
			log.Warn("failed to publish user change", sl.Err(err))
		}
	}
	return uid, nil
}

// Login проверяет пароль и возвращает токен доступа вместе с пользователем.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (string, *models.User, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := s.jwtMaker.GenerateToken(user.UUID, user.Email, user.Role)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, user, nil
}

// GenerateSlug строит адрес магазина из имени: до десяти символов a-z0-9
// и шесть последних цифр времени в миллисекундах.
func GenerateSlug(displayName string, now time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		if b.Len() == slugNameLength {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		b.WriteString("mystore")
	}

	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if len(millis) > slugSuffixDigit {
		millis = millis[len(millis)-slugSuffixDigit:]
	}
	return b.String() + millis
}

func validSlug(slug string) bool {
	if len(slug) < minSlugLength {
		return false
	}
	for _, r := range slug {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
