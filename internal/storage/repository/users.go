package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

const userColumns = `uid, email, display_name, password_hash, role, is_premium,
			      is_premium_admin_set, trial_end_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var adminSet sql.NullBool
	var trialEndDate sql.NullTime
	if err := row.Scan(&u.UUID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role,
		&u.IsPremium, &adminSet, &trialEndDate, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if adminSet.Valid {
		v := adminSet.Bool
		u.IsPremiumAdminSet = &v
	}
	if trialEndDate.Valid {
		t := trialEndDate.Time
		u.TrialEndDate = &t
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по адресу электронной почты.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return u, nil
}

// ListUsers возвращает всех пользователей, новые первыми.
func (s *Storage) ListUsers(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListUsers"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  ORDER BY created_at DESC`
	return s.queryUsers(ctx, op, query)
}

// FindExpiredPremiumTrials находит пользователей, у которых пробный период
// закончился до now, а флаг is_premium ещё не сброшен.
func (s *Storage) FindExpiredPremiumTrials(ctx context.Context, now time.Time) ([]*models.User, error) {
	const op = "storage.FindExpiredPremiumTrials"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE is_premium = TRUE
			    AND is_premium_admin_set IS DISTINCT FROM TRUE
			    AND trial_end_date IS NOT NULL
			    AND trial_end_date < $1`
	return s.queryUsers(ctx, op, query, now)
}

func (s *Storage) queryUsers(ctx context.Context, op, query string, args ...any) ([]*models.User, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, classify(err))
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return result, nil
}

// UpdateUser частично обновляет пользователя: записываются только заданные поля,
// updated_at обновляется всегда.
func (s *Storage) UpdateUser(ctx context.Context, userUID string, upd models.UserUpdate) error {
	const op = "storage.UpdateUser"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	if upd.Empty() {
		return nil
	}

	query, args := buildUserUpdate(userUID, upd)
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// BackfillPremiumAdminSet помечает премиум бессрочным и убирает дату окончания
// пробного периода, только если в момент записи is_premium выставлен, а
// is_premium_admin_set ни разу не записывался. Возвращает false, если запись
// уже не подходит под это условие или пользователя нет.
func (s *Storage) BackfillPremiumAdminSet(ctx context.Context, userUID string) (bool, error) {
	const op = "storage.BackfillPremiumAdminSet"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE users
			  SET is_premium_admin_set = TRUE,
			      trial_end_date = NULL,
			      updated_at = NOW()
			  WHERE uid = $1
			    AND is_premium = TRUE
			    AND is_premium_admin_set IS NULL`
	res, err := s.DB.ExecContext(ctx, query, userUID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	return n > 0, nil
}

func buildUserUpdate(userUID string, upd models.UserUpdate) (string, []any) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Role != nil {
		set("role", *upd.Role)
	}
	if upd.IsPremium != nil {
		set("is_premium", *upd.IsPremium)
	}
	if upd.IsPremiumAdminSet != nil {
		set("is_premium_admin_set", *upd.IsPremiumAdminSet)
	}
	switch {
	case upd.ClearTrialEndDate:
		sets = append(sets, "trial_end_date = NULL")
	case upd.TrialEndDate != nil:
		set("trial_end_date", *upd.TrialEndDate)
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, userUID)
	query := fmt.Sprintf("UPDATE users SET %s WHERE uid = $%d", strings.Join(sets, ", "), len(args))
	return query, args
}

// CreateUserWithStore в одной транзакции сохраняет пользователя и его магазин
// по умолчанию и возвращает UID пользователя.
func (s *Storage) CreateUserWithStore(ctx context.Context, user models.User, store models.Store) (string, error) {
	const op = "storage.CreateUserWithStore"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var newUID string
	userQuery := `INSERT INTO users (email, display_name, password_hash, role, is_premium,
			      is_premium_admin_set, trial_end_date, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			  RETURNING uid`
	if err = tx.QueryRowContext(ctx, userQuery,
		user.Email, user.DisplayName, user.PasswordHash, user.Role, user.IsPremium,
		user.IsPremiumAdminSet, user.TrialEndDate, user.CreatedAt).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, classify(err))
	}

	storeQuery := `INSERT INTO stores (owner_uid, name, description, slug, widget_enabled,
			      banner_enabled, show_categories, subscription_enabled, slides_enabled,
			      display_price_on_products, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`
	if _, err = tx.ExecContext(ctx, storeQuery,
		newUID, store.Name, store.Description, store.Slug, store.WidgetEnabled,
		store.BannerEnabled, store.ShowCategories, store.SubscriptionEnabled, store.SlidesEnabled,
		store.DisplayPriceOnProducts, store.IsActive, store.CreatedAt); err != nil {
		return "", fmt.Errorf("%s: %w", op, classify(err))
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, classify(err))
	}
	return newUID, nil
}
