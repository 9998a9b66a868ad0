package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// UpdateStoreFeatures записывает премиальные флаги магазина пользователя.
// Остальные поля магазина не изменяются.
func (s *Storage) UpdateStoreFeatures(ctx context.Context, ownerUID string, features models.StoreFeatures) error {
	const op = "storage.UpdateStoreFeatures"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `UPDATE stores
			  SET widget_enabled = $1,
			      banner_enabled = $2,
			      show_categories = $3,
			      updated_at = NOW()
			  WHERE owner_uid = $4`
	res, err := s.DB.ExecContext(ctx, query,
		features.WidgetEnabled, features.BannerEnabled, features.ShowCategories, ownerUID)
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

// GetStore возвращает магазин пользователя.
func (s *Storage) GetStore(ctx context.Context, ownerUID string) (*models.Store, error) {
	const op = "storage.GetStore"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT owner_uid, name, description, slug, widget_enabled, banner_enabled,
			      show_categories, subscription_enabled, slides_enabled,
			      display_price_on_products, is_active, created_at, updated_at
			  FROM stores
			  WHERE owner_uid = $1`
	st := &models.Store{}
	if err := s.DB.QueryRowContext(ctx, query, ownerUID).Scan(&st.OwnerUID, &st.Name, &st.Description,
		&st.Slug, &st.WidgetEnabled, &st.BannerEnabled, &st.ShowCategories, &st.SubscriptionEnabled,
		&st.SlidesEnabled, &st.DisplayPriceOnProducts, &st.IsActive, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return st, nil
}

// SlugExists сообщает, занят ли адрес магазина.
func (s *Storage) SlugExists(ctx context.Context, slug string) (bool, error) {
	const op = "storage.SlugExists"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM stores WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	return exists, nil
}

// FindStoresPendingDisable возвращает владельцев магазинов, у которых премиум уже снят
// после окончания пробного периода, а премиальные флаги магазина остались включены.
func (s *Storage) FindStoresPendingDisable(ctx context.Context, now time.Time) ([]string, error) {
	const op = "storage.FindStoresPendingDisable"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT u.uid
			  FROM users u
			  JOIN stores s ON s.owner_uid = u.uid
			  WHERE u.is_premium = FALSE
			    AND u.is_premium_admin_set IS DISTINCT FROM TRUE
			    AND u.trial_end_date IS NOT NULL
			    AND u.trial_end_date < $1
			    AND (s.widget_enabled OR s.banner_enabled OR s.show_categories)`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var owners []string
	for rows.Next() {
		var uid string
		if err = rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, classify(err))
		}
		owners = append(owners, uid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return owners, nil
}
