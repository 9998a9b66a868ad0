package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

func TestStorage_Users(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	require.NoError(t, CheckDatabaseReady(ctx, storage))

	uid := factory.CreateUser(t, "anna@shop.io", "anna-shop", nil)
	require.NoError(t, uuid.Validate(uid))

	t.Run("get by uid and email", func(t *testing.T) {
		u, err := storage.GetUser(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, "anna@shop.io", u.Email)
		assert.Equal(t, models.RoleUser, u.Role)
		assert.False(t, u.IsPremium)
		assert.Nil(t, u.IsPremiumAdminSet)
		require.NotNil(t, u.TrialEndDate)
		assert.WithinDuration(t, factory.now.Add(models.TrialPeriod), *u.TrialEndDate, time.Second)

		byEmail, err := storage.GetUserByEmail(ctx, "anna@shop.io")
		require.NoError(t, err)
		assert.Equal(t, uid, byEmail.UUID)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := storage.GetUser(ctx, uuid.NewString())
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = storage.GetUserByEmail(ctx, "ghost@shop.io")
		assert.ErrorIs(t, err, models.ErrNotFound)

		err = storage.UpdateUser(ctx, uuid.NewString(), models.UserUpdate{IsPremium: models.Bool(true)})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("duplicate email rolls back store", func(t *testing.T) {
		_, err := storage.CreateUserWithStore(ctx,
			models.User{Email: "anna@shop.io", Role: models.RoleUser, CreatedAt: factory.now},
			models.DefaultStore("", "Copy", "copy-shop", factory.now))
		assert.ErrorIs(t, err, models.ErrAlreadyExists)

		exists, err := storage.SlugExists(ctx, "copy-shop")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("partial update", func(t *testing.T) {
		require.NoError(t, storage.UpdateUser(ctx, uid, models.UserUpdate{
			IsPremium:         models.Bool(true),
			IsPremiumAdminSet: models.Bool(true),
			ClearTrialEndDate: true,
		}))

		u, err := storage.GetUser(ctx, uid)
		require.NoError(t, err)
		assert.True(t, u.IsPremium)
		require.NotNil(t, u.IsPremiumAdminSet)
		assert.True(t, *u.IsPremiumAdminSet)
		assert.Nil(t, u.TrialEndDate)
		assert.Equal(t, models.RoleUser, u.Role)

		require.NoError(t, storage.UpdateUser(ctx, uid, models.UserUpdate{Role: models.String(models.RoleAdmin)}))
		u, err = storage.GetUser(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, u.Role)
		assert.True(t, u.IsPremium)
	})

	t.Run("empty update is a no-op", func(t *testing.T) {
		assert.NoError(t, storage.UpdateUser(ctx, uuid.NewString(), models.UserUpdate{}))
	})
}

func TestStorage_ListUsersOrder(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)

	older := factory.CreateUser(t, "old@shop.io", "old-shop", func(u *models.User) {
		u.CreatedAt = factory.now.Add(-48 * time.Hour)
	})
	newer := factory.CreateUser(t, "new@shop.io", "new-shop", nil)

	users, err := storage.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, newer, users[0].UUID)
	assert.Equal(t, older, users[1].UUID)
}

func TestStorage_FindExpiredPremiumTrials(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	past := factory.now.Add(-time.Hour)

	expired := factory.CreateUser(t, "expired@shop.io", "expired", func(u *models.User) {
		u.IsPremium = true
		u.TrialEndDate = models.Time(past)
	})
	factory.CreateUser(t, "downgraded@shop.io", "downgraded", func(u *models.User) {
		u.TrialEndDate = models.Time(past)
	})
	factory.CreateUser(t, "permanent@shop.io", "permanent", func(u *models.User) {
		u.IsPremium = true
		u.IsPremiumAdminSet = models.Bool(true)
		u.TrialEndDate = models.Time(past)
	})
	factory.CreateUser(t, "running@shop.io", "running", func(u *models.User) {
		u.IsPremium = true
	})
	explicitFalse := factory.CreateUser(t, "revoked@shop.io", "revoked", func(u *models.User) {
		u.IsPremium = true
		u.IsPremiumAdminSet = models.Bool(false)
		u.TrialEndDate = models.Time(past)
	})

	users, err := storage.FindExpiredPremiumTrials(context.Background(), factory.now)
	require.NoError(t, err)

	got := make([]string, 0, len(users))
	for _, u := range users {
		got = append(got, u.UUID)
	}
	assert.ElementsMatch(t, []string{expired, explicitFalse}, got)
}

func TestStorage_BackfillPremiumAdminSet(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	legacy := factory.CreateUser(t, "legacy@shop.io", "legacy", func(u *models.User) {
		u.IsPremium = true
	})

	t.Run("legacy premium becomes permanent", func(t *testing.T) {
		migrated, err := storage.BackfillPremiumAdminSet(ctx, legacy)
		require.NoError(t, err)
		assert.True(t, migrated)

		u, err := storage.GetUser(ctx, legacy)
		require.NoError(t, err)
		require.NotNil(t, u.IsPremiumAdminSet)
		assert.True(t, *u.IsPremiumAdminSet)
		assert.Nil(t, u.TrialEndDate)

		migrated, err = storage.BackfillPremiumAdminSet(ctx, legacy)
		require.NoError(t, err)
		assert.False(t, migrated)
	})

	t.Run("revoked after scan is left alone", func(t *testing.T) {
		uid := factory.CreateUser(t, "revoked-later@shop.io", "revoked-later", func(u *models.User) {
			u.IsPremium = true
		})
		scanned, err := storage.GetUser(ctx, uid)
		require.NoError(t, err)
		require.Nil(t, scanned.IsPremiumAdminSet)

		// администратор отзывает премиум между чтением и записью миграции
		require.NoError(t, storage.UpdateUser(ctx, uid, models.UserUpdate{
			IsPremium:         models.Bool(false),
			IsPremiumAdminSet: models.Bool(false),
			ClearTrialEndDate: true,
		}))

		migrated, err := storage.BackfillPremiumAdminSet(ctx, uid)
		require.NoError(t, err)
		assert.False(t, migrated)

		u, err := storage.GetUser(ctx, uid)
		require.NoError(t, err)
		assert.False(t, u.IsPremium)
		require.NotNil(t, u.IsPremiumAdminSet)
		assert.False(t, *u.IsPremiumAdminSet)
	})

	t.Run("unknown user", func(t *testing.T) {
		migrated, err := storage.BackfillPremiumAdminSet(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.False(t, migrated)
	})
}

func TestStorage_FindStoresPendingDisable(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	ctx := context.Background()
	past := factory.now.Add(-time.Hour)

	pending := factory.CreateUser(t, "pending@shop.io", "pending", func(u *models.User) {
		u.TrialEndDate = models.Time(past)
	})
	factory.EnableStoreFeatures(t, pending)

	clean := factory.CreateUser(t, "clean@shop.io", "clean", func(u *models.User) {
		u.TrialEndDate = models.Time(past)
	})
	notYetDowngraded := factory.CreateUser(t, "premium@shop.io", "premium", func(u *models.User) {
		u.IsPremium = true
		u.TrialEndDate = models.Time(past)
	})
	factory.EnableStoreFeatures(t, notYetDowngraded)
	permanent := factory.CreateUser(t, "permanent@shop.io", "permanent", func(u *models.User) {
		u.IsPremiumAdminSet = models.Bool(true)
		u.TrialEndDate = models.Time(past)
	})
	factory.EnableStoreFeatures(t, permanent)
	running := factory.CreateUser(t, "running@shop.io", "running", nil)
	factory.EnableStoreFeatures(t, running)

	owners, err := storage.FindStoresPendingDisable(ctx, factory.now)
	require.NoError(t, err)
	assert.Equal(t, []string{pending}, owners)
	assert.NotContains(t, owners, clean)

	require.NoError(t, storage.UpdateStoreFeatures(ctx, pending, models.DisabledStoreFeatures()))
	owners, err = storage.FindStoresPendingDisable(ctx, factory.now)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestStorage_Stores(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	uid := factory.CreateUser(t, "anna@shop.io", "anna-shop", nil)

	st, err := storage.GetStore(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "anna-shop", st.Slug)
	assert.True(t, st.IsActive)

	exists, err := storage.SlugExists(ctx, "anna-shop")
	require.NoError(t, err)
	assert.True(t, exists)

	factory.EnableStoreFeatures(t, uid)
	require.NoError(t, storage.UpdateStoreFeatures(ctx, uid, models.DisabledStoreFeatures()))

	st, err = storage.GetStore(ctx, uid)
	require.NoError(t, err)
	assert.False(t, st.WidgetEnabled)
	assert.False(t, st.BannerEnabled)
	assert.False(t, st.ShowCategories)
	assert.Equal(t, "anna-shop", st.Slug)

	err = storage.UpdateStoreFeatures(ctx, uuid.NewString(), models.DisabledStoreFeatures())
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = storage.GetStore(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStorage_CanceledContext(t *testing.T) {
	storage := setupTestDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.GetUser(ctx, uuid.NewString())
	assert.ErrorIs(t, err, context.Canceled)

	err = storage.UpdateStoreFeatures(ctx, uuid.NewString(), models.DisabledStoreFeatures())
	assert.ErrorIs(t, err, context.Canceled)
}
