package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/storefront-entitlements/internal/migrations"
	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
	now     time.Time
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{
		storage: storage,
		now:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

// CreateUser создает пользователя с магазином по умолчанию и возвращает его UID
func (f *TestDataFactory) CreateUser(t *testing.T, email, slug string, mutate func(u *models.User)) string {
	t.Helper()
	u := models.User{
		Email:        email,
		DisplayName:  "Test " + slug,
		PasswordHash: "hashedpassword",
		Role:         models.RoleUser,
		TrialEndDate: models.Time(f.now.Add(models.TrialPeriod)),
		CreatedAt:    f.now,
		UpdatedAt:    f.now,
	}
	if mutate != nil {
		mutate(&u)
	}
	uid, err := f.storage.CreateUserWithStore(context.Background(), u, models.DefaultStore("", u.DisplayName, slug, u.CreatedAt))
	require.NoError(t, err)
	return uid
}

// EnableStoreFeatures включает премиальные флаги магазина напрямую в базе
func (f *TestDataFactory) EnableStoreFeatures(t *testing.T, ownerUID string) {
	t.Helper()
	_, err := f.storage.DB.Exec(`UPDATE stores
		SET widget_enabled = TRUE, banner_enabled = TRUE, show_categories = TRUE
		WHERE owner_uid = $1`, ownerUID)
	require.NoError(t, err)
}

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции проекта
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(ctx, connStr)
	require.NoError(t, err, "failed to create storage")
	t.Cleanup(func() {
		_ = storage.Close()
	})

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	return storage
}
