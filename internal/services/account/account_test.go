package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *RepoMock) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *RepoMock) UpdateUser(ctx context.Context, userUID string, upd models.UserUpdate) error {
	return m.Called(ctx, userUID, upd).Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type EventsMock struct{ mock.Mock }

func (m *EventsMock) UserChanged(ctx context.Context, userUID string) error {
	return m.Called(ctx, userUID).Error(0)
}

type EnforcerMock struct{ mock.Mock }

func (m *EnforcerMock) Enforce(ctx context.Context, user *models.User) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func newService(r *RepoMock, c *CacheMock, e *EventsMock) *Service {
	return New(r, newNoopLogger(), WithClock(clock), WithCache(c, time.Minute), WithEvents(e))
}

func expectChanged(c *CacheMock, e *EventsMock, uid string) {
	c.On("Invalidate", mock.Anything, "user:"+uid).Return(nil).Once()
	e.On("UserChanged", mock.Anything, uid).Return(nil).Once()
}

func TestService_EndTrial(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, c *CacheMock, e *EventsMock)
		wantErr    error
	}{
		{
			name: "ends active trial",
			setupMocks: func(r *RepoMock, c *CacheMock, e *EventsMock) {
				r.On("GetUser", mock.Anything, "u1").Return(&models.User{
					UUID: "u1", Role: models.RoleUser, TrialEndDate: models.Time(now.Add(48 * time.Hour)),
				}, nil).Once()
				r.On("UpdateUser", mock.Anything, "u1", models.UserUpdate{
					TrialEndDate:      models.Time(models.TrialEndedSentinel),
					IsPremium:         models.Bool(false),
					IsPremiumAdminSet: models.Bool(false),
				}).Return(nil).Once()
				expectChanged(c, e, "u1")
			},
		},
		{
			name: "permanent premium is not on trial",
			setupMocks: func(r *RepoMock, _ *CacheMock, _ *EventsMock) {
				r.On("GetUser", mock.Anything, "u1").Return(&models.User{
					UUID: "u1", IsPremiumAdminSet: models.Bool(true), TrialEndDate: models.Time(now.Add(48 * time.Hour)),
				}, nil).Once()
			},
			wantErr: models.ErrInvalidState,
		},
		{
			name: "expired trial cannot be ended",
			setupMocks: func(r *RepoMock, _ *CacheMock, _ *EventsMock) {
				r.On("GetUser", mock.Anything, "u1").Return(&models.User{
					UUID: "u1", TrialEndDate: models.Time(now.Add(-time.Hour)),
				}, nil).Once()
			},
			wantErr: models.ErrInvalidState,
		},
		{
			name: "unknown user",
			setupMocks: func(r *RepoMock, _ *CacheMock, _ *EventsMock) {
				r.On("GetUser", mock.Anything, "u1").Return(nil, models.ErrNotFound).Once()
			},
			wantErr: models.ErrNotFound,
		},
		{
			name: "store unavailable on write",
			setupMocks: func(r *RepoMock, _ *CacheMock, _ *EventsMock) {
				r.On("GetUser", mock.Anything, "u1").Return(&models.User{
					UUID: "u1", TrialEndDate: models.Time(now.Add(time.Hour)),
				}, nil).Once()
				r.On("UpdateUser", mock.Anything, "u1", mock.Anything).Return(models.ErrStoreUnavailable).Once()
			},
			wantErr: models.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, c, e := new(RepoMock), new(CacheMock), new(EventsMock)
			tt.setupMocks(repo, c, e)

			err := newService(repo, c, e).EndTrial(context.Background(), "u1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			repo.AssertExpectations(t)
			c.AssertExpectations(t)
			e.AssertExpectations(t)
		})
	}
}

func TestService_ResetTrial(t *testing.T) {
	tests := []struct {
		name    string
		user    *models.User
		wantErr error
	}{
		{
			name: "within original window",
			user: &models.User{UUID: "u1", CreatedAt: now.Add(-3 * 24 * time.Hour), TrialEndDate: models.Time(models.TrialEndedSentinel), IsPremiumAdminSet: models.Bool(false)},
		},
		{
			name:    "permanent premium",
			user:    &models.User{UUID: "u1", CreatedAt: now.Add(-time.Hour), IsPremiumAdminSet: models.Bool(true)},
			wantErr: models.ErrInvalidState,
		},
		{
			name:    "original window lapsed even though not premium",
			user:    &models.User{UUID: "u1", CreatedAt: now.Add(-8 * 24 * time.Hour), IsPremium: false},
			wantErr: models.ErrInvalidState,
		},
		{
			name:    "missing creation time",
			user:    &models.User{UUID: "u1"},
			wantErr: models.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, c, e := new(RepoMock), new(CacheMock), new(EventsMock)
			repo.On("GetUser", mock.Anything, "u1").Return(tt.user, nil).Once()
			if tt.wantErr == nil {
				repo.On("UpdateUser", mock.Anything, "u1", models.UserUpdate{
					TrialEndDate:      models.Time(now.Add(models.TrialPeriod)),
					IsPremium:         models.Bool(true),
					IsPremiumAdminSet: models.Bool(false),
				}).Return(nil).Once()
				expectChanged(c, e, "u1")
			}

			end, err := newService(repo, c, e).ResetTrial(context.Background(), "u1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, end.IsZero())
			} else {
				require.NoError(t, err)
				assert.Equal(t, now.Add(7*24*time.Hour), end)
			}

			repo.AssertExpectations(t)
			c.AssertExpectations(t)
			e.AssertExpectations(t)
		})
	}
}

func TestService_ResetTrialNotFound(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetUser", mock.Anything, "u1").Return(nil, models.ErrNotFound).Once()

	_, err := New(repo, newNoopLogger()).ResetTrial(context.Background(), "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_SetPremium(t *testing.T) {
	for _, premium := range []bool{true, false} {
		repo, c, e := new(RepoMock), new(CacheMock), new(EventsMock)
		repo.On("UpdateUser", mock.Anything, "u1", models.UserUpdate{
			IsPremium:         models.Bool(premium),
			IsPremiumAdminSet: models.Bool(premium),
			ClearTrialEndDate: true,
		}).Return(nil).Once()
		expectChanged(c, e, "u1")

		require.NoError(t, newService(repo, c, e).SetPremium(context.Background(), "u1", premium))
		repo.AssertExpectations(t)
		c.AssertExpectations(t)
		e.AssertExpectations(t)
	}

	repo := new(RepoMock)
	repo.On("UpdateUser", mock.Anything, "missing", mock.Anything).Return(models.ErrNotFound).Once()
	err := New(repo, newNoopLogger()).SetPremium(context.Background(), "missing", true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_SetRole(t *testing.T) {
	repo, c, e := new(RepoMock), new(CacheMock), new(EventsMock)
	repo.On("UpdateUser", mock.Anything, "u1", models.UserUpdate{Role: models.String(models.RoleAdmin)}).Return(nil).Once()
	c.On("Invalidate", mock.Anything, "user:u1").Return(errors.New("redis down")).Once()
	e.On("UserChanged", mock.Anything, "u1").Return(errors.New("amqp down")).Once()

	svc := newService(repo, c, e)
	require.NoError(t, svc.SetRole(context.Background(), "u1", models.RoleAdmin))

	err := svc.SetRole(context.Background(), "u1", "owner")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	repo.AssertExpectations(t)
	c.AssertExpectations(t)
	e.AssertExpectations(t)
}

func TestService_ListAndFind(t *testing.T) {
	repo := new(RepoMock)
	users := []*models.User{{UUID: "new"}, {UUID: "old"}}
	repo.On("ListUsers", mock.Anything).Return(users, nil).Once()
	repo.On("GetUserByEmail", mock.Anything, "a@b.c").Return(&models.User{UUID: "u1", Email: "a@b.c"}, nil).Once()
	repo.On("GetUserByEmail", mock.Anything, "none@b.c").Return(nil, models.ErrNotFound).Once()

	svc := New(repo, newNoopLogger())
	got, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, users, got)

	u, err := svc.FindByEmail(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UUID)

	_, err = svc.FindByEmail(context.Background(), "none@b.c")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_Entitlements(t *testing.T) {
	trialUser := &models.User{UUID: "u1", Role: models.RoleUser, TrialEndDate: models.Time(now.Add(36 * time.Hour))}

	t.Run("cache miss reads store and fills cache", func(t *testing.T) {
		repo, c := new(RepoMock), new(CacheMock)
		c.On("Get", mock.Anything, "user:u1", mock.Anything).Return(false, nil).Once()
		repo.On("GetUser", mock.Anything, "u1").Return(trialUser, nil).Once()
		c.On("Set", mock.Anything, "user:u1", trialUser, time.Minute).Return(nil).Once()

		ent, err := New(repo, newNoopLogger(), WithClock(clock), WithCache(c, time.Minute)).Entitlements(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ent.IsPremium)
		assert.True(t, ent.IsOnTrial)
		assert.Equal(t, 2, ent.TrialDaysRemaining)
		assert.True(t, ent.Features[models.FeatureExport])
		assert.False(t, ent.Features[models.FeatureAdmin])
		repo.AssertExpectations(t)
		c.AssertExpectations(t)
	})

	t.Run("cache hit skips store", func(t *testing.T) {
		repo, c := new(RepoMock), new(CacheMock)
		c.On("Get", mock.Anything, "user:u1", mock.Anything).Run(func(args mock.Arguments) {
			out := args.Get(2).(*models.User)
			*out = models.User{UUID: "u1", Role: models.RoleAdmin}
		}).Return(true, nil).Once()

		ent, err := New(repo, newNoopLogger(), WithClock(clock), WithCache(c, time.Minute)).Entitlements(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ent.IsAdmin)
		assert.True(t, ent.Features[models.FeatureAdmin])
		repo.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	})

	t.Run("cache errors fall back to store", func(t *testing.T) {
		repo, c := new(RepoMock), new(CacheMock)
		c.On("Get", mock.Anything, "user:u1", mock.Anything).Return(false, errors.New("redis down")).Once()
		repo.On("GetUser", mock.Anything, "u1").Return(trialUser, nil).Once()
		c.On("Set", mock.Anything, "user:u1", trialUser, time.Minute).Return(errors.New("redis down")).Once()

		ent, err := New(repo, newNoopLogger(), WithClock(clock), WithCache(c, time.Minute)).Entitlements(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ent.IsOnTrial)
	})

	t.Run("store unavailable", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetUser", mock.Anything, "u1").Return(nil, models.ErrStoreUnavailable).Once()

		ent, err := New(repo, newNoopLogger(), WithClock(clock)).Entitlements(context.Background(), "u1")
		assert.Nil(t, ent)
		assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	})

	t.Run("expired trial is enforced on read", func(t *testing.T) {
		repo, enf := new(RepoMock), new(EnforcerMock)
		expired := &models.User{UUID: "u1", IsPremium: true, TrialEndDate: models.Time(now.Add(-time.Hour))}
		repo.On("GetUser", mock.Anything, "u1").Return(expired, nil).Once()
		enf.On("Enforce", mock.Anything, expired).Return(true, nil).Once()

		ent, err := New(repo, newNoopLogger(), WithClock(clock), WithEnforcer(enf)).Entitlements(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, ent.IsPremium)
		assert.True(t, ent.HasTrialExpired)
		enf.AssertExpectations(t)
	})

	t.Run("failed enforcement still answers", func(t *testing.T) {
		repo, enf := new(RepoMock), new(EnforcerMock)
		expired := &models.User{UUID: "u1", IsPremium: true, TrialEndDate: models.Time(now.Add(-time.Hour))}
		repo.On("GetUser", mock.Anything, "u1").Return(expired, nil).Once()
		enf.On("Enforce", mock.Anything, expired).Return(true, models.ErrStoreUnavailable).Once()

		ent, err := New(repo, newNoopLogger(), WithClock(clock), WithEnforcer(enf)).Entitlements(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ent.IsPremium)
	})
}

func TestService_User(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetUser", mock.Anything, "u1").Return(&models.User{UUID: "u1", Role: models.RoleAdmin}, nil).Once()
	repo.On("GetUser", mock.Anything, "gone").Return(nil, models.ErrNotFound).Once()

	svc := New(repo, newNoopLogger())
	u, err := svc.User(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	_, err = svc.User(context.Background(), "gone")
	assert.ErrorIs(t, err, models.ErrNotFound)
	repo.AssertExpectations(t)
}
