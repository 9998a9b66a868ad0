package enforcer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

func TestSweep(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindExpiredPremiumTrials", mock.Anything, now).Return([]*models.User{
		expiredUser("u1"),
		expiredUser("u2"),
		// пользователь, которому уже выдали бессрочный премиум между выборкой и проходом
		{UUID: "u3", IsPremium: true, IsPremiumAdminSet: models.Bool(true), TrialEndDate: models.Time(now.Add(-time.Hour))},
	}, nil).Once()
	repo.On("UpdateUser", mock.Anything, "u1", downgrade).Return(nil).Once()
	repo.On("UpdateStoreFeatures", mock.Anything, "u1", models.StoreFeatures{}).Return(nil).Once()
	repo.On("UpdateUser", mock.Anything, "u2", downgrade).Return(models.ErrStoreUnavailable).Once()
	repo.On("UpdateStoreFeatures", mock.Anything, "u2", models.StoreFeatures{}).Return(nil).Once()

	e := New(repo, newNoopLogger(), WithClock(clock))
	s := NewSweeper(repo, e, time.Minute, newNoopLogger())

	enforced, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, enforced)
	repo.AssertExpectations(t)
}

func TestSweepFindFailure(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindExpiredPremiumTrials", mock.Anything, now).Return(nil, models.ErrStoreUnavailable).Once()

	s := NewSweeper(repo, New(repo, newNoopLogger(), WithClock(clock)), time.Minute, newNoopLogger())
	enforced, err := s.Sweep(context.Background())
	assert.Zero(t, enforced)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

type countingFinder struct {
	calls atomic.Int32
}

func (f *countingFinder) FindExpiredPremiumTrials(context.Context, time.Time) ([]*models.User, error) {
	f.calls.Add(1)
	return nil, nil
}

func (f *countingFinder) FindStoresPendingDisable(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	finder := &countingFinder{}
	s := NewSweeper(finder, New(new(RepoMock), newNoopLogger(), WithClock(clock)), 10*time.Millisecond, newNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return finder.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRepairStores(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindStoresPendingDisable", mock.Anything, now).Return([]string{"u1", "u2", "u3"}, nil).Once()
	repo.On("UpdateStoreFeatures", mock.Anything, "u1", models.StoreFeatures{}).Return(nil).Once()
	repo.On("UpdateStoreFeatures", mock.Anything, "u2", models.StoreFeatures{}).Return(models.ErrNotFound).Once()
	repo.On("UpdateStoreFeatures", mock.Anything, "u3", models.StoreFeatures{}).Return(nil).Once()

	e := New(repo, newNoopLogger(), WithClock(clock))
	repaired, err := NewSweeper(repo, e, time.Minute, newNoopLogger()).RepairStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestRepairStoresFindFailure(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindStoresPendingDisable", mock.Anything, now).Return(nil, models.ErrStoreUnavailable).Once()

	s := NewSweeper(repo, New(repo, newNoopLogger(), WithClock(clock)), time.Minute, newNoopLogger())
	repaired, err := s.RepairStores(context.Background())
	assert.Zero(t, repaired)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

// flakyStore хранит одного пользователя и его магазин; первые failStoreWrites
// записей флагов магазина завершаются ошибкой.
type flakyStore struct {
	mu              sync.Mutex
	user            models.User
	store           models.StoreFeatures
	failStoreWrites int
}

var errStoreUnreachable = errors.New("store unreachable")

func (s *flakyStore) UpdateUser(_ context.Context, _ string, upd models.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if upd.IsPremium != nil {
		s.user.IsPremium = *upd.IsPremium
	}
	return nil
}

func (s *flakyStore) UpdateStoreFeatures(_ context.Context, _ string, f models.StoreFeatures) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStoreWrites > 0 {
		s.failStoreWrites--
		return errStoreUnreachable
	}
	s.store = f
	return nil
}

func (s *flakyStore) FindExpiredPremiumTrials(_ context.Context, at time.Time) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user
	if u.IsPremium && u.TrialEndDate != nil && u.TrialEndDate.Before(at) {
		return []*models.User{&u}, nil
	}
	return nil, nil
}

func (s *flakyStore) FindStoresPendingDisable(_ context.Context, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user
	enabled := s.store.WidgetEnabled || s.store.BannerEnabled || s.store.ShowCategories
	if !u.IsPremium && u.TrialEndDate != nil && u.TrialEndDate.Before(at) && enabled {
		return []string{u.UUID}, nil
	}
	return nil, nil
}

func TestStoreLeftEnabledIsRepairedBySweep(t *testing.T) {
	st := &flakyStore{
		user:            *expiredUser("u1"),
		store:           models.StoreFeatures{WidgetEnabled: true, BannerEnabled: true, ShowCategories: true},
		failStoreWrites: 3,
	}
	e := New(st, newNoopLogger(), WithClock(clock), WithStoreRetry(time.Millisecond, time.Second, 2))
	ctx := context.Background()

	applied, err := e.Enforce(ctx, &st.user)
	assert.True(t, applied)
	assert.ErrorIs(t, err, errStoreUnreachable)
	assert.False(t, st.user.IsPremium)
	assert.True(t, st.store.WidgetEnabled)

	// следующий снимок уже не требует Enforce, флаги магазина остались включены
	applied, err = e.Enforce(ctx, &st.user)
	require.NoError(t, err)
	assert.False(t, applied)

	s := NewSweeper(st, e, time.Minute, newNoopLogger())
	enforced, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, enforced)

	repaired, err := s.RepairStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Equal(t, models.StoreFeatures{}, st.store)

	repaired, err = s.RepairStores(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}
