package userfeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

func receive(t *testing.T, ch <-chan models.UserSnapshot) models.UserSnapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
		return models.UserSnapshot{}
	}
}

func TestBrokerFiltersByUser(t *testing.T) {
	b := NewBroker(4)
	ctx := context.Background()

	one, unsubOne := b.Subscribe("u1")
	defer unsubOne()
	all, unsubAll := b.Subscribe("")
	defer unsubAll()

	require.NoError(t, b.Publish(ctx, models.UserSnapshot{UserUID: "u2"}))
	require.NoError(t, b.Publish(ctx, models.UserSnapshot{UserUID: "u1", User: &models.User{UUID: "u1"}}))

	got := receive(t, one)
	assert.Equal(t, "u1", got.UserUID)
	require.NotNil(t, got.User)

	assert.Equal(t, "u2", receive(t, all).UserUID)
	assert.Equal(t, "u1", receive(t, all).UserUID)
	assert.Empty(t, one)
}

func TestBrokerUnsubscribeReleasesBlockedPublisher(t *testing.T) {
	b := NewBroker(0)
	_, unsub := b.Subscribe("u1")

	published := make(chan error, 1)
	go func() {
		published <- b.Publish(context.Background(), models.UserSnapshot{UserUID: "u1"})
	}()

	time.Sleep(20 * time.Millisecond)
	unsub()

	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after unsubscribe")
	}
	unsub()
}

func TestBrokerPublishHonoursContext(t *testing.T) {
	b := NewBroker(0)
	_, unsub := b.Subscribe("u1")
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, models.UserSnapshot{UserUID: "u1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker(1)
	ch, unsub := b.Subscribe("u1")

	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
	unsub()

	assert.ErrorIs(t, b.Publish(context.Background(), models.UserSnapshot{UserUID: "u1"}), ErrClosed)

	late, _ := b.Subscribe("u1")
	_, ok = <-late
	assert.False(t, ok)
}
