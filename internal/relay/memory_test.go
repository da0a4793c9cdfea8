package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capture-relay-api/internal/model"
)

func recvEvent(t *testing.T, sub Subscription) model.RelayEvent {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relay event")
		return model.RelayEvent{}
	}
}

func TestMemoryRelayFansOutToAllSessions(t *testing.T) {
	broker := NewMemoryRelay()
	ctx := context.Background()

	desktop1, err := broker.Subscribe(ctx, "acct-1")
	require.NoError(t, err)
	defer desktop1.Close()

	desktop2, err := broker.Subscribe(ctx, "acct-1")
	require.NoError(t, err)
	defer desktop2.Close()

	event := model.RelayEvent{AccountID: "acct-1", ImageID: "img-1", ContentKey: "k1", Timestamp: 123}
	require.NoError(t, broker.Publish(ctx, "acct-1", event))

	assert.Equal(t, event, recvEvent(t, desktop1))
	assert.Equal(t, event, recvEvent(t, desktop2))
}

func TestMemoryRelayScopesByAccount(t *testing.T) {
	broker := NewMemoryRelay()
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, "acct-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, broker.Publish(ctx, "acct-2", model.RelayEvent{AccountID: "acct-2"}))

	select {
	case <-sub.Events():
		t.Fatal("received another account's event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryRelayCloseEndsStream(t *testing.T) {
	broker := NewMemoryRelay()
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, "acct-1")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after close is harmless.
	assert.NoError(t, broker.Publish(ctx, "acct-1", model.RelayEvent{AccountID: "acct-1"}))

	// Closing twice is harmless.
	assert.NoError(t, sub.Close())
}
