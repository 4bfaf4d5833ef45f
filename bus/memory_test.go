package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stellar-multisig/coordinator/bus"
	"github.com/stellar-multisig/coordinator/entity"
)

func receiveEvent(t *testing.T, sub bus.Subscription) *bus.TopicEvent {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus event")
		return nil
	}
}

func TestMemoryBusFanout(t *testing.T) {
	t.Parallel()

	b := bus.NewMemoryBus()
	ctx := context.Background()

	created, err := b.Subscribe(ctx, bus.TopicRequestCreated)
	require.NoError(t, err)
	all, err := b.Subscribe(ctx, bus.TopicRequestCreated, bus.TopicRequestUpdated)
	require.NoError(t, err)

	event := &bus.Event{
		Request:    &entity.SignatureRequestInfo{Hash: "abc"},
		SignerKeys: []string{"GABC"},
	}
	require.NoError(t, b.Publish(ctx, bus.TopicRequestCreated, event))
	require.NoError(t, b.Publish(ctx, bus.TopicRequestUpdated, event))

	first := receiveEvent(t, created)
	require.Equal(t, bus.TopicRequestCreated, first.Topic)
	require.Equal(t, "abc", first.Event.Request.Hash)

	require.Equal(t, bus.TopicRequestCreated, receiveEvent(t, all).Topic)
	require.Equal(t, bus.TopicRequestUpdated, receiveEvent(t, all).Topic)

	// the created-only subscriber never sees the update
	select {
	case unexpected := <-created.Events():
		t.Fatalf("unexpected event on created-only subscription: %+v", unexpected)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionClosedOnContextCancel(t *testing.T) {
	t.Parallel()

	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := b.Subscribe(ctx, bus.TopicRequestCreated)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub.Events():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription was not torn down on context cancellation")
	}

	// publishing after teardown must not panic or write to the channel
	require.NoError(t, b.Publish(context.Background(), bus.TopicRequestCreated, &bus.Event{}))
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), bus.TopicRequestUpdated)
	require.NoError(t, err)

	sub.Close()
	sub.Close()
	b.Close()
}
