package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEnvelope(t *testing.T, sub Subscription) Envelope {
	t.Helper()
	select {
	case env, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func TestMemoryBusFanout(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub1, err := b.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	sub2, err := b.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "room-2")
	require.NoError(t, err)

	env := Envelope{Event: Event{Type: EventRemoteCodeChange, Payload: "delta"}, Origin: "conn-a"}
	require.NoError(t, b.Publish(ctx, "room-1", env))

	got1 := recvEnvelope(t, sub1)
	got2 := recvEnvelope(t, sub2)
	assert.Equal(t, EventRemoteCodeChange, got1.Event.Type)
	assert.Equal(t, "conn-a", got1.Origin)
	assert.Equal(t, got1, got2)

	select {
	case env := <-other.Events():
		t.Fatalf("room-2 subscriber received foreign event: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusNoDeliveryAfterClose(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	require.NoError(t, b.Publish(ctx, "room-1", Envelope{Event: Event{Type: EventRunResult}}))

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed")
}

func TestMemoryBusClosedRejectsOps(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(ctx, "room-1", Envelope{}), ErrBusUnavailable)
	_, err = b.Subscribe(ctx, "room-1")
	assert.ErrorIs(t, err, ErrBusUnavailable)

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		Event:  Event{Type: EventRunResult, Payload: map[string]interface{}{"jobId": "j-1"}},
		Origin: "conn-a",
	}
	data, err := env.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, EventRunResult, got.Event.Type)
	assert.Equal(t, "conn-a", got.Origin)
}
