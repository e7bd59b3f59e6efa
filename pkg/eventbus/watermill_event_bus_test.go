package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/cryptodashboard/reportgen/pkg/channels/gochannel"
	"github.com/cryptodashboard/reportgen/pkg/eventbus"
	"github.com/cryptodashboard/reportgen/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	return bus
}

func TestWatermillEventBus_DeliversTypedEvents(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.ReportPublished, 1)

	require.NoError(t, bus.Handle(events.ReportPublishedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ReportPublished)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	sent := events.NewReportPublished("session-1", 12, events.TriggerAPI, 1, time.Minute)
	require.NoError(t, bus.Publish(ctx, "session-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, int64(12), got.ReportID)
		assert.Equal(t, "session-1", got.SessionID)
		assert.Equal(t, sent.ID, got.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deleted := make(chan int64, 1)

	require.NoError(t, bus.Handle(events.ReportDeletedEvent, func(_ context.Context, event any) error {
		deleted <- event.(*events.ReportDeleted).ReportID

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "s", events.NewReportGenerationStarted("s", events.TriggerScheduler)))
	require.NoError(t, bus.Publish(ctx, "3", events.NewReportDeleted(3)))

	select {
	case id := <-deleted:
		assert.Equal(t, int64(3), id)
	case <-time.After(5 * time.Second):
		t.Fatal("deletion event was not delivered")
	}
}

func TestWatermillEventBus_PublishNil(t *testing.T) {
	bus := newBus(t)

	err := bus.Publish(context.Background(), "k", nil)
	assert.ErrorIs(t, err, eventbus.ErrNilEvent)
	assert.NotEmpty(t, bus.GenerateID())
}
