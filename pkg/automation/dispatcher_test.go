package automation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planfold/planfold/pkg/cmd"
	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/protocol"
)

func TestDispatcher_BusEventExecutesRules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newAutomationFixture(t, &protocol.TaskRecord{ID: "t1", ProjectID: "p1", Status: "done"})
	require.NoError(t, f.p.AutomationRules().Save(ctx, statusChangedRule()))

	bus := cmd.NewEventBus("gochannel", nil, slog.Default())
	t.Cleanup(func() {
		cancel()

		if err := bus.Close(); err != nil {
			t.Logf("failed to close event bus: %v", err)
		}
	})

	dispatcher := NewDispatcher(f.engine, bus, slog.Default())
	require.NoError(t, dispatcher.Start(ctx))

	event := events.TaskStatusChanged{
		BaseEvent:  events.NewBaseEvent(events.TaskStatusChangedEvent, "task", "t1"),
		FromStatus: "todo",
		ToStatus:   "done",
		ActorID:    "alice",
	}
	require.NoError(t, bus.Publish(ctx, "t1", event))

	assert.Eventually(t, func() bool {
		logs, err := f.p.AutomationLogs().ListByRule(ctx, "rule-1", time.Time{})

		return err == nil && len(logs) == 1 && logs[0].Status == models.LogSuccess
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, f.store.Updates, 1)
	assert.Equal(t, "low", f.store.Updates[0]["priority"])
}

func TestDispatcher_UnlistedEventTypeIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newAutomationFixture(t, &protocol.TaskRecord{ID: "t1", ProjectID: "p1"})
	require.NoError(t, f.p.AutomationRules().Save(ctx, statusChangedRule()))

	bus := cmd.NewEventBus("gochannel", nil, slog.Default())
	t.Cleanup(func() {
		cancel()

		if err := bus.Close(); err != nil {
			t.Logf("failed to close event bus: %v", err)
		}
	})

	dispatcher := NewDispatcher(f.engine, bus, slog.Default())
	require.NoError(t, dispatcher.Start(ctx))

	// Rule execution results never dispatch back into the engine, so a rule
	// cannot trigger itself through the bus.
	executed := events.RuleExecuted{
		BaseEvent: events.NewBaseEvent(events.RuleExecutedEvent, "rule", "rule-1"),
		RuleID:    "rule-1",
		Status:    string(models.LogSuccess),
	}
	require.NoError(t, bus.Publish(ctx, "rule-1", executed))

	time.Sleep(100 * time.Millisecond)

	logs, err := f.p.AutomationLogs().ListByRule(ctx, "rule-1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestDispatcher_RejectsMismatchedPayload(t *testing.T) {
	ctx := context.Background()

	f := newAutomationFixture(t)
	dispatcher := NewDispatcher(f.engine, nil, slog.Default())

	err := dispatcher.handleTaskStatusChanged(ctx, &events.TaskCreated{})
	require.ErrorIs(t, err, events.ErrInvalidEventData)

	err = dispatcher.handleDependencyCompleted(ctx, &events.TaskStatusChanged{})
	require.ErrorIs(t, err, events.ErrInvalidEventData)
}
