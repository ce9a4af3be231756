package notify_action

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/testutil"
)

func TestNotifyAction_Execute(t *testing.T) {
	ctx := context.Background()

	sink := testutil.NewNotificationSink()
	factory := NewNotifyActionFactory(sink)

	action, err := factory.Create(map[string]any{
		"user_id": "alice",
		"message": "Task moved to {to_status}",
	})
	require.NoError(t, err)

	execCtx := protocol.ExecutionContext{
		EntityID:    "t1",
		TriggerData: map[string]any{"to_status": "done"},
	}

	record, err := action.Execute(ctx, execCtx, slog.Default())
	require.NoError(t, err)

	assert.Empty(t, record.Error)
	require.Len(t, sink.Sent, 1)
	assert.Equal(t, "alice", sink.Sent[0].UserID)
	assert.Equal(t, "Task moved to done", sink.Sent[0].Message)
}

func TestNotifyAction_DeliveryFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()

	sink := testutil.NewNotificationSink()
	sink.FailNext = true

	factory := NewNotifyActionFactory(sink)

	action, err := factory.Create(map[string]any{"user_id": "alice", "message": "ping"})
	require.NoError(t, err)

	// A failed delivery is recorded on the change record but never
	// aborts the rule.
	record, err := action.Execute(ctx, protocol.ExecutionContext{EntityID: "t1"}, slog.Default())
	require.NoError(t, err)
	assert.NotEmpty(t, record.Error)
	assert.Empty(t, sink.Sent)
}

func TestNotifyActionFactory_RequiresUserAndMessage(t *testing.T) {
	factory := NewNotifyActionFactory(testutil.NewNotificationSink())

	_, err := factory.Create(map[string]any{"user_id": "alice"})
	require.Error(t, err)

	_, err = factory.Create(map[string]any{"message": "hi"})
	require.Error(t, err)
}
