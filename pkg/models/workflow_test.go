package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewWorkflow() *WorkflowDefinition {
	return &WorkflowDefinition{
		ID:         "wf-review",
		Name:       "Review workflow",
		EntityType: "task",
		States: []*State{
			{ID: "draft", Name: "Draft", Type: StateInitial},
			{ID: "review", Name: "In review", Type: StateNormal},
			{ID: "done", Name: "Done", Type: StateFinal},
		},
		Transitions: []*Transition{
			{ID: "t1", FromStateID: "draft", ToStateID: "review", AllowAll: true},
			{ID: "t2", FromStateID: "review", ToStateID: "done", AllowAll: true},
		},
	}
}

func TestWorkflowDefinition_Validate(t *testing.T) {
	t.Run("valid definition", func(t *testing.T) {
		require.NoError(t, reviewWorkflow().Validate())
	})

	t.Run("no states", func(t *testing.T) {
		def := &WorkflowDefinition{Name: "Empty", EntityType: "task"}
		require.ErrorIs(t, def.Validate(), ErrNoStates)
	})

	t.Run("no initial state", func(t *testing.T) {
		def := reviewWorkflow()
		def.States[0].Type = StateNormal

		require.ErrorIs(t, def.Validate(), ErrNoInitialState)
	})

	t.Run("multiple initial states", func(t *testing.T) {
		def := reviewWorkflow()
		def.States[1].Type = StateInitial

		require.ErrorIs(t, def.Validate(), ErrMultipleInitialStates)
	})

	t.Run("transition to unknown state", func(t *testing.T) {
		def := reviewWorkflow()
		def.Transitions = append(def.Transitions, &Transition{
			ID: "t3", FromStateID: "review", ToStateID: "archived",
		})

		require.ErrorIs(t, def.Validate(), ErrUnknownState)
	})
}

func TestWorkflowDefinition_Lookups(t *testing.T) {
	def := reviewWorkflow()

	initial := def.InitialState()
	require.NotNil(t, initial)
	assert.Equal(t, "draft", initial.ID)

	assert.Nil(t, def.StateByID("missing"))
	assert.Equal(t, "In review", def.StateByID("review").Name)

	between := def.TransitionsBetween("review", "done")
	require.Len(t, between, 1)
	assert.Equal(t, "t2", between[0].ID)

	assert.Empty(t, def.TransitionsBetween("done", "draft"))
}

func TestWorkflowInstance_InActiveState(t *testing.T) {
	instance := &WorkflowInstance{
		CurrentStateID: "review",
		ActiveStates:   []string{"review", "qa"},
	}

	assert.True(t, instance.InActiveState("review"))
	assert.True(t, instance.InActiveState("qa"))
	assert.False(t, instance.InActiveState("done"))
}
