package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/planfold/planfold/pkg/conditions"
)

// StateType classifies a workflow state.
type StateType string

const (
	StateInitial  StateType = "initial"
	StateNormal   StateType = "normal"
	StateApproval StateType = "approval"
	StateParallel StateType = "parallel"
	StateFinal    StateType = "final"
)

// ActionSpec configures one entry/exit or automation action.
type ActionSpec struct {
	Type        string         `json:"type" validate:"required"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	StopOnError bool           `json:"stop_on_error,omitempty"`
}

// State is one node of a workflow definition.
type State struct {
	ID                string       `json:"id"`
	WorkflowID        string       `json:"workflow_id"`
	Name              string       `json:"name" validate:"required"`
	Type              StateType    `json:"type" validate:"required"`
	RequiredApprovals int          `json:"required_approvals,omitempty"`
	ApprovalUsers     []string     `json:"approval_users,omitempty"`
	ApprovalRoles     []string     `json:"approval_roles,omitempty"`
	EntryActions      []ActionSpec `json:"entry_actions,omitempty"`
	ExitActions       []ActionSpec `json:"exit_actions,omitempty"`

	// SLAMinutes bounds how long an instance should stay in this state.
	// Zero means no SLA.
	SLAMinutes int `json:"sla_minutes,omitempty"`
}

// Transition is a directed, guarded move between two states.
type Transition struct {
	ID                string                 `json:"id"`
	WorkflowID        string                 `json:"workflow_id"`
	Name              string                 `json:"name"`
	FromStateID       string                 `json:"from_state_id" validate:"required"`
	ToStateID         string                 `json:"to_state_id"   validate:"required"`
	Conditions        []conditions.Condition `json:"conditions,omitempty"`
	ConditionLogic    conditions.Logic       `json:"condition_logic,omitempty"`
	AllowAll          bool                   `json:"allow_all"`
	AllowedUsers      []string               `json:"allowed_users,omitempty"`
	AllowedRoles      []string               `json:"allowed_roles,omitempty"`
	AutomationRuleIDs []string               `json:"automation_rule_ids,omitempty"`
	RequireComment    bool                   `json:"require_comment"`

	// FieldUpdates are applied to the entity when the transition fires.
	// Caller-supplied updates win on conflicting keys.
	FieldUpdates map[string]any `json:"field_updates,omitempty"`
}

var (
	ErrNoInitialState        = errors.New("workflow must have exactly one initial state")
	ErrMultipleInitialStates = errors.New("workflow has more than one initial state")
	ErrUnknownState          = errors.New("transition references unknown state")
	ErrNoStates              = errors.New("workflow must have at least one state")
)

// WorkflowDefinition is a configurable state machine for one entity type.
type WorkflowDefinition struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"        validate:"required,min=3"`
	EntityType          string        `json:"entity_type" validate:"required"`
	States              []*State      `json:"states"`
	Transitions         []*Transition `json:"transitions"`
	AllowParallelStates bool          `json:"allow_parallel_states"`
	EnforceTransitions  bool          `json:"enforce_transitions"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Validate checks structural integrity: exactly one initial state and no
// transition pointing at a state outside the definition.
func (w *WorkflowDefinition) Validate() error {
	if len(w.States) == 0 {
		return ErrNoStates
	}

	initial := 0
	known := make(map[string]bool, len(w.States))

	for _, state := range w.States {
		known[state.ID] = true

		if state.Type == StateInitial {
			initial++
		}
	}

	if initial == 0 {
		return ErrNoInitialState
	}

	if initial > 1 {
		return ErrMultipleInitialStates
	}

	for _, tr := range w.Transitions {
		if !known[tr.FromStateID] {
			return fmt.Errorf("%w: %s", ErrUnknownState, tr.FromStateID)
		}

		if !known[tr.ToStateID] {
			return fmt.Errorf("%w: %s", ErrUnknownState, tr.ToStateID)
		}
	}

	return nil
}

// InitialState returns the unique initial state.
func (w *WorkflowDefinition) InitialState() *State {
	for _, state := range w.States {
		if state.Type == StateInitial {
			return state
		}
	}

	return nil
}

// StateByID resolves a state, or nil.
func (w *WorkflowDefinition) StateByID(id string) *State {
	for _, state := range w.States {
		if state.ID == id {
			return state
		}
	}

	return nil
}

// TransitionsBetween returns all transitions from fromStateID to toStateID
// in definition order.
func (w *WorkflowDefinition) TransitionsBetween(fromStateID, toStateID string) []*Transition {
	var matches []*Transition

	for _, tr := range w.Transitions {
		if tr.FromStateID == fromStateID && tr.ToStateID == toStateID {
			matches = append(matches, tr)
		}
	}

	return matches
}

// StateHistoryEntry records one entry into a state.
type StateHistoryEntry struct {
	StateID   string    `json:"state_id"`
	EnteredAt time.Time `json:"entered_at"`
	EnteredBy string    `json:"entered_by"`
}

// TransitionHistoryEntry records one applied transition.
type TransitionHistoryEntry struct {
	TransitionID string    `json:"transition_id"`
	FromStateID  string    `json:"from_state_id"`
	ToStateID    string    `json:"to_state_id"`
	ActorID      string    `json:"actor_id"`
	Comment      string    `json:"comment,omitempty"`
	At           time.Time `json:"at"`
}

// WorkflowInstance tracks one entity moving through a workflow. Instances
// are owned by the engine and mutated only through Transition.
type WorkflowInstance struct {
	ID                string                   `json:"id"`
	WorkflowID        string                   `json:"workflow_id"`
	EntityType        string                   `json:"entity_type"`
	EntityID          string                   `json:"entity_id"`
	CurrentStateID    string                   `json:"current_state_id"`
	ActiveStates      []string                 `json:"active_states,omitempty"`
	StateHistory      []StateHistoryEntry      `json:"state_history"`
	TransitionHistory []TransitionHistoryEntry `json:"transition_history"`

	// TimeInState accumulates, per state id, the total time instances spent
	// in that state across visits. The open interval for the current state
	// is tracked by EnteredCurrentAt and folded in on the next transition.
	TimeInState      map[string]time.Duration `json:"time_in_state"`
	EnteredCurrentAt time.Time                `json:"entered_current_at"`
	IsCompleted      bool                     `json:"is_completed"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// InActiveState reports whether the given state is currently active,
// accounting for parallel workflows.
func (i *WorkflowInstance) InActiveState(stateID string) bool {
	if i.CurrentStateID == stateID {
		return true
	}

	for _, active := range i.ActiveStates {
		if active == stateID {
			return true
		}
	}

	return false
}
