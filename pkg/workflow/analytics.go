package workflow

import (
	"context"
	"sort"
	"time"
)

// abandonedAfter marks an incomplete instance abandoned once it has seen no
// activity for this long.
const abandonedAfter = 30 * 24 * time.Hour

// StateSLA is the SLA compliance summary for one state.
type StateSLA struct {
	StateID        string  `json:"state_id"`
	SLAMinutes     int     `json:"sla_minutes"`
	Visited        int     `json:"visited"`
	WithinSLA      int     `json:"within_sla"`
	ComplianceRate float64 `json:"compliance_rate"`
}

// Analytics summarizes the recorded history of one workflow definition.
type Analytics struct {
	WorkflowID         string                   `json:"workflow_id"`
	InstanceCount      int                      `json:"instance_count"`
	CompletedCount     int                      `json:"completed_count"`
	AbandonedCount     int                      `json:"abandoned_count"`
	CompletionRate     float64                  `json:"completion_rate"`
	AbandonmentRate    float64                  `json:"abandonment_rate"`
	AverageTimeInState map[string]time.Duration `json:"average_time_in_state"`

	// BottleneckStateID is the state with the highest average dwell time.
	BottleneckStateID string     `json:"bottleneck_state_id,omitempty"`
	SLACompliance     []StateSLA `json:"sla_compliance,omitempty"`
}

// Analytics computes average time-in-state, the bottleneck state,
// completion/abandonment rates, and SLA compliance for one workflow.
func (e *Engine) Analytics(ctx context.Context, workflowID string) (*Analytics, error) {
	def, err := e.definitions.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	instances, err := e.instances.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	result := &Analytics{
		WorkflowID:         workflowID,
		InstanceCount:      len(instances),
		AverageTimeInState: make(map[string]time.Duration),
	}

	if len(instances) == 0 {
		return result, nil
	}

	now := time.Now().UTC()

	totalTime := make(map[string]time.Duration)
	visits := make(map[string]int)

	slaVisited := make(map[string]int)
	slaWithin := make(map[string]int)

	for _, instance := range instances {
		if instance.IsCompleted {
			result.CompletedCount++
		} else if now.Sub(instance.UpdatedAt) > abandonedAfter {
			result.AbandonedCount++
		}

		for stateID, dwell := range instance.TimeInState {
			totalTime[stateID] += dwell
			visits[stateID]++
		}

		for _, state := range def.States {
			if state.SLAMinutes <= 0 {
				continue
			}

			dwell, visited := instance.TimeInState[state.ID]
			if !visited {
				continue
			}

			slaVisited[state.ID]++

			if dwell <= time.Duration(state.SLAMinutes)*time.Minute {
				slaWithin[state.ID]++
			}
		}
	}

	result.CompletionRate = float64(result.CompletedCount) / float64(len(instances))
	result.AbandonmentRate = float64(result.AbandonedCount) / float64(len(instances))

	var bottleneck string
	var bottleneckAvg time.Duration

	for stateID, total := range totalTime {
		avg := total / time.Duration(visits[stateID])
		result.AverageTimeInState[stateID] = avg

		if avg > bottleneckAvg {
			bottleneckAvg = avg
			bottleneck = stateID
		}
	}

	result.BottleneckStateID = bottleneck

	for _, state := range def.States {
		if state.SLAMinutes <= 0 || slaVisited[state.ID] == 0 {
			continue
		}

		result.SLACompliance = append(result.SLACompliance, StateSLA{
			StateID:        state.ID,
			SLAMinutes:     state.SLAMinutes,
			Visited:        slaVisited[state.ID],
			WithinSLA:      slaWithin[state.ID],
			ComplianceRate: float64(slaWithin[state.ID]) / float64(slaVisited[state.ID]),
		})
	}

	sort.Slice(result.SLACompliance, func(i, j int) bool {
		return result.SLACompliance[i].StateID < result.SLACompliance[j].StateID
	})

	return result, nil
}
