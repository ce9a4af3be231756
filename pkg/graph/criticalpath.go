package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/planfold/planfold/pkg/models"
)

// TaskSchedule is the CPM result for one task. All values are whole days
// relative to the project start (day 0).
type TaskSchedule struct {
	TaskID         string `json:"task_id"`
	DurationDays   int    `json:"duration_days"`
	EarliestStart  int    `json:"earliest_start"`
	EarliestFinish int    `json:"earliest_finish"`
	LatestStart    int    `json:"latest_start"`
	LatestFinish   int    `json:"latest_finish"`
	SlackDays      int    `json:"slack_days"`
	Critical       bool   `json:"critical"`
}

// CriticalPathResult is the full CPM output for a project.
type CriticalPathResult struct {
	Tasks             []TaskSchedule `json:"tasks"`
	CriticalPath      []string       `json:"critical_path"`
	TotalDurationDays int            `json:"total_duration_days"`
}

// CriticalPath runs a two-pass CPM over the project's scheduling subgraph.
// durations maps task id to duration in days; tasks without an entry get
// Options.DefaultDurationDays. Tasks appearing only in durations are
// treated as isolated nodes.
func (e *Engine) CriticalPath(ctx context.Context, projectID string, durations map[string]int) (*CriticalPathResult, error) {
	snapshot, err := e.deps.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project dependencies: %w", err)
	}

	return e.computeCriticalPath(snapshot, durations)
}

func (e *Engine) computeCriticalPath(deps []*models.Dependency, durations map[string]int) (*CriticalPathResult, error) {
	a := newArena()

	type edge struct {
		from, to, lag int
	}

	var edges []edge

	for _, dep := range deps {
		pred, succ, ok := dep.PredecessorSuccessor()
		if !ok {
			continue
		}

		edges = append(edges, edge{from: a.index(pred), to: a.index(succ), lag: dep.LagDays})
	}

	// Include tasks with durations but no edges.
	durationIDs := make([]string, 0, len(durations))
	for id := range durations {
		durationIDs = append(durationIDs, id)
	}

	sort.Strings(durationIDs)

	for _, id := range durationIDs {
		a.index(id)
	}

	n := len(a.ids)
	if n == 0 {
		return &CriticalPathResult{Tasks: []TaskSchedule{}, CriticalPath: []string{}}, nil
	}

	outgoing := make([][]edge, n)
	incoming := make([][]edge, n)
	indegree := make([]int, n)

	for _, ed := range edges {
		outgoing[ed.from] = append(outgoing[ed.from], ed)
		incoming[ed.to] = append(incoming[ed.to], ed)
		indegree[ed.to]++
	}

	// Kahn's algorithm. The queue stays sorted so results are deterministic
	// for equal-slack orderings.
	queue := make([]int, 0, n)
	for node := 0; node < n; node++ {
		if indegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]int, 0, n)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, ed := range outgoing[node] {
			indegree[ed.to]--
			if indegree[ed.to] == 0 {
				queue = append(queue, ed.to)
			}
		}
	}

	if len(order) < n {
		cycles := findCycles(deps)
		if len(cycles) > 0 {
			return nil, &CycleError{Cycle: cycles[0]}
		}

		return nil, &CycleError{}
	}

	duration := make([]int, n)
	for node, id := range a.ids {
		d, ok := durations[id]
		if !ok || d <= 0 {
			d = e.opts.DefaultDurationDays
		}

		duration[node] = d
	}

	// Forward pass.
	earliestStart := make([]int, n)
	earliestFinish := make([]int, n)

	for _, node := range order {
		es := 0

		for _, ed := range incoming[node] {
			if candidate := earliestFinish[ed.from] + ed.lag; candidate > es {
				es = candidate
			}
		}

		earliestStart[node] = es
		earliestFinish[node] = es + duration[node]
	}

	projectEnd := 0
	for _, ef := range earliestFinish {
		if ef > projectEnd {
			projectEnd = ef
		}
	}

	// Backward pass.
	latestFinish := make([]int, n)
	latestStart := make([]int, n)

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		lf := projectEnd

		for _, ed := range outgoing[node] {
			if candidate := latestStart[ed.to] - ed.lag; candidate < lf {
				lf = candidate
			}
		}

		latestFinish[node] = lf
		latestStart[node] = lf - duration[node]
	}

	tasks := make([]TaskSchedule, 0, n)

	for node, id := range a.ids {
		slack := latestStart[node] - earliestStart[node]

		tasks = append(tasks, TaskSchedule{
			TaskID:         id,
			DurationDays:   duration[node],
			EarliestStart:  earliestStart[node],
			EarliestFinish: earliestFinish[node],
			LatestStart:    latestStart[node],
			LatestFinish:   latestFinish[node],
			SlackDays:      slack,
			Critical:       slack == 0,
		})
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].EarliestStart != tasks[j].EarliestStart {
			return tasks[i].EarliestStart < tasks[j].EarliestStart
		}

		return tasks[i].TaskID < tasks[j].TaskID
	})

	critical := make([]string, 0)

	for _, task := range tasks {
		if task.Critical {
			critical = append(critical, task.TaskID)
		}
	}

	return &CriticalPathResult{
		Tasks:             tasks,
		CriticalPath:      critical,
		TotalDurationDays: projectEnd,
	}, nil
}

// ExportEdge is one dependency edge in a graph export.
type ExportEdge struct {
	ID           string                `json:"id"`
	SourceTaskID string                `json:"source_task_id"`
	TargetTaskID string                `json:"target_task_id"`
	Type         models.DependencyType `json:"type"`
	LagDays      int                   `json:"lag_days"`
	Scheduling   bool                  `json:"scheduling"`
}

// GraphExport is the full project graph with CPM annotations, shaped for
// rendering clients.
type GraphExport struct {
	ProjectID         string         `json:"project_id"`
	Nodes             []TaskSchedule `json:"nodes"`
	Edges             []ExportEdge   `json:"edges"`
	CriticalPath      []string       `json:"critical_path"`
	TotalDurationDays int            `json:"total_duration_days"`
}

// Export returns every active edge of the project plus CPM annotations on
// the scheduling subgraph.
func (e *Engine) Export(ctx context.Context, projectID string, durations map[string]int) (*GraphExport, error) {
	snapshot, err := e.deps.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project dependencies: %w", err)
	}

	result, err := e.computeCriticalPath(snapshot, durations)
	if err != nil {
		return nil, err
	}

	edges := make([]ExportEdge, 0, len(snapshot))

	for _, dep := range snapshot {
		edges = append(edges, ExportEdge{
			ID:           dep.ID,
			SourceTaskID: dep.SourceTaskID,
			TargetTaskID: dep.TargetTaskID,
			Type:         dep.Type,
			LagDays:      dep.LagDays,
			Scheduling:   dep.Type.Scheduling(),
		})
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return &GraphExport{
		ProjectID:         projectID,
		Nodes:             result.Tasks,
		Edges:             edges,
		CriticalPath:      result.CriticalPath,
		TotalDurationDays: result.TotalDurationDays,
	}, nil
}
