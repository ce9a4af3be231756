package graph

import (
	"sort"

	"github.com/planfold/planfold/pkg/models"
)

// arena maps task ids to dense indices so the traversal runs on int slices
// instead of string-keyed maps.
type arena struct {
	ids     []string
	indexOf map[string]int
}

func newArena() *arena {
	return &arena{indexOf: make(map[string]int)}
}

func (a *arena) index(id string) int {
	idx, ok := a.indexOf[id]
	if !ok {
		idx = len(a.ids)
		a.ids = append(a.ids, id)
		a.indexOf[id] = idx
	}

	return idx
}

// schedulingEdges normalizes the scheduling subset of deps into
// predecessor -> successor adjacency over arena indices.
func schedulingEdges(deps []*models.Dependency, a *arena) [][]int {
	type edge struct{ from, to int }

	var edges []edge

	for _, dep := range deps {
		pred, succ, ok := dep.PredecessorSuccessor()
		if !ok {
			continue
		}

		edges = append(edges, edge{from: a.index(pred), to: a.index(succ)})
	}

	adjacency := make([][]int, len(a.ids))
	for _, e := range edges {
		adjacency[e.from] = append(adjacency[e.from], e.to)
	}

	// Deterministic traversal order regardless of storage iteration order.
	for _, next := range adjacency {
		sort.Ints(next)
	}

	return adjacency
}

const (
	colorWhite = iota // unvisited
	colorGray         // on the active path
	colorBlack        // fully explored
)

// findCycles runs an iterative DFS with an explicit stack over the
// scheduling subgraph. A gray node reached again closes a cycle; black
// nodes are skipped. Each cycle is reported once, as the id sequence along
// the active path closed back to its start.
func findCycles(deps []*models.Dependency) [][]string {
	a := newArena()
	adjacency := schedulingEdges(deps, a)

	color := make([]int, len(a.ids))
	onPath := make([]int, 0, len(a.ids))

	var cycles [][]string

	type frame struct {
		node int
		next int
	}

	for start := range a.ids {
		if color[start] != colorWhite {
			continue
		}

		stack := []frame{{node: start}}
		color[start] = colorGray
		onPath = append(onPath[:0], start)

		for len(stack) > 0 {
			top := &stack[len(stack)-1]

			if top.next < len(adjacency[top.node]) {
				neighbor := adjacency[top.node][top.next]
				top.next++

				switch color[neighbor] {
				case colorGray:
					cycles = append(cycles, extractCycle(a, onPath, neighbor))
				case colorWhite:
					color[neighbor] = colorGray
					onPath = append(onPath, neighbor)
					stack = append(stack, frame{node: neighbor})
				}

				continue
			}

			color[top.node] = colorBlack
			onPath = onPath[:len(onPath)-1]
			stack = stack[:len(stack)-1]
		}
	}

	return cycles
}

// extractCycle slices the active path from the reentered node to the top
// and closes it back on itself.
func extractCycle(a *arena, onPath []int, reentered int) []string {
	from := 0

	for i, node := range onPath {
		if node == reentered {
			from = i

			break
		}
	}

	cycle := make([]string, 0, len(onPath)-from+1)
	for _, node := range onPath[from:] {
		cycle = append(cycle, a.ids[node])
	}

	return append(cycle, a.ids[reentered])
}
