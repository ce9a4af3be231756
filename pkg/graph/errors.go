package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateDependency = errors.New("dependency already exists")
	ErrTaskNotFound        = errors.New("task not found")
	ErrCrossProject        = errors.New("dependency tasks belong to different projects")
)

// CycleError rejects an insert that would close a cycle in the scheduling
// subgraph. Cycle holds the task ids along the cycle, starting and ending at
// the same task.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency would create a cycle: %s", strings.Join(e.Cycle, " -> "))
}

// IsCycleError reports whether err is a cycle rejection.
func IsCycleError(err error) bool {
	var cycleErr *CycleError

	return errors.As(err, &cycleErr)
}
