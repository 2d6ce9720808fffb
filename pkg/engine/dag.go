package engine

import (
	"fmt"
	"strings"
)

// sortSteps orders steps so that every step appears after all of its
// prerequisites. Ties are broken by declaration order (stable), so two plans
// built from the same step set are always identical.
//
// Returns a permanent CYCLIC_DEPENDENCY error naming the cycle when no valid
// order exists, and a VALIDATION_ERROR when a step requires an unknown name.
func sortSteps(steps []Step) ([]Step, error) {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		name := s.Name()
		if name == "" {
			return nil, NewPermanentError("step has empty name", nil).
				WithCode(ErrCodeValidation)
		}
		if _, exists := index[name]; exists {
			return nil, NewPermanentError(fmt.Sprintf("duplicate step name: %s", name), nil).
				WithCode(ErrCodeValidation)
		}
		index[name] = i
	}

	inDegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		for _, req := range s.Requires() {
			j, ok := index[req]
			if !ok {
				return nil, NewPermanentError(
					fmt.Sprintf("step %s requires unknown step %s", s.Name(), req), nil).
					WithCode(ErrCodeValidation).WithStep(s.Name())
			}
			dependents[j] = append(dependents[j], i)
			inDegree[i]++
		}
	}

	// Kahn's algorithm, scanning in declaration order each round so the
	// output is deterministic for identical inputs.
	ordered := make([]Step, 0, len(steps))
	emitted := make([]bool, len(steps))
	for len(ordered) < len(steps) {
		picked := -1
		for i := range steps {
			if !emitted[i] && inDegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			cycle := findCycle(steps, index)
			return nil, NewPermanentError(
				fmt.Sprintf("cyclic step dependency: %s", formatCycle(cycle)), nil).
				WithCode(ErrCodeCyclicDependency)
		}
		emitted[picked] = true
		ordered = append(ordered, steps[picked])
		for _, dep := range dependents[picked] {
			inDegree[dep]--
		}
	}

	return ordered, nil
}

// findCycle locates one dependency cycle via depth-first search. Called only
// after the topological sort has stalled, so a cycle is known to exist.
func findCycle(steps []Step, index map[string]int) []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, len(steps))
	var path []string

	var visit func(i int) []string
	visit = func(i int) []string {
		state[i] = visiting
		path = append(path, steps[i].Name())
		for _, req := range steps[i].Requires() {
			j := index[req]
			switch state[j] {
			case visiting:
				// Trim the path down to the cycle entry point.
				for k, name := range path {
					if name == req {
						return append(path[k:], req)
					}
				}
				return append(path, req)
			case unvisited:
				if cycle := visit(j); cycle != nil {
					return cycle
				}
			}
		}
		state[i] = done
		path = path[:len(path)-1]
		return nil
	}

	for i := range steps {
		if state[i] == unvisited {
			path = path[:0]
			if cycle := visit(i); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return "unknown"
	}
	return strings.Join(cycle, " -> ")
}
