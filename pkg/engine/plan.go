package engine

import (
	"fmt"
	"strings"
)

// Plan is a dependency-ordered sequence of steps. It is built once per run
// from the activated step set and is immutable thereafter: the engine
// consumes it, reporting commands print it, nothing rewrites it.
type Plan struct {
	steps []Step
}

// NewPlan validates and orders the given steps into an executable plan.
// Prerequisites must form a DAG; cycles and unknown prerequisite names fail
// plan construction, never execution.
func NewPlan(steps []Step) (*Plan, error) {
	ordered, err := sortSteps(steps)
	if err != nil {
		return nil, err
	}
	return &Plan{steps: ordered}, nil
}

// Steps returns the ordered steps.
func (p *Plan) Steps() []Step {
	return p.steps
}

// Len returns the number of steps in the plan.
func (p *Plan) Len() int {
	return len(p.steps)
}

// Names returns the ordered step names.
func (p *Plan) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Contains reports whether the plan includes a step with the given name.
func (p *Plan) Contains(name string) bool {
	for _, s := range p.steps {
		if s.Name() == name {
			return true
		}
	}
	return false
}

// ToDOT generates a DOT representation of the step graph for visualization
// with Graphviz tools.
func (p *Plan) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Plan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for i, s := range p.steps {
		label := fmt.Sprintf("%d. %s", i+1, s.Name())
		color := "lightgray"
		if s.Policy() == PolicyFatal {
			color = "lightcoral"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
			s.Name(), label, color))
	}
	sb.WriteString("\n")

	for _, s := range p.steps {
		for _, req := range s.Requires() {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", req, s.Name()))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
