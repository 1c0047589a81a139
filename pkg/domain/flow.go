package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Flow is a named, intent-triggered graph of steps representing one
// scripted conversation. Steps are addressed by stable identifiers; the
// first record in Steps is the entry point.
type Flow struct {
	ID        string    `json:"id" yaml:"id"`
	BotID     string    `json:"botId" yaml:"botId"`
	Name      string    `json:"name" yaml:"name"`
	Intent    string    `json:"intent" yaml:"intent"`
	Steps     []Step    `json:"steps" yaml:"steps"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// WildcardIntent matches any first message when no exact intent does.
const WildcardIntent = "*"

// FlowRef is the summary the intent matcher works with.
type FlowRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Intent string `json:"intent"`
}

// Graph is a flow's step graph resolved for traversal: steps keyed by
// identifier plus the designated first step.
type Graph struct {
	First string
	steps map[string]Step
}

// Step returns the step with the given identifier.
func (g *Graph) Step(id string) (Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int {
	return len(g.steps)
}

// Compile resolves the flow's stringly-typed step links into a Graph.
// It rejects duplicate step identifiers, successor links that name no
// step, invalid validation patterns, and cycles composed entirely of
// non-blocking steps (which the walker could never leave).
func (f *Flow) Compile() (*Graph, error) {
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("flow %q has no steps", f.Name)
	}
	steps := make(map[string]Step, len(f.Steps))
	for _, s := range f.Steps {
		if _, dup := steps[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		steps[s.ID] = s
	}
	for _, s := range f.Steps {
		if s.NextID != "" {
			if _, ok := steps[s.NextID]; !ok {
				return nil, fmt.Errorf("step %q links to unknown step %q", s.ID, s.NextID)
			}
		}
		if s.NextIDOnFailure != "" {
			if _, ok := steps[s.NextIDOnFailure]; !ok {
				return nil, fmt.Errorf("step %q links to unknown failure step %q", s.ID, s.NextIDOnFailure)
			}
		}
		if s.Validations != nil && s.Validations.Regex != "" {
			if _, err := regexp.Compile(s.Validations.Regex); err != nil {
				return nil, fmt.Errorf("step %q has an invalid validation pattern: %w", s.ID, err)
			}
		}
	}
	if err := checkNonBlockingCycles(steps); err != nil {
		return nil, err
	}
	return &Graph{First: f.Steps[0].ID, steps: steps}, nil
}

// checkNonBlockingCycles walks the successor chain of every non-blocking
// step. A chain that revisits a step without passing a blocking one is a
// loop the walker would spin in forever within a single unit of work.
func checkNonBlockingCycles(steps map[string]Step) error {
	for id, start := range steps {
		if start.Blocking() {
			continue
		}
		seen := map[string]bool{id: true}
		cur := start
		for cur.NextID != "" {
			next := steps[cur.NextID]
			if next.Blocking() {
				break
			}
			if seen[next.ID] {
				return fmt.Errorf("steps form a cycle of non-blocking steps through %q", next.ID)
			}
			seen[next.ID] = true
			cur = next
		}
	}
	return nil
}
