package graph

import "fmt"

// DetectCycles reports the first cycle found in the connection topology.
// Cycles are legal in a graph; the scheduler leaves their nodes pending.
// This is a diagnostic for callers that want to warn before a run.
func (g *Graph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dependents := make(map[string][]string, len(g.order))
	for _, c := range g.connections {
		dependents[c.SourceNodeID] = append(dependents[c.SourceNodeID], c.TargetNodeID)
	}

	// Classic depth-first search with three colours:
	// permanent: fully visited and not part of a cycle.
	// temporary: on the current recursion stack.
	// unvisited: everything else.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return fmt.Errorf("%w involving node '%s'", ErrCycle, id)
		}

		temporary[id] = true
		for _, next := range dependents[id] {
			if err := visit(next); err != nil {
				return err
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, id := range g.order {
		if !permanent[id] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
