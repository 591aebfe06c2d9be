package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// Execution describes one node run, as reported to observers.
type Execution struct {
	Node     *node.Node
	Inputs   value.Map
	Outputs  value.Map
	Duration time.Duration
}

// Failed reports whether the run produced an error output.
func (e Execution) Failed() bool { return node.Failed(e.Outputs) }

// Observer is notified about executions. Calls happen synchronously on the
// executing goroutine while the graph lock is held.
type Observer interface {
	NodeExecuted(ctx context.Context, e Execution)
	RunFinished(ctx context.Context, r *Report)
}

// Report summarises one ExecuteAll run.
type Report struct {
	// Starting lists nodes without incoming connections.
	Starting []string
	// Executed lists nodes in the order they ran.
	Executed []string
	// Failed lists executed nodes whose outputs carry an error.
	Failed []string
	// Pending lists nodes that never became ready.
	Pending []string
	// Passes is the number of scheduling passes performed.
	Passes int
	// Converged is true when every node ran.
	Converged bool
	Duration  time.Duration
}

// ResolveInputs builds the input map of a node from the current outputs of
// the nodes wired into it. Source outputs that do not exist are omitted.
func (g *Graph) ResolveInputs(id string) (value.Map, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return g.resolveInputsLocked(id), nil
}

func (g *Graph) resolveInputsLocked(id string) value.Map {
	inputs := make(value.Map)
	for _, c := range g.connections {
		if c.TargetNodeID != id {
			continue
		}
		src, ok := g.nodes[c.SourceNodeID]
		if !ok {
			continue
		}
		if v, ok := src.Output(c.SourceOutput); ok {
			inputs[c.TargetInput] = v
		}
	}
	return inputs
}

// ExecuteNode resolves the node's inputs and runs it once. Node failures
// are reported in the returned outputs; the error is only set when the
// node does not exist.
func (g *Graph) ExecuteNode(ctx context.Context, id string) (value.Map, error) {
	ctx = ctxlog.Ensure(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return g.executeLocked(ctx, id), nil
}

func (g *Graph) executeLocked(ctx context.Context, id string) value.Map {
	n := g.nodes[id]
	inputs := g.resolveInputsLocked(id)

	start := time.Now()
	outputs := n.Execute(ctx, inputs)
	exec := Execution{Node: n, Inputs: inputs, Outputs: outputs, Duration: time.Since(start)}

	for _, o := range g.observers {
		o.NodeExecuted(ctx, exec)
	}
	return outputs
}

// ExecuteAll runs every node whose upstream nodes have run, pass after
// pass, until all nodes ran, a pass makes no progress, or 2N passes were
// made. A failed node still counts as executed, so its dependents run with
// whatever outputs it produced.
func (g *Graph) ExecuteAll(ctx context.Context) *Report {
	ctx = ctxlog.Ensure(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	total := len(g.order)

	report := &Report{Starting: g.startingNodesLocked()}
	logger.Info("🚀 Starting graph execution.", "nodes", total, "connections", len(g.connections), "startingNodes", len(report.Starting))

	incoming := make(map[string][]string, total)
	for _, c := range g.connections {
		incoming[c.TargetNodeID] = append(incoming[c.TargetNodeID], c.SourceNodeID)
	}

	executed := make(map[string]bool, total)
	ready := func(id string) bool {
		for _, src := range incoming[id] {
			if !executed[src] {
				return false
			}
		}
		return true
	}

	maxPasses := 2 * total
	for len(executed) < total && report.Passes < maxPasses {
		if err := ctx.Err(); err != nil {
			logger.Warn("Graph execution interrupted.", "error", err, "unexecuted", total-len(executed))
			break
		}

		report.Passes++
		progressed := false
		for _, id := range g.order {
			if executed[id] || !ready(id) {
				continue
			}
			outputs := g.executeLocked(ctx, id)
			executed[id] = true
			progressed = true
			report.Executed = append(report.Executed, id)
			if node.Failed(outputs) {
				report.Failed = append(report.Failed, id)
			}
		}

		if !progressed {
			logger.Warn("Graph execution stalled, remaining nodes are in or behind a cycle.",
				"unexecuted", total-len(executed), "pass", report.Passes)
			break
		}
	}

	for _, id := range g.order {
		if !executed[id] {
			report.Pending = append(report.Pending, id)
		}
	}
	report.Converged = len(report.Pending) == 0
	report.Duration = time.Since(start)

	if report.Converged {
		logger.Info("🏁 Graph execution finished.", "executed", len(report.Executed), "failed", len(report.Failed), "passes", report.Passes, "duration", report.Duration)
	} else {
		logger.Warn("🏁 Graph execution finished incomplete.", "executed", len(report.Executed), "pending", len(report.Pending), "passes", report.Passes)
	}

	for _, o := range g.observers {
		o.RunFinished(ctx, report)
	}
	return report
}
