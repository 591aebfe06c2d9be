// Package metrics counts node executions and graph runs with expvar.
package metrics

import (
	"context"
	"expvar"
	"net/http"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/graph"
)

// Collector is a graph.Observer that keeps execution counters.
type Collector struct {
	vars *expvar.Map

	nodesExecuted  *expvar.Int
	nodesFailed    *expvar.Int
	runs           *expvar.Int
	runsIncomplete *expvar.Int
	executedByKind *expvar.Map
	failedByKind   *expvar.Map
	nodeTimeNanos  *expvar.Int
	lastRun        *expvar.Map
}

// New creates an unpublished collector.
func New() *Collector {
	c := &Collector{
		vars:           new(expvar.Map).Init(),
		nodesExecuted:  new(expvar.Int),
		nodesFailed:    new(expvar.Int),
		runs:           new(expvar.Int),
		runsIncomplete: new(expvar.Int),
		executedByKind: new(expvar.Map).Init(),
		failedByKind:   new(expvar.Map).Init(),
		nodeTimeNanos:  new(expvar.Int),
		lastRun:        new(expvar.Map).Init(),
	}
	c.vars.Set("nodes_executed", c.nodesExecuted)
	c.vars.Set("nodes_failed", c.nodesFailed)
	c.vars.Set("runs", c.runs)
	c.vars.Set("runs_incomplete", c.runsIncomplete)
	c.vars.Set("executed_by_kind", c.executedByKind)
	c.vars.Set("failed_by_kind", c.failedByKind)
	c.vars.Set("node_time_ns", c.nodeTimeNanos)
	c.vars.Set("last_run", c.lastRun)
	return c
}

var (
	publishMu sync.Mutex
	published = map[string]*Collector{}
)

// Published returns the collector exported under name, creating and
// publishing it on first use. expvar names are process-global, so repeated
// calls share one collector.
func Published(name string) *Collector {
	publishMu.Lock()
	defer publishMu.Unlock()

	if c, ok := published[name]; ok {
		return c
	}
	c := New()
	expvar.Publish(name, c.vars)
	published[name] = c
	return c
}

// NodeExecuted implements graph.Observer.
func (c *Collector) NodeExecuted(_ context.Context, e graph.Execution) {
	kind := string(e.Node.Kind())
	c.nodesExecuted.Add(1)
	c.executedByKind.Add(kind, 1)
	c.nodeTimeNanos.Add(e.Duration.Nanoseconds())
	if e.Failed() {
		c.nodesFailed.Add(1)
		c.failedByKind.Add(kind, 1)
	}
}

// RunFinished implements graph.Observer.
func (c *Collector) RunFinished(_ context.Context, r *graph.Report) {
	c.runs.Add(1)
	if !r.Converged {
		c.runsIncomplete.Add(1)
	}

	set := func(key string, v int64) {
		i := new(expvar.Int)
		i.Set(v)
		c.lastRun.Set(key, i)
	}
	set("executed", int64(len(r.Executed)))
	set("failed", int64(len(r.Failed)))
	set("pending", int64(len(r.Pending)))
	set("passes", int64(r.Passes))
	set("duration_ns", r.Duration.Nanoseconds())
}

// String renders the collector as JSON, the expvar format.
func (c *Collector) String() string { return c.vars.String() }

// Handler serves every published expvar variable.
func Handler() http.Handler { return expvar.Handler() }
