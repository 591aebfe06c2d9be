package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/testutil"
	"github.com/specialistvlad/nodegrid/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoBehavior copies its inputs to its outputs and adds a fixed "out"
// entry. Runs are appended to the shared trace.
type echoBehavior struct {
	name  string
	trace *[]string
	fail  bool
}

func (e *echoBehavior) Kind() node.Kind { return node.KindStaticInput }
func (e *echoBehavior) OutputPinNames() []string { return []string{"out", "in"} }
func (e *echoBehavior) Config() value.Map { return value.Map{} }
func (e *echoBehavior) Configure(value.Map) error { return nil }
func (e *echoBehavior) Process(_ context.Context, inputs value.Map) (value.Map, error) {
	if e.trace != nil {
		*e.trace = append(*e.trace, e.name)
	}
	if e.fail {
		return nil, errors.New(e.name + " failed")
	}
	out := inputs.Clone()
	out["out"] = value.Text(e.name)
	return out, nil
}

func addEcho(t *testing.T, g *Graph, name string, trace *[]string) *node.Node {
	t.Helper()
	n := node.New(&echoBehavior{name: name, trace: trace}, node.WithID(name), node.WithName(name))
	require.NoError(t, g.AddNode(testutil.Context(t), n))
	return n
}

func connect(t *testing.T, g *Graph, src, srcPin, dst, dstPin string) Connection {
	t.Helper()
	c, err := g.Connect(testutil.Context(t), src, srcPin, dst, dstPin)
	require.NoError(t, err)
	return c
}

func TestAddNode(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()
	n := addEcho(t, g, "a", nil)

	assert.ErrorIs(t, g.AddNode(ctx, n), ErrDuplicateNode)
	assert.ErrorIs(t, g.AddNode(ctx, nil), ErrNilNode)

	got, ok := g.Node("a")
	require.True(t, ok)
	assert.Same(t, n, got)
	assert.Equal(t, 1, g.Len())
}

func TestConnect_Validation(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()
	addEcho(t, g, "a", nil)
	addEcho(t, g, "b", nil)

	testCases := []struct {
		name    string
		c       Connection
		wantErr error
	}{
		{"unknown source", Connection{SourceNodeID: "x", SourceOutput: "out", TargetNodeID: "b", TargetInput: "in"}, ErrNodeNotFound},
		{"unknown target", Connection{SourceNodeID: "a", SourceOutput: "out", TargetNodeID: "x", TargetInput: "in"}, ErrNodeNotFound},
		{"unknown output pin", Connection{SourceNodeID: "a", SourceOutput: "nope", TargetNodeID: "b", TargetInput: "in"}, ErrUnknownPin},
		{"self loop", Connection{SourceNodeID: "a", SourceOutput: "out", TargetNodeID: "a", TargetInput: "in"}, ErrSelfLoop},
		{"empty input pin", Connection{SourceNodeID: "a", SourceOutput: "out", TargetNodeID: "b"}, ErrInvalidConnection},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.AddConnection(ctx, tc.c)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("error output can always be wired", func(t *testing.T) {
		_, err := g.Connect(ctx, "a", node.ErrorKey, "b", "upstream_error")
		assert.NoError(t, err)
	})

	t.Run("duplicate connection id", func(t *testing.T) {
		c := connect(t, g, "a", "out", "b", "x")
		_, err := g.AddConnection(ctx, c)
		assert.ErrorIs(t, err, ErrDuplicateConnection)
	})
}

func TestRemoveNode_CascadesConnections(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()
	addEcho(t, g, "a", nil)
	addEcho(t, g, "b", nil)
	addEcho(t, g, "c", nil)
	connect(t, g, "a", "out", "b", "in")
	connect(t, g, "b", "out", "c", "in")
	keep := connect(t, g, "a", "out", "c", "other")

	require.NoError(t, g.RemoveNode(ctx, "b"))

	assert.Equal(t, []Connection{keep}, g.Connections())
	_, ok := g.Node("b")
	assert.False(t, ok)
	assert.ErrorIs(t, g.RemoveNode(ctx, "b"), ErrNodeNotFound)

	for _, c := range g.Connections() {
		_, srcOK := g.Node(c.SourceNodeID)
		_, dstOK := g.Node(c.TargetNodeID)
		assert.True(t, srcOK && dstOK, "dangling connection %s", c)
	}
}

func TestRemoveConnection(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()
	addEcho(t, g, "a", nil)
	addEcho(t, g, "b", nil)
	c := connect(t, g, "a", "out", "b", "in")

	require.NoError(t, g.RemoveConnection(ctx, c.ID))
	assert.Empty(t, g.Connections())
	assert.ErrorIs(t, g.RemoveConnection(ctx, c.ID), ErrConnectionNotFound)
}

func TestResolveInputs(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()
	addEcho(t, g, "a", nil)
	addEcho(t, g, "b", nil)
	addEcho(t, g, "c", nil)
	connect(t, g, "a", "out", "c", "left")
	connect(t, g, "b", "out", "c", "right")

	t.Run("missing source outputs are omitted", func(t *testing.T) {
		inputs, err := g.ResolveInputs("c")
		require.NoError(t, err)
		assert.Empty(t, inputs)
	})

	_, err := g.ExecuteNode(ctx, "a")
	require.NoError(t, err)
	_, err = g.ExecuteNode(ctx, "b")
	require.NoError(t, err)

	t.Run("wired outputs become inputs", func(t *testing.T) {
		inputs, err := g.ResolveInputs("c")
		require.NoError(t, err)
		assert.Equal(t, value.Map{"left": value.Text("a"), "right": value.Text("b")}, inputs)
	})

	t.Run("last created connection wins for a shared input", func(t *testing.T) {
		connect(t, g, "b", "out", "c", "left")

		inputs, err := g.ResolveInputs("c")
		require.NoError(t, err)
		assert.Equal(t, value.Text("b"), inputs["left"])
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := g.ResolveInputs("missing")
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestExecuteNode_NotFound(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()

	out, err := g.ExecuteNode(ctx, "ghost")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestExecute_WithoutLoggerInContext(t *testing.T) {
	// --- Arrange ---
	g := New()
	addEcho(t, g, "a", nil)
	b := node.New(&echoBehavior{name: "b", fail: true}, node.WithID("b"))
	require.NoError(t, g.AddNode(context.Background(), b))
	connect(t, g, "a", "out", "b", "in")

	// --- Act & Assert ---
	assert.NotPanics(t, func() {
		out, err := g.ExecuteNode(context.Background(), "b")
		require.NoError(t, err)
		assert.True(t, node.Failed(out))

		report := g.ExecuteAll(context.Background())
		assert.True(t, report.Converged)
		assert.Equal(t, []string{"b"}, report.Failed)
	})
}

func TestExecuteAll_TopologicalOrder(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()
	var trace []string

	// Inserted out of dependency order on purpose.
	addEcho(t, g, "sink", &trace)
	addEcho(t, g, "mid", &trace)
	addEcho(t, g, "source", &trace)
	addEcho(t, g, "lonely", &trace)
	connect(t, g, "source", "out", "mid", "in")
	connect(t, g, "mid", "out", "sink", "in")

	report := g.ExecuteAll(ctx)

	assert.True(t, report.Converged)
	assert.Empty(t, report.Pending)
	assert.Equal(t, []string{"source", "lonely"}, report.Starting)
	assert.LessOrEqual(t, report.Passes, 2*g.Len())

	pos := make(map[string]int)
	for i, id := range trace {
		pos[id] = i
	}
	require.Len(t, trace, 4, "every node runs exactly once")
	assert.Less(t, pos["source"], pos["mid"])
	assert.Less(t, pos["mid"], pos["sink"])
	assert.Equal(t, trace, report.Executed)

	sink, _ := g.Node("sink")
	v, _ := sink.Output("in")
	assert.Equal(t, value.Text("mid"), v, "data flowed through the chain")
}

func TestExecuteAll_CycleTerminates(t *testing.T) {
	ctx, logs := testutil.NewContext(t)
	g := New()
	var trace []string
	addEcho(t, g, "a", &trace)
	addEcho(t, g, "b", &trace)
	addEcho(t, g, "c", &trace)
	connect(t, g, "a", "out", "b", "in")
	connect(t, g, "b", "out", "c", "in")
	connect(t, g, "c", "out", "a", "in")

	report := g.ExecuteAll(ctx)

	assert.Empty(t, trace, "no node of the cycle runs")
	assert.False(t, report.Converged)
	assert.Equal(t, []string{"a", "b", "c"}, report.Pending)
	assert.LessOrEqual(t, report.Passes, 6)
	assert.Contains(t, logs.String(), "Graph execution stalled")
	assert.ErrorIs(t, g.DetectCycles(), ErrCycle)
}

func TestExecuteAll_PartialWithCycleDownstream(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()
	var trace []string
	addEcho(t, g, "root", &trace)
	addEcho(t, g, "x", &trace)
	addEcho(t, g, "y", &trace)
	connect(t, g, "root", "out", "x", "in")
	connect(t, g, "y", "out", "x", "other")
	connect(t, g, "x", "out", "y", "in")

	report := g.ExecuteAll(ctx)

	assert.Equal(t, []string{"root"}, trace)
	assert.Equal(t, []string{"x", "y"}, report.Pending)
}

func TestExecuteAll_FailedNodeCountsAsExecuted(t *testing.T) {
	ctx := testutil.Context(t)
	g := New()
	var trace []string

	bad := node.New(&echoBehavior{name: "bad", trace: &trace, fail: true}, node.WithID("bad"))
	require.NoError(t, g.AddNode(ctx, bad))
	addEcho(t, g, "after", &trace)
	connect(t, g, "bad", "out", "after", "in")
	connect(t, g, "bad", node.ErrorKey, "after", "why")

	report := g.ExecuteAll(ctx)

	assert.True(t, report.Converged)
	assert.Equal(t, []string{"bad", "after"}, trace)
	assert.Equal(t, []string{"bad"}, report.Failed)

	after, _ := g.Node("after")
	outputs := after.Outputs()
	assert.NotContains(t, outputs, "in", "missing upstream output is omitted")
	assert.Equal(t, value.Text("bad failed"), outputs["why"])
}

func TestExecuteAll_Empty(t *testing.T) {
	report := New().ExecuteAll(testutil.Context(t))
	assert.True(t, report.Converged)
	assert.Zero(t, report.Passes)
}

type recordingObserver struct {
	executions []Execution
	reports    []*Report
}

func (r *recordingObserver) NodeExecuted(_ context.Context, e Execution) {
	r.executions = append(r.executions, e)
}

func (r *recordingObserver) RunFinished(_ context.Context, rep *Report) {
	r.reports = append(r.reports, rep)
}

func TestObserver(t *testing.T) {
	ctx := testutil.Context(t)
	obs := &recordingObserver{}
	g := New(WithObserver(obs))
	addEcho(t, g, "a", nil)
	addEcho(t, g, "b", nil)
	connect(t, g, "a", "out", "b", "in")

	g.ExecuteAll(ctx)

	require.Len(t, obs.executions, 2)
	assert.Equal(t, "a", obs.executions[0].Node.ID())
	assert.Equal(t, value.Map{"in": value.Text("a")}, obs.executions[1].Inputs)
	assert.False(t, obs.executions[1].Failed())
	require.Len(t, obs.reports, 1)
	assert.True(t, obs.reports[0].Converged)
}

func TestDetectCycles_Acyclic(t *testing.T) {
	g := New()
	addEcho(t, g, "a", nil)
	addEcho(t, g, "b", nil)
	addEcho(t, g, "c", nil)
	connect(t, g, "a", "out", "b", "in")
	connect(t, g, "a", "out", "c", "in")
	connect(t, g, "b", "out", "c", "other")

	assert.NoError(t, g.DetectCycles())
}
