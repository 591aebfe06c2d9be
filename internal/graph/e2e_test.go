package graph_test

import (
	"os"
	"testing"

	"github.com/specialistvlad/nodegrid/internal/graph"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/plugin"
	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/internal/script"
	"github.com/specialistvlad/nodegrid/internal/testutil"
	"github.com/specialistvlad/nodegrid/internal/value"
	"github.com/specialistvlad/nodegrid/modules/logger"
	"github.com/specialistvlad/nodegrid/modules/static_input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadManifest(t *testing.T, path string) *plugin.Definition {
	t.Helper()
	src, err := os.ReadFile(path)
	require.NoError(t, err)
	defs, err := plugin.ParseManifest(testutil.Context(t), src, path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	return defs[0]
}

func TestEndToEnd_StaticIntoMath(t *testing.T) {
	// --- Arrange ---
	ctx := testutil.Context(t)
	math := loadManifest(t, "../../plugins/math.hcl")
	plugins := plugin.NewManager(plugin.NewMemoryStore(math), script.NewHCLEngine())
	require.NoError(t, plugins.Load(ctx))
	builtins := registry.New(&static_input.Module{}, &logger.Module{})

	g := graph.New()
	a, err := builtins.NewNode(node.KindStaticInput, value.Map{"raw": value.Text("42"), "kind": value.Text("number")})
	require.NoError(t, err)
	b, err := builtins.NewNode(node.KindStaticInput, value.Map{"raw": value.Text("8"), "kind": value.Text("number")})
	require.NoError(t, err)
	calc, err := plugins.CreateNode(math.ID)
	require.NoError(t, err)
	sink, err := builtins.NewNode(node.KindLogger, nil)
	require.NoError(t, err)

	// Added in reverse so the scheduler has to order them.
	for _, n := range []*node.Node{sink, calc, b, a} {
		require.NoError(t, g.AddNode(ctx, n))
	}
	for _, c := range [][4]string{
		{a.ID(), static_input.PinData, calc.ID(), "a"},
		{b.ID(), static_input.PinData, calc.ID(), "b"},
		{calc.ID(), "sum", sink.ID(), "sum"},
		{calc.ID(), "quotient", sink.ID(), "quotient"},
	} {
		_, err := g.Connect(ctx, c[0], c[1], c[2], c[3])
		require.NoError(t, err)
	}

	// --- Act ---
	report := g.ExecuteAll(ctx)

	// --- Assert ---
	require.True(t, report.Converged)
	assert.Empty(t, report.Failed)
	assert.Equal(t, value.Map{static_input.PinData: value.Number(42)}, a.Outputs())
	assert.Equal(t, value.Map{
		"sum":        value.Number(50),
		"difference": value.Number(34),
		"product":    value.Number(336),
		"quotient":   value.Number(5.25),
	}, calc.Outputs())

	last := sink.Behavior().(*logger.Behavior).LastMessage()
	assert.Contains(t, last, "quotient=5.25, sum=50")
}

func TestEndToEnd_RequiredInputMissing(t *testing.T) {
	ctx := testutil.Context(t)
	text := loadManifest(t, "../../plugins/text.hcl")
	plugins := plugin.NewManager(plugin.NewMemoryStore(text), script.NewHCLEngine())
	require.NoError(t, plugins.Load(ctx))

	g := graph.New()
	n, err := plugins.CreateNode(text.ID)
	require.NoError(t, err)
	require.NoError(t, g.AddNode(ctx, n))

	out, err := g.ExecuteNode(ctx, n.ID())

	require.NoError(t, err)
	assert.Equal(t, value.Map{node.ErrorKey: value.Text("Required input 'text' is missing")}, out)
}

func TestEndToEnd_TextPlugin(t *testing.T) {
	ctx := testutil.Context(t)
	text := loadManifest(t, "../../plugins/text.hcl")
	plugins := plugin.NewManager(plugin.NewMemoryStore(text), script.NewHCLEngine())
	require.NoError(t, plugins.Load(ctx))
	builtins := registry.New(&static_input.Module{})

	g := graph.New()
	src, err := builtins.NewNode(node.KindStaticInput, value.Map{"raw": value.Text("Hello big world")})
	require.NoError(t, err)
	n, err := plugins.CreateNode(text.ID)
	require.NoError(t, err)
	require.NoError(t, g.AddNode(ctx, src))
	require.NoError(t, g.AddNode(ctx, n))
	_, err = g.Connect(ctx, src.ID(), static_input.PinData, n.ID(), "text")
	require.NoError(t, err)

	g.ExecuteAll(ctx)

	assert.Equal(t, value.Map{
		"upper":  value.Text("HELLO BIG WORLD"),
		"lower":  value.Text("hello big world"),
		"length": value.Number(15),
		"words":  value.Number(3),
	}, n.Outputs())
}
