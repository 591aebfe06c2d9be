package graphfile

import (
	"encoding/json"
	"path/filepath"
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

const upperID = "2b0c9d6e-8a1f-4e37-b5c2-9d8e7f6a5b41"

func upperPlugin() *plugin.Definition {
	return &plugin.Definition{
		ID:      upperID,
		Name:    "Upper",
		Version: "1.0.0",
		Inputs: []plugin.InputPin{
			{Name: "text", Kind: plugin.DataString, Required: true},
		},
		Outputs: []plugin.OutputPin{
			{Name: "result", Kind: plugin.DataString},
		},
		Script:         "result = format(\"%s%s\", config.prefix, upper(inputs.text))",
		ConfigDefaults: value.Map{"prefix": value.Text("")},
	}
}

func newLoader(t *testing.T) *Loader {
	t.Helper()
	plugins := plugin.NewManager(plugin.NewMemoryStore(upperPlugin()), script.NewHCLEngine())
	require.NoError(t, plugins.Load(testutil.Context(t)))
	return &Loader{
		Plugins:  plugins,
		Builtins: registry.New(&static_input.Module{}, &logger.Module{}),
	}
}

func buildGraph(t *testing.T, l *Loader) *graph.Graph {
	t.Helper()
	ctx := testutil.Context(t)
	g := graph.New()

	src, err := l.Builtins.NewNode(node.KindStaticInput, value.Map{"raw": value.Text("hi")},
		node.WithID("src"), node.WithName("Greeting"), node.WithPosition(node.Position{X: 10, Y: 20}))
	require.NoError(t, err)
	up, err := l.Plugins.CreateNode(upperID, node.WithID("up"), node.WithPosition(node.Position{X: 200, Y: 20}))
	require.NoError(t, err)
	require.NoError(t, up.Configure(value.Map{"prefix": value.Text(">> ")}))

	require.NoError(t, g.AddNode(ctx, src))
	require.NoError(t, g.AddNode(ctx, up))
	_, err = g.AddConnection(ctx, graph.Connection{
		ID: "c1", SourceNodeID: "src", SourceOutput: static_input.PinData, TargetNodeID: "up", TargetInput: "text",
	})
	require.NoError(t, err)
	return g
}

func TestEncode(t *testing.T) {
	l := newLoader(t)
	g := buildGraph(t, l)

	doc := Encode(g)

	require.Len(t, doc.Nodes, 2)
	assert.Equal(t, "static_input", doc.Nodes[0].Type)
	assert.Nil(t, doc.Nodes[0].PluginID)
	assert.Equal(t, node.Position{X: 10, Y: 20}, doc.Nodes[0].Position)
	assert.Equal(t, "plugin", doc.Nodes[1].Type)
	require.NotNil(t, doc.Nodes[1].PluginID)
	assert.Equal(t, upperID, *doc.Nodes[1].PluginID)
	assert.Equal(t, "Upper", doc.Nodes[1].Name)
	assert.Equal(t, []ConnectionRecord{{
		ID: "c1", SourceNodeID: "src", SourceOutput: "data", TargetNodeID: "up", TargetInput: "text",
	}}, doc.Connections)

	data, err := Marshal(g)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	conn := generic["connections"].([]any)[0].(map[string]any)
	assert.Equal(t, "src", conn["source_node_id"])
	assert.Equal(t, "text", conn["target_input"])
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	// --- Arrange ---
	ctx := testutil.Context(t)
	l := newLoader(t)
	original := buildGraph(t, l)
	path := filepath.Join(t.TempDir(), "nested", "graph.json")

	// --- Act ---
	require.NoError(t, Save(original, path))
	loaded, err := l.Load(ctx, path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, Encode(original), Encode(loaded))

	report := loaded.ExecuteAll(ctx)
	require.True(t, report.Converged)
	up, _ := loaded.Node("up")
	assert.Equal(t, value.Map{"result": value.Text(">> HI")}, up.Outputs())
}

func TestUnmarshal_SkipsBadEntries(t *testing.T) {
	ctx, logs := testutil.NewContext(t)
	l := newLoader(t)

	doc := `{
	  "nodes": [
	    {"id": "ok", "type": "static_input", "name": "ok", "position": {"x": 0, "y": 0}, "pluginId": null, "config": {"raw": "1"}},
	    {"id": "ghost", "type": "plugin", "name": "ghost", "position": {"x": 0, "y": 0}, "pluginId": "00000000-0000-4000-8000-000000000000", "config": {}},
	    {"id": "weird", "type": "teleporter", "position": {"x": 0, "y": 0}},
	    {"type": "logger"},
	    "not an object",
	    {"id": "sink", "type": "logger", "name": "sink", "position": {"x": 1, "y": 1}, "config": {}}
	  ],
	  "connections": [
	    {"id": "c1", "source_node_id": "ok", "source_output": "data", "target_node_id": "sink", "target_input": "v"},
	    {"id": "c2", "source_node_id": "ghost", "source_output": "data", "target_node_id": "sink", "target_input": "w"},
	    {"id": "c3", "source_node_id": "ok", "source_output": "data"},
	    {"id": "c4", "source_node_id": "ok", "source_output": "renamed", "target_node_id": "sink", "target_input": "x"},
	    {"id": "c5", "source_node_id": "sink", "source_output": "error", "target_node_id": "sink", "target_input": "x"},
	    42
	  ]
	}`

	g, err := l.Unmarshal(ctx, []byte(doc))

	require.NoError(t, err)
	ids := make([]string, 0)
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID())
	}
	assert.Equal(t, []string{"ok", "sink"}, ids)
	require.Len(t, g.Connections(), 1)
	assert.Equal(t, "c1", g.Connections()[0].ID)
	assert.Contains(t, logs.String(), "Skipping node entry.")
	assert.Contains(t, logs.String(), "Skipping connection entry.")
}

func TestUnmarshal_InvalidDocument(t *testing.T) {
	l := newLoader(t)
	_, err := l.Unmarshal(testutil.Context(t), []byte(`[1, 2`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestLoad_MissingFile(t *testing.T) {
	l := newLoader(t)
	_, err := l.Load(testutil.Context(t), filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
