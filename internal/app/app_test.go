package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/internal/testutil"
	"github.com/specialistvlad/nodegrid/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mathPluginID = "6c1f5a8e-0d7b-4b39-9a53-7c2f4b1d9e10"

const mathGraph = `{
  "nodes": [
    {"id": "a", "type": "static_input", "name": "A", "position": {"x": 0, "y": 0}, "pluginId": null, "config": {"raw": "42", "kind": "number"}},
    {"id": "b", "type": "static_input", "name": "B", "position": {"x": 0, "y": 100}, "pluginId": null, "config": {"raw": "8", "kind": "number"}},
    {"id": "calc", "type": "plugin", "name": "Calc", "position": {"x": 200, "y": 50}, "pluginId": "6c1f5a8e-0d7b-4b39-9a53-7c2f4b1d9e10", "config": {}},
    {"id": "log", "type": "logger", "name": "Log", "position": {"x": 400, "y": 50}, "pluginId": null, "config": {}}
  ],
  "connections": [
    {"id": "c1", "source_node_id": "a", "source_output": "data", "target_node_id": "calc", "target_input": "a"},
    {"id": "c2", "source_node_id": "b", "source_output": "data", "target_node_id": "calc", "target_input": "b"},
    {"id": "c3", "source_node_id": "calc", "source_output": "product", "target_node_id": "log", "target_input": "product"}
  ]
}`

// workspace writes the shipped math manifest and the math graph to a temp
// directory.
func workspace(t *testing.T) (pluginsDir, graphPath string) {
	t.Helper()
	manifest, err := os.ReadFile("../../plugins/math.hcl")
	require.NoError(t, err)

	root := testutil.WriteFiles(t, map[string]string{
		"plugins/math.hcl": string(manifest),
		"graph.json":       mathGraph,
	})
	return filepath.Join(root, "plugins"), filepath.Join(root, "graph.json")
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"defaults applied", Config{GraphPath: "g.json"}, ""},
		{"list only", Config{ListPlugins: true}, ""},
		{"graph required", Config{}, "graph"},
		{"database url required", Config{GraphPath: "g.json", PluginStore: StoreSQLite}, "database_url"},
		{"unknown store", Config{GraphPath: "g.json", PluginStore: "redis"}, "plugin_store"},
		{"bad log format", Config{GraphPath: "g.json", LogFormat: "xml"}, "log_format"},
		{"bad events url", Config{GraphPath: "g.json", EventsURL: "::"}, "events_url"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.cfg)
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, StoreDir, cfg.PluginStore)
				assert.Equal(t, "text", cfg.LogFormat)
				assert.Equal(t, "info", cfg.LogLevel)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRun_WholeGraph(t *testing.T) {
	// --- Arrange ---
	pluginsDir, graphPath := workspace(t)
	savePath := filepath.Join(t.TempDir(), "saved.json")
	cfg, err := NewConfig(Config{GraphPath: graphPath, PluginsPath: pluginsDir, SavePath: savePath})
	require.NoError(t, err)
	a, out := SetupAppTest(t, cfg)

	// --- Act ---
	err = a.Run(testutil.Context(t))

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), `Calc [plugin] calc: {"difference":34,"product":336,"quotient":5.25,"sum":50}`)
	assert.Contains(t, out.String(), "product=336")

	saved, err := os.ReadFile(savePath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(saved, &doc))
	assert.Len(t, doc["nodes"], 4)
	assert.Len(t, doc["connections"], 3)
}

func TestRun_SingleNode(t *testing.T) {
	pluginsDir, graphPath := workspace(t)
	cfg, err := NewConfig(Config{GraphPath: graphPath, PluginsPath: pluginsDir, NodeID: "calc"})
	require.NoError(t, err)
	a, out := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(testutil.Context(t)))

	// Upstream nodes never ran, so the required input is missing.
	assert.Contains(t, out.String(), `Calc [plugin] calc: {"error":"Required input 'a' is missing"}`)
}

func TestRun_UnknownNode(t *testing.T) {
	pluginsDir, graphPath := workspace(t)
	cfg, err := NewConfig(Config{GraphPath: graphPath, PluginsPath: pluginsDir, NodeID: "ghost"})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)

	err = a.Run(testutil.Context(t))
	assert.ErrorContains(t, err, "node not found")
}

func TestRun_SQLiteStoreImportsManifests(t *testing.T) {
	pluginsDir, graphPath := workspace(t)
	cfg, err := NewConfig(Config{
		GraphPath:   graphPath,
		PluginsPath: pluginsDir,
		PluginStore: StoreSQLite,
		DatabaseURL: ":memory:",
	})
	require.NoError(t, err)
	a, out := SetupAppTest(t, cfg)

	_, ok := a.Plugins().Get(mathPluginID)
	require.True(t, ok, "manifest imported into the database")

	require.NoError(t, a.Run(testutil.Context(t)))
	assert.Contains(t, out.String(), `"sum":50`)
	assert.Contains(t, out.String(), "Plugins imported.")
}

func TestNewApp_ImportFailureClosesStore(t *testing.T) {
	// --- Arrange ---
	cfg, err := NewConfig(Config{
		ListPlugins: true,
		PluginsPath: "plugins\x00dir",
		PluginStore: StoreSQLite,
		DatabaseURL: ":memory:",
		LogLevel:    "debug",
	})
	require.NoError(t, err)
	logs := &testutil.SafeBuffer{}

	// --- Act ---
	a, err := NewApp(context.Background(), logs, cfg)

	// --- Assert ---
	assert.Nil(t, a)
	require.ErrorContains(t, err, "failed to import plugin manifests")
	assert.Contains(t, logs.String(), "Plugin store closed.")
}

func TestRun_ListPlugins(t *testing.T) {
	pluginsDir, _ := workspace(t)
	cfg, err := NewConfig(Config{PluginsPath: pluginsDir, ListPlugins: true})
	require.NoError(t, err)
	a, out := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(testutil.Context(t)))

	assert.Contains(t, out.String(), mathPluginID)
	assert.Contains(t, out.String(), "a*,b")
	assert.Contains(t, out.String(), "http_request")
}

func TestRun_MissingGraph(t *testing.T) {
	cfg, err := NewConfig(Config{GraphPath: filepath.Join(t.TempDir(), "nope.json")})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)

	assert.ErrorContains(t, a.Run(testutil.Context(t)), "failed to load graph")
}

func TestHandler(t *testing.T) {
	cfg, err := NewConfig(Config{ListPlugins: true})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)
	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()
	var vars map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vars))
	assert.Contains(t, vars, metricsName)
}

// pluginKindModule registers a built-in under the reserved plugin kind.
type pluginKindModule struct{}

func (pluginKindModule) Register(r *registry.Registry) {
	r.RegisterKind(&registry.RegisteredKind{
		Kind: node.KindPlugin,
		New: func(value.Map) (node.Behavior, error) {
			return nil, nil
		},
	})
}

func TestNewApp_PanicsOnInvalidRegistry(t *testing.T) {
	cfg, err := NewConfig(Config{ListPlugins: true})
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = NewApp(testutil.Context(t), &testutil.SafeBuffer{}, cfg, pluginKindModule{})
	})
}
