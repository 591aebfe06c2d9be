// Package graphfile reads and writes graphs as JSON documents.
//
// The document lists nodes (id, type, name, position, pluginId, config) and
// connections (id, source_node_id, source_output, target_node_id,
// target_input). Nodes with a pluginId are rebuilt from the plugin
// catalogue; nodes without one are rebuilt from the built-in registry using
// their type and config.
//
// Loading is lenient: an entry that cannot be decoded, validated or built is
// logged and skipped, and loading continues with the next entry.
package graphfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/graph"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/validation"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// ErrInvalidDocument is returned when the document itself is not a JSON
// object with node and connection lists.
var ErrInvalidDocument = errors.New("invalid graph document")

// Document is the persisted form of a graph.
type Document struct {
	Nodes       []NodeRecord       `json:"nodes"`
	Connections []ConnectionRecord `json:"connections"`
}

// NodeRecord is the persisted form of a node.
type NodeRecord struct {
	ID       string        `json:"id" validate:"required"`
	Type     string        `json:"type" validate:"required,node_kind"`
	Name     string        `json:"name"`
	Position node.Position `json:"position"`
	PluginID *string       `json:"pluginId"`
	Config   value.Map     `json:"config"`
}

// ConnectionRecord is the persisted form of a connection.
type ConnectionRecord struct {
	ID           string `json:"id" validate:"required"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	SourceOutput string `json:"source_output" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	TargetInput  string `json:"target_input" validate:"required"`
}

// PluginFactory creates nodes from plugin definitions.
type PluginFactory interface {
	CreateNode(pluginID string, opts ...node.Option) (*node.Node, error)
}

// BuiltinFactory creates nodes of built-in kinds.
type BuiltinFactory interface {
	NewNode(kind node.Kind, cfg value.Map, opts ...node.Option) (*node.Node, error)
}

// Loader rebuilds graphs from documents.
type Loader struct {
	Plugins   PluginFactory
	Builtins  BuiltinFactory
	GraphOpts []graph.Option
}

// pluginIDer is implemented by behaviors backed by a plugin definition.
type pluginIDer interface {
	PluginID() string
}

// Encode captures the graph as a document.
func Encode(g *graph.Graph) *Document {
	doc := &Document{
		Nodes:       []NodeRecord{},
		Connections: []ConnectionRecord{},
	}

	for _, n := range g.Nodes() {
		rec := NodeRecord{
			ID:       n.ID(),
			Type:     string(n.Kind()),
			Name:     n.Name(),
			Position: n.Position(),
			Config:   n.Config(),
		}
		if p, ok := n.Behavior().(pluginIDer); ok {
			id := p.PluginID()
			rec.PluginID = &id
		}
		doc.Nodes = append(doc.Nodes, rec)
	}

	for _, c := range g.Connections() {
		doc.Connections = append(doc.Connections, ConnectionRecord{
			ID:           c.ID,
			SourceNodeID: c.SourceNodeID,
			SourceOutput: c.SourceOutput,
			TargetNodeID: c.TargetNodeID,
			TargetInput:  c.TargetInput,
		})
	}
	return doc
}

// Marshal encodes the graph as indented JSON.
func Marshal(g *graph.Graph) ([]byte, error) {
	return json.MarshalIndent(Encode(g), "", "  ")
}

// rawDocument keeps entries undecoded so each one can fail on its own.
type rawDocument struct {
	Nodes       []json.RawMessage `json:"nodes"`
	Connections []json.RawMessage `json:"connections"`
}

// Unmarshal parses data and rebuilds the graph it describes.
func (l *Loader) Unmarshal(ctx context.Context, data []byte) (*graph.Graph, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	logger := ctxlog.FromContext(ctx)
	g := graph.New(l.GraphOpts...)

	for i, entry := range raw.Nodes {
		n, err := l.decodeNode(entry)
		if err == nil {
			err = g.AddNode(ctx, n)
		}
		if err != nil {
			logger.Error("Skipping node entry.", "index", i, "error", err)
		}
	}

	for i, entry := range raw.Connections {
		var rec ConnectionRecord
		err := json.Unmarshal(entry, &rec)
		if err == nil {
			err = validation.Struct(rec)
		}
		if err == nil {
			_, err = g.AddConnection(ctx, graph.Connection{
				ID:           rec.ID,
				SourceNodeID: rec.SourceNodeID,
				SourceOutput: rec.SourceOutput,
				TargetNodeID: rec.TargetNodeID,
				TargetInput:  rec.TargetInput,
			})
		}
		if err != nil {
			logger.Error("Skipping connection entry.", "index", i, "error", err)
		}
	}

	logger.Debug("Graph document loaded.", "nodes", g.Len(), "connections", len(g.Connections()))
	return g, nil
}

func (l *Loader) decodeNode(entry json.RawMessage) (*node.Node, error) {
	var rec NodeRecord
	if err := json.Unmarshal(entry, &rec); err != nil {
		return nil, err
	}
	if err := validation.Struct(rec); err != nil {
		return nil, fmt.Errorf("node %q: %w", rec.ID, err)
	}

	opts := []node.Option{
		node.WithID(rec.ID),
		node.WithName(rec.Name),
		node.WithPosition(rec.Position),
	}

	if rec.PluginID != nil {
		if l.Plugins == nil {
			return nil, fmt.Errorf("node %q: plugin nodes are not supported by this loader", rec.ID)
		}
		n, err := l.Plugins.CreateNode(*rec.PluginID, opts...)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", rec.ID, err)
		}
		if err := n.Configure(rec.Config); err != nil {
			return nil, fmt.Errorf("node %q: %w", rec.ID, err)
		}
		return n, nil
	}

	if l.Builtins == nil {
		return nil, fmt.Errorf("node %q: built-in nodes are not supported by this loader", rec.ID)
	}
	n, err := l.Builtins.NewNode(node.Kind(rec.Type), rec.Config, opts...)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", rec.ID, err)
	}
	return n, nil
}

// Save writes the graph to path, replacing the file atomically.
func Save(g *graph.Graph, path string) error {
	data, err := Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating graph directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing graph: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads and rebuilds the graph stored at path.
func (l *Loader) Load(ctx context.Context, path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph: %w", err)
	}
	g, err := l.Unmarshal(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
