package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
)

// Graph is a set of nodes and the connections between their pins.
type Graph struct {
	mu          sync.RWMutex
	nodes       map[string]*node.Node
	order       []string
	connections []*Connection
	observers   []Observer
}

// Option configures a Graph.
type Option func(*Graph)

// WithObserver registers an observer notified about executions.
func WithObserver(o Observer) Option {
	return func(g *Graph) { g.observers = append(g.observers, o) }
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{nodes: make(map[string]*node.Node)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode appends n to the graph.
func (g *Graph) AddNode(ctx context.Context, n *node.Node) error {
	ctx = ctxlog.Ensure(ctx)
	if n == nil {
		return ErrNilNode
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID())
	}
	g.nodes[n.ID()] = n
	g.order = append(g.order, n.ID())

	ctxlog.FromContext(ctx).Debug("Node added.", "nodeID", n.ID(), "kind", n.Kind(), "name", n.Name())
	return nil
}

// RemoveNode deletes the node and every connection that references it.
func (g *Graph) RemoveNode(ctx context.Context, id string) error {
	ctx = ctxlog.Ensure(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(other string) bool { return other == id })

	before := len(g.connections)
	g.connections = slices.DeleteFunc(g.connections, func(c *Connection) bool {
		return c.SourceNodeID == id || c.TargetNodeID == id
	})

	ctxlog.FromContext(ctx).Debug("Node removed.", "nodeID", id, "connectionsRemoved", before-len(g.connections))
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*node.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*node.Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Connect wires srcID.srcPin to dstID.dstPin under a fresh connection id.
func (g *Graph) Connect(ctx context.Context, srcID, srcPin, dstID, dstPin string) (Connection, error) {
	return g.AddConnection(ctx, Connection{
		SourceNodeID: srcID,
		SourceOutput: srcPin,
		TargetNodeID: dstID,
		TargetInput:  dstPin,
	})
}

// AddConnection validates c and appends it. An empty ID is replaced with a
// generated one. The stored connection is returned.
func (g *Graph) AddConnection(ctx context.Context, c Connection) (Connection, error) {
	ctx = ctxlog.Ensure(ctx)
	if err := c.Validate(); err != nil {
		return Connection{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.nodes[c.SourceNodeID]
	if !ok {
		return Connection{}, fmt.Errorf("%w: source %s", ErrNodeNotFound, c.SourceNodeID)
	}
	if _, ok := g.nodes[c.TargetNodeID]; !ok {
		return Connection{}, fmt.Errorf("%w: target %s", ErrNodeNotFound, c.TargetNodeID)
	}
	if c.SourceOutput != node.ErrorKey && !slices.Contains(src.OutputPinNames(), c.SourceOutput) {
		return Connection{}, fmt.Errorf("%w: node %s has no output %q", ErrUnknownPin, c.SourceNodeID, c.SourceOutput)
	}

	logger := ctxlog.FromContext(ctx)
	for _, existing := range g.connections {
		if existing.ID == c.ID {
			return Connection{}, fmt.Errorf("%w: %s", ErrDuplicateConnection, c.ID)
		}
		if existing.TargetNodeID == c.TargetNodeID && existing.TargetInput == c.TargetInput {
			logger.Warn("Input already wired, the new connection takes precedence.",
				"nodeID", c.TargetNodeID, "input", c.TargetInput, "shadowed", existing.ID, "connectionID", c.ID)
		}
	}

	stored := c
	g.connections = append(g.connections, &stored)
	logger.Debug("Connection added.", "connectionID", c.ID, "connection", c.String())
	return c, nil
}

// RemoveConnection deletes the connection with the given id.
func (g *Graph) RemoveConnection(ctx context.Context, id string) error {
	ctx = ctxlog.Ensure(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := slices.IndexFunc(g.connections, func(c *Connection) bool { return c.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	g.connections = slices.Delete(g.connections, idx, idx+1)

	ctxlog.FromContext(ctx).Debug("Connection removed.", "connectionID", id)
	return nil
}

// Connections returns copies of all connections in creation order.
func (g *Graph) Connections() []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(*Connection) bool { return true })
}

// ConnectionsTo returns the connections targeting the given node.
func (g *Graph) ConnectionsTo(id string) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(c *Connection) bool { return c.TargetNodeID == id })
}

// ConnectionsFrom returns the connections leaving the given node.
func (g *Graph) ConnectionsFrom(id string) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(c *Connection) bool { return c.SourceNodeID == id })
}

func (g *Graph) collect(keep func(*Connection) bool) []Connection {
	out := make([]Connection, 0, len(g.connections))
	for _, c := range g.connections {
		if keep(c) {
			out = append(out, *c)
		}
	}
	return out
}

// StartingNodes returns the ids of nodes without incoming connections, in
// insertion order.
func (g *Graph) StartingNodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.startingNodesLocked()
}

func (g *Graph) startingNodesLocked() []string {
	hasIncoming := make(map[string]bool, len(g.connections))
	for _, c := range g.connections {
		hasIncoming[c.TargetNodeID] = true
	}

	var out []string
	for _, id := range g.order {
		if !hasIncoming[id] {
			out = append(out, id)
		}
	}
	return out
}
