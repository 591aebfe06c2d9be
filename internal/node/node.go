// Package node defines the unit of computation placed in a graph.
//
// Every node is a *Node carrying identity, presentation data and the outputs
// of its latest run. What a node actually does is delegated to a Behavior,
// selected by a closed set of Kinds.
package node

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// ErrorKey is the output entry carrying a failure message.
const ErrorKey = "error"

// Kind identifies a node variant.
type Kind string

const (
	KindPlugin      Kind = "plugin"
	KindHTTPRequest Kind = "http_request"
	KindCommand     Kind = "command"
	KindStaticInput Kind = "static_input"
	KindLogger      Kind = "logger"
)

// Kinds lists every known variant.
var Kinds = []Kind{KindPlugin, KindHTTPRequest, KindCommand, KindStaticInput, KindLogger}

// Valid reports whether k is one of the known variants.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Behavior is the variant-specific part of a node.
type Behavior interface {
	Kind() Kind
	// OutputPinNames is fixed for the lifetime of the behavior.
	OutputPinNames() []string
	// Config returns a copy of the per-instance configuration.
	Config() value.Map
	// Configure replaces the per-instance configuration.
	Configure(cfg value.Map) error
	// Process computes the outputs for one run. Returned errors are turned
	// into an error output by the owning Node.
	Process(ctx context.Context, inputs value.Map) (value.Map, error)
}

// Position is the node's location on the editing canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single vertex of the graph.
type Node struct {
	id       string
	behavior Behavior

	mu       sync.RWMutex
	name     string
	position Position
	outputs  value.Map
}

// Option configures a Node at construction.
type Option func(*Node)

// WithID overrides the generated id. Used when restoring saved graphs.
func WithID(id string) Option {
	return func(n *Node) { n.id = id }
}

// WithName sets the display name.
func WithName(name string) Option {
	return func(n *Node) { n.name = name }
}

// WithPosition sets the canvas position.
func WithPosition(p Position) Option {
	return func(n *Node) { n.position = p }
}

// New creates a node around b with a fresh id.
func New(b Behavior, opts ...Option) *Node {
	n := &Node{
		id:       uuid.NewString(),
		behavior: b,
		name:     string(b.Kind()),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ID returns the immutable node id.
func (n *Node) ID() string { return n.id }

// Kind returns the variant tag.
func (n *Node) Kind() Kind { return n.behavior.Kind() }

// Behavior exposes the variant implementation.
func (n *Node) Behavior() Behavior { return n.behavior }

// OutputPinNames returns the ordered output pin names.
func (n *Node) OutputPinNames() []string {
	names := n.behavior.OutputPinNames()
	out := make([]string, len(names))
	copy(out, names)
	return out
}

func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Node) SetName(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.name = name
}

func (n *Node) Position() Position {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.position
}

func (n *Node) SetPosition(p Position) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.position = p
}

// Config returns the per-instance configuration.
func (n *Node) Config() value.Map { return n.behavior.Config() }

// Configure replaces the per-instance configuration.
func (n *Node) Configure(cfg value.Map) error { return n.behavior.Configure(cfg) }

// Outputs returns a copy of the outputs of the latest run, or nil if the
// node has never run.
func (n *Node) Outputs() value.Map {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.outputs == nil {
		return nil
	}
	return n.outputs.Clone()
}

// Output returns a single output entry of the latest run.
func (n *Node) Output(pin string) (value.Value, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.outputs[pin]
	return v, ok
}

// Execute runs the node once. It always returns an output map: errors and
// panics raised by the behavior become {"error": message}. The returned map
// replaces the previous outputs entirely.
func (n *Node) Execute(ctx context.Context, inputs value.Map) value.Map {
	ctx = ctxlog.With(ctxlog.Ensure(ctx), "nodeID", n.id, "kind", n.Kind())
	logger := ctxlog.FromContext(ctx)

	out, err := n.process(ctx, inputs)
	if err != nil {
		logger.Warn("Node execution failed.", "error", err)
		out = value.Map{ErrorKey: value.Text(err.Error())}
	} else if msg, failed := out.Get(ErrorKey); failed {
		logger.Warn("Node reported an error.", "error", msg)
	}
	if out == nil {
		out = value.Map{}
	}

	n.mu.Lock()
	n.outputs = out.Clone()
	n.mu.Unlock()

	logger.Debug("Node executed.", "outputs", len(out))
	return out
}

func (n *Node) process(ctx context.Context, inputs value.Map) (out value.Map, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Node behavior panicked.", "panic", r, "stack", string(debug.Stack()))
			out, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	if inputs == nil {
		inputs = value.Map{}
	}
	return n.behavior.Process(ctx, inputs)
}

// Failed reports whether outputs describe a failed run.
func Failed(outputs value.Map) bool {
	return outputs.Has(ErrorKey)
}
