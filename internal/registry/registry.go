package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// ErrUnknownKind is returned when no built-in is registered for a kind.
var ErrUnknownKind = errors.New("unknown node kind")

// Module is the interface that all built-in node modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredKind describes one built-in node variant.
type RegisteredKind struct {
	Kind        node.Kind
	Description string
	// New builds a behavior configured with cfg. A nil cfg means defaults.
	New func(cfg value.Map) (node.Behavior, error)
}

// Registry holds the built-in node variants of a single application instance.
type Registry struct {
	kinds map[node.Kind]*RegisteredKind
}

// New creates a registry and registers the given modules into it.
func New(modules ...Module) *Registry {
	r := &Registry{kinds: make(map[node.Kind]*RegisteredKind)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterKind adds a built-in variant. Registering the same kind twice is
// a programming error and panics.
func (r *Registry) RegisterKind(rk *RegisteredKind) {
	if _, exists := r.kinds[rk.Kind]; exists {
		panic(fmt.Sprintf("registry: node kind %q registered twice", rk.Kind))
	}
	r.kinds[rk.Kind] = rk
}

// Lookup returns the registration for kind.
func (r *Registry) Lookup(kind node.Kind) (*RegisteredKind, bool) {
	rk, ok := r.kinds[kind]
	return rk, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []node.Kind {
	kinds := make([]node.Kind, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// NewNode builds a node of a built-in kind.
func (r *Registry) NewNode(kind node.Kind, cfg value.Map, opts ...node.Option) (*node.Node, error) {
	rk, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	b, err := rk.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring %s node: %w", kind, err)
	}
	return node.New(b, opts...), nil
}
