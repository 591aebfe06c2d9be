package plugin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/script"
)

// Manager is the catalogue of plugin definitions available to a graph.
// It caches what the Store holds; writes go to the Store first.
type Manager struct {
	store  Store
	engine script.Engine

	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewManager creates a manager backed by store. Call Load to populate it.
func NewManager(store Store, engine script.Engine) *Manager {
	return &Manager{
		store:  store,
		engine: engine,
		defs:   make(map[string]*Definition),
	}
}

// Load replaces the cache with the store contents. Invalid definitions are
// logged and skipped.
func (m *Manager) Load(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	defs, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}

	loaded := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			logger.Error("Skipping invalid plugin definition.", "pluginID", def.ID, "error", err)
			continue
		}
		loaded[def.ID] = def.Clone()
	}

	m.mu.Lock()
	m.defs = loaded
	m.mu.Unlock()

	logger.Info("Plugins loaded.", "count", len(loaded))
	return nil
}

// List returns all definitions ordered by name, then id.
func (m *Manager) List() []*Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Definition, 0, len(m.defs))
	for _, def := range m.defs {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if c := strings.Compare(out[i].Name, out[j].Name); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns the definition with the given id.
func (m *Manager) Get(id string) (*Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.defs[id]
	if !ok {
		return nil, false
	}
	return def.Clone(), true
}

// CreateNode builds a fresh node from the definition with the given id.
// The node gets the definition's name unless opts override it.
func (m *Manager) CreateNode(id string, opts ...node.Option) (*node.Node, error) {
	def, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	opts = append([]node.Option{node.WithName(def.Name)}, opts...)
	return node.New(NewBehavior(def, m.engine), opts...), nil
}

// Upsert validates def, persists it and makes it available. Nodes created
// earlier keep the snapshot they were built from.
func (m *Manager) Upsert(ctx context.Context, def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := m.store.Save(ctx, def); err != nil {
		return fmt.Errorf("saving plugin %s: %w", def.ID, err)
	}

	m.mu.Lock()
	m.defs[def.ID] = def.Clone()
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Info("Plugin saved.", "pluginID", def.ID, "name", def.Name)
	return nil
}

// Remove deletes the definition from the store and the catalogue.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.RLock()
	_, ok := m.defs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("removing plugin %s: %w", id, err)
	}

	m.mu.Lock()
	delete(m.defs, id)
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Info("Plugin removed.", "pluginID", id)
	return nil
}
