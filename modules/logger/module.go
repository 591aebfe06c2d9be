// Package logger provides the built-in sink node that logs whatever it
// receives.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out, when set, also receives every rendered line.
	Out io.Writer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Config is the per-node configuration.
type Config struct {
	Level string `json:"level" validate:"required,oneof=debug info warn error"`
}

func defaults() value.Map {
	return value.Map{"level": value.Text("info")}
}

// Behavior is the logger node variant.
type Behavior struct {
	out io.Writer
	now func() time.Time

	raw   value.Map
	level slog.Level

	mu   sync.Mutex
	last string
}

// New builds a behavior configured with cfg. out and now may be nil.
func New(out io.Writer, now func() time.Time, cfg value.Map) (*Behavior, error) {
	if now == nil {
		now = time.Now
	}
	b := &Behavior{out: out, now: now}
	if err := b.Configure(cfg); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Behavior) Kind() node.Kind { return node.KindLogger }

// OutputPinNames is empty: the logger is a sink.
func (b *Behavior) OutputPinNames() []string { return []string{} }

func (b *Behavior) Config() value.Map { return b.raw.Clone() }

func (b *Behavior) Configure(cfg value.Map) error {
	var parsed Config
	raw, err := registry.DecodeConfig(defaults(), cfg, &parsed)
	if err != nil {
		return err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(parsed.Level)); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	b.raw, b.level = raw, level
	return nil
}

// Process renders the inputs as one line and logs it.
func (b *Behavior) Process(ctx context.Context, inputs value.Map) (value.Map, error) {
	line := Render(b.now(), inputs)

	b.mu.Lock()
	b.last = line
	b.mu.Unlock()

	ctxlog.FromContext(ctx).Log(ctx, b.level, line, "inputs", len(inputs))
	if b.out != nil {
		if _, err := fmt.Fprintln(b.out, line); err != nil {
			return nil, fmt.Errorf("writing log line: %w", err)
		}
	}
	return value.Map{}, nil
}

// LastMessage returns the most recently rendered line.
func (b *Behavior) LastMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Render formats inputs as "[<RFC3339 time>] k1=v1, k2=v2" with keys sorted.
func Render(at time.Time, inputs value.Map) string {
	keys := inputs.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+inputs[k].String())
	}
	stamp := "[" + at.Format(time.RFC3339) + "]"
	if len(parts) == 0 {
		return stamp
	}
	return stamp + " " + strings.Join(parts, ", ")
}

// Register registers the logger kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind(&registry.RegisteredKind{
		Kind:        node.KindLogger,
		Description: "Logs every input it receives.",
		New: func(cfg value.Map) (node.Behavior, error) {
			return New(m.Out, m.Now, cfg)
		},
	})
}
