// Package static_input provides the built-in node that emits a constant.
package static_input

import (
	"context"
	"strconv"
	"strings"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// PinData is the single output pin.
const PinData = "data"

// Parse kinds for the raw value.
const (
	KindText    = "text"
	KindNumber  = "number"
	KindBoolean = "boolean"
	KindJSON    = "json"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Config is the per-node configuration.
type Config struct {
	Raw  value.Value `json:"raw"`
	Kind string      `json:"kind" validate:"required,oneof=text number boolean json"`
}

func defaults() value.Map {
	return value.Map{
		"raw":  value.Text(""),
		"kind": value.Text(KindText),
	}
}

// Behavior is the static_input node variant.
type Behavior struct {
	raw value.Map
	cfg Config
}

// New builds a behavior configured with cfg.
func New(cfg value.Map) (*Behavior, error) {
	b := &Behavior{}
	if err := b.Configure(cfg); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Behavior) Kind() node.Kind { return node.KindStaticInput }

func (b *Behavior) OutputPinNames() []string { return []string{PinData} }

func (b *Behavior) Config() value.Map { return b.raw.Clone() }

func (b *Behavior) Configure(cfg value.Map) error {
	var parsed Config
	raw, err := registry.DecodeConfig(defaults(), cfg, &parsed)
	if err != nil {
		return err
	}
	b.raw, b.cfg = raw, parsed
	return nil
}

// Process ignores its inputs and emits the configured value.
func (b *Behavior) Process(ctx context.Context, _ value.Map) (value.Map, error) {
	data, ok := Parse(b.cfg.Raw, b.cfg.Kind)
	if !ok {
		ctxlog.FromContext(ctx).Warn("Static value does not match its kind, emitting raw text.",
			"kind", b.cfg.Kind, "raw", b.cfg.Raw)
	}
	return value.Map{PinData: data}, nil
}

// Parse converts raw text to kind. Non-text raw values are returned as-is.
// When the text cannot be parsed, the text itself is returned with ok false.
func Parse(raw value.Value, kind string) (v value.Value, ok bool) {
	text, isText := raw.AsText()
	if !isText {
		return raw, true
	}

	trimmed := strings.TrimSpace(text)
	switch kind {
	case KindNumber:
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return value.Number(n), true
		}
	case KindBoolean:
		if b, err := strconv.ParseBool(trimmed); err == nil {
			return value.Bool(b), true
		}
	case KindJSON:
		if parsed, err := value.ParseJSON([]byte(trimmed)); err == nil {
			return parsed, true
		}
	default:
		return raw, true
	}
	return raw, false
}

// Register registers the static_input kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind(&registry.RegisteredKind{
		Kind:        node.KindStaticInput,
		Description: "Emits a constant value on its data output.",
		New: func(cfg value.Map) (node.Behavior, error) {
			return New(cfg)
		},
	})
}
