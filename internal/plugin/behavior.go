package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
	"github.com/specialistvlad/nodegrid/internal/script"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// Scope and result keys shared with plugin scripts.
const (
	scopeInputs  = "inputs"
	scopeConfig  = "config"
	scopeOutputs = "outputs"
	resultKey    = "result"
)

// Behavior runs a plugin definition for one node instance.
type Behavior struct {
	def    *Definition
	engine script.Engine
	config value.Map
}

// NewBehavior snapshots def and initialises the instance config from the
// definition defaults.
func NewBehavior(def *Definition, engine script.Engine) *Behavior {
	snapshot := def.Clone()
	return &Behavior{
		def:    snapshot,
		engine: engine,
		config: snapshot.ConfigDefaults.Clone(),
	}
}

// Definition returns the snapshot this instance was built from.
func (b *Behavior) Definition() *Definition { return b.def }

// PluginID returns the id of the definition this instance was built from.
func (b *Behavior) PluginID() string { return b.def.ID }

func (b *Behavior) Kind() node.Kind { return node.KindPlugin }

func (b *Behavior) OutputPinNames() []string { return b.def.OutputPinNames() }

func (b *Behavior) Config() value.Map { return b.config.Clone() }

// Configure replaces the instance config. Keys missing from cfg fall back
// to the definition defaults.
func (b *Behavior) Configure(cfg value.Map) error {
	merged := b.def.ConfigDefaults.Clone()
	for k, v := range cfg {
		merged[k] = v
	}
	b.config = merged
	return nil
}

// Process validates inputs, applies defaults, runs the main script and then
// every output override in declaration order.
func (b *Behavior) Process(ctx context.Context, inputs value.Map) (value.Map, error) {
	logger := ctxlog.FromContext(ctx).With("plugin", b.def.Name, "pluginID", b.def.ID)

	for _, pin := range b.def.Inputs {
		if pin.Required && !inputs.Has(pin.Name) {
			return nil, &MissingInputError{Pin: pin.Name}
		}
	}

	working := inputs.Clone()
	for _, pin := range b.def.Inputs {
		if pin.Default == nil || pin.Default.IsNull() {
			continue
		}
		if _, present := working[pin.Name]; !present {
			working[pin.Name] = *pin.Default
		}
	}

	config := value.FromMap(b.config.Clone())
	result := b.engine.Execute(ctx, b.def.Script, value.Map{
		scopeInputs: value.FromMap(working),
		scopeConfig: config,
	})
	if msg, failed := script.FailureMessage(result); failed {
		return nil, errors.New(msg)
	}

	outputs := result
	if nested, ok := result[scopeOutputs].AsMap(); ok {
		outputs = nested
	}
	outputs = outputs.Clone()

	for _, pin := range b.def.Outputs {
		if pin.Script == "" {
			continue
		}
		override := b.engine.Execute(ctx, pin.Script, value.Map{
			scopeInputs:  value.FromMap(working),
			scopeOutputs: value.FromMap(outputs.Clone()),
			scopeConfig:  config,
		})
		if msg, failed := script.FailureMessage(override); failed {
			return nil, fmt.Errorf("output '%s': %s", pin.Name, msg)
		}

		if v, ok := override[resultKey]; ok {
			outputs[pin.Name] = v
		} else if v, ok := override[pin.Name]; ok {
			outputs[pin.Name] = v
		} else {
			logger.Debug("Output override produced no value, keeping main script output.", "output", pin.Name)
		}
	}

	return outputs, nil
}
