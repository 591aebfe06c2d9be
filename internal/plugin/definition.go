// Package plugin implements runtime-defined node types.
//
// A Definition declares input pins, output pins, a main script and config
// defaults. A Manager keeps the known definitions, persists them through a
// Store and creates graph nodes from them.
package plugin

import (
	"fmt"

	"github.com/specialistvlad/nodegrid/internal/validation"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// DataKind is a type hint attached to a pin. It is not enforced at run time.
type DataKind string

const (
	DataAny     DataKind = "any"
	DataString  DataKind = "string"
	DataNumber  DataKind = "number"
	DataBoolean DataKind = "boolean"
	DataJSON    DataKind = "json"
)

// InputPin declares one named input of a plugin.
type InputPin struct {
	Name     string       `json:"name" msgpack:"name" validate:"required,pin_name"`
	Kind     DataKind     `json:"kind" msgpack:"kind" validate:"required,oneof=any string number boolean json"`
	Required bool         `json:"required" msgpack:"required"`
	Default  *value.Value `json:"default,omitempty" msgpack:"default,omitempty"`
}

// OutputPin declares one named output of a plugin. A non-empty Script
// post-processes the value produced by the main script.
type OutputPin struct {
	Name   string   `json:"name" msgpack:"name" validate:"required,pin_name"`
	Kind   DataKind `json:"kind" msgpack:"kind" validate:"required,oneof=any string number boolean json"`
	Script string   `json:"script,omitempty" msgpack:"script,omitempty"`
}

// Definition is the full description of a plugin node type.
type Definition struct {
	ID             string      `json:"id" msgpack:"id" validate:"required,uuid"`
	Name           string      `json:"name" msgpack:"name" validate:"required,max=200"`
	Description    string      `json:"description,omitempty" msgpack:"description,omitempty"`
	Category       string      `json:"category,omitempty" msgpack:"category,omitempty"`
	Version        string      `json:"version,omitempty" msgpack:"version,omitempty" validate:"omitempty,semver"`
	Inputs         []InputPin  `json:"inputs" msgpack:"inputs" validate:"dive"`
	Outputs        []OutputPin `json:"outputs" msgpack:"outputs" validate:"dive"`
	Script         string      `json:"script" msgpack:"script"`
	ConfigDefaults value.Map   `json:"config,omitempty" msgpack:"config,omitempty"`
}

// Validate checks field constraints and pin name uniqueness.
func (d *Definition) Validate() error {
	if err := validation.Struct(d); err != nil {
		return fmt.Errorf("plugin %q: %w", d.Name, err)
	}

	seen := make(map[string]struct{}, len(d.Inputs))
	for _, in := range d.Inputs {
		if _, dup := seen[in.Name]; dup {
			return fmt.Errorf("plugin %q: %w: input %q", d.Name, ErrDuplicatePin, in.Name)
		}
		seen[in.Name] = struct{}{}
	}

	seen = make(map[string]struct{}, len(d.Outputs))
	for _, out := range d.Outputs {
		if _, dup := seen[out.Name]; dup {
			return fmt.Errorf("plugin %q: %w: output %q", d.Name, ErrDuplicatePin, out.Name)
		}
		seen[out.Name] = struct{}{}
	}
	return nil
}

// OutputPinNames returns the output names in declaration order.
func (d *Definition) OutputPinNames() []string {
	names := make([]string, len(d.Outputs))
	for i, out := range d.Outputs {
		names[i] = out.Name
	}
	return names
}

// Clone returns a deep enough copy that the result shares no mutable state
// with d. Values are immutable, so only slices and maps are copied.
func (d *Definition) Clone() *Definition {
	c := *d
	c.Inputs = append([]InputPin(nil), d.Inputs...)
	for i := range c.Inputs {
		if c.Inputs[i].Default != nil {
			def := *c.Inputs[i].Default
			c.Inputs[i].Default = &def
		}
	}
	c.Outputs = append([]OutputPin(nil), d.Outputs...)
	if d.ConfigDefaults != nil {
		c.ConfigDefaults = d.ConfigDefaults.Clone()
	}
	return &c
}
