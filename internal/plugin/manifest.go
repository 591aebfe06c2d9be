// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the on-disk HCL manifest format for plugin definitions.
//
// A manifest holds one or more `plugin` blocks, labelled with the plugin id:
//
//	plugin "6c1f5a8e-0d7b-4b39-9a53-7c2f4b1d9e10" {
//	  name    = "Greeting"
//	  config  = { punctuation = "!" }
//
//	  input "who" {
//	    type     = string
//	    required = true
//	  }
//	  output "message" {
//	    type = string
//	  }
//
//	  script = <<-EOT
//	    outputs = { message = format("Hello, %s%s", inputs.who, config.punctuation) }
//	  EOT
//	}
//
// Scripts are plain strings to the manifest. Template interpolation inside a
// script string must therefore be escaped as `$${`, which is what
// EncodeManifest emits.
package plugin

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// ManifestExtension is the file extension of plugin manifests.
const ManifestExtension = ".hcl"

// manifestRootSchema expects one or more 'plugin' blocks.
type manifestRootSchema struct {
	Plugins []*hclPlugin `hcl:"plugin,block"`
}

// hclPlugin represents a single 'plugin' block for decoding purposes.
type hclPlugin struct {
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

var pluginBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "name", Required: true},
		{Name: "description"},
		{Name: "category"},
		{Name: "version"},
		{Name: "config"},
		{Name: "script"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "input", LabelNames: []string{"name"}},
		{Type: "output", LabelNames: []string{"name"}},
	},
}

var inputBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type"},
		{Name: "required"},
		{Name: "default"},
	},
}

var outputBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type"},
		{Name: "script"},
	},
}

// ParseManifest decodes every plugin block in an HCL manifest. Definitions
// are validated before being returned.
func ParseManifest(ctx context.Context, src []byte, filename string) ([]*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing plugin manifest.", "file", filename)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, diags.Error())
	}

	root := &manifestRootSchema{}
	if diags := gohcl.DecodeBody(file.Body, nil, root); diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, diags.Error())
	}

	var allDiags hcl.Diagnostics
	defs := make([]*Definition, 0, len(root.Plugins))
	for _, block := range root.Plugins {
		def, diags := decodePlugin(block)
		allDiags = append(allDiags, diags...)
		if diags.HasErrors() {
			continue
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, filename, err)
		}
		defs = append(defs, def)
	}
	if allDiags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, allDiags.Error())
	}

	logger.Debug("Parsed plugin manifest.", "file", filename, "count", len(defs))
	return defs, nil
}

func decodePlugin(block *hclPlugin) (*Definition, hcl.Diagnostics) {
	content, diags := block.Body.Content(pluginBodySchema)
	if diags.HasErrors() {
		return nil, diags
	}

	def := &Definition{ID: block.ID}
	for name, target := range map[string]*string{
		"name":        &def.Name,
		"description": &def.Description,
		"category":    &def.Category,
		"version":     &def.Version,
		"script":      &def.Script,
	} {
		if attr, ok := content.Attributes[name]; ok {
			diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, target)...)
		}
	}

	if attr, ok := content.Attributes["config"]; ok {
		cfg, cfgDiags := decodeMap(attr)
		diags = append(diags, cfgDiags...)
		def.ConfigDefaults = cfg
	}

	for _, b := range content.Blocks.OfType("input") {
		pin, pinDiags := decodeInput(b)
		diags = append(diags, pinDiags...)
		if !pinDiags.HasErrors() {
			def.Inputs = append(def.Inputs, pin)
		}
	}
	for _, b := range content.Blocks.OfType("output") {
		pin, pinDiags := decodeOutput(b)
		diags = append(diags, pinDiags...)
		if !pinDiags.HasErrors() {
			def.Outputs = append(def.Outputs, pin)
		}
	}
	return def, diags
}

func decodeInput(block *hcl.Block) (InputPin, hcl.Diagnostics) {
	pin := InputPin{Name: block.Labels[0], Kind: DataAny}

	content, diags := block.Body.Content(inputBodySchema)
	if diags.HasErrors() {
		return pin, diags
	}

	if attr, ok := content.Attributes["type"]; ok {
		kind, kindDiags := decodeKind(attr)
		diags = append(diags, kindDiags...)
		pin.Kind = kind
	}
	if attr, ok := content.Attributes["required"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &pin.Required)...)
	}
	if attr, ok := content.Attributes["default"]; ok {
		raw, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if !valDiags.HasErrors() {
			v, err := value.FromCty(raw)
			if err != nil {
				diags = append(diags, attrError(attr, "Invalid default", err.Error()))
			} else if !v.IsNull() {
				pin.Default = &v
			}
		}
	}
	return pin, diags
}

func decodeOutput(block *hcl.Block) (OutputPin, hcl.Diagnostics) {
	pin := OutputPin{Name: block.Labels[0], Kind: DataAny}

	content, diags := block.Body.Content(outputBodySchema)
	if diags.HasErrors() {
		return pin, diags
	}

	if attr, ok := content.Attributes["type"]; ok {
		kind, kindDiags := decodeKind(attr)
		diags = append(diags, kindDiags...)
		pin.Kind = kind
	}
	if attr, ok := content.Attributes["script"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &pin.Script)...)
	}
	return pin, diags
}

// decodeKind accepts a bare keyword (`type = number`) or a quoted string.
func decodeKind(attr *hcl.Attribute) (DataKind, hcl.Diagnostics) {
	keyword := hcl.ExprAsKeyword(attr.Expr)
	if keyword == "" {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &keyword); diags.HasErrors() {
			return DataAny, diags
		}
	}

	switch keyword {
	case "any":
		return DataAny, nil
	case "string":
		return DataString, nil
	case "number":
		return DataNumber, nil
	case "bool", "boolean":
		return DataBoolean, nil
	case "json", "object", "map", "list":
		return DataJSON, nil
	default:
		return DataAny, hcl.Diagnostics{attrError(attr, "Unsupported pin type",
			fmt.Sprintf("The type %q is not supported. Use one of: any, string, number, boolean, json.", keyword))}
	}
}

func decodeMap(attr *hcl.Attribute) (value.Map, hcl.Diagnostics) {
	raw, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	m, err := value.MapFromCty(raw)
	if err != nil {
		return nil, hcl.Diagnostics{attrError(attr, "Invalid config", err.Error())}
	}
	return m, nil
}

func attrError(attr *hcl.Attribute, summary, detail string) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
		Subject:  attr.Expr.Range().Ptr(),
	}
}

// EncodeManifest renders definitions in the manifest format read by
// ParseManifest.
func EncodeManifest(defs ...*Definition) []byte {
	file := hclwrite.NewEmptyFile()
	root := file.Body()

	for i, def := range defs {
		if i > 0 {
			root.AppendNewline()
		}
		body := root.AppendNewBlock("plugin", []string{def.ID}).Body()

		body.SetAttributeValue("name", cty.StringVal(def.Name))
		setIfNotEmpty(body, "description", def.Description)
		setIfNotEmpty(body, "category", def.Category)
		setIfNotEmpty(body, "version", def.Version)
		if len(def.ConfigDefaults) > 0 {
			body.SetAttributeValue("config", value.MapToCty(def.ConfigDefaults))
		}

		for _, in := range def.Inputs {
			body.AppendNewline()
			ib := body.AppendNewBlock("input", []string{in.Name}).Body()
			ib.SetAttributeTraversal("type", hcl.Traversal{hcl.TraverseRoot{Name: string(in.Kind)}})
			if in.Required {
				ib.SetAttributeValue("required", cty.True)
			}
			if in.Default != nil && !in.Default.IsNull() {
				ib.SetAttributeValue("default", value.ToCty(*in.Default))
			}
		}

		for _, out := range def.Outputs {
			body.AppendNewline()
			ob := body.AppendNewBlock("output", []string{out.Name}).Body()
			ob.SetAttributeTraversal("type", hcl.Traversal{hcl.TraverseRoot{Name: string(out.Kind)}})
			setIfNotEmpty(ob, "script", out.Script)
		}

		body.AppendNewline()
		body.SetAttributeValue("script", cty.StringVal(def.Script))
	}

	return hclwrite.Format(file.Bytes())
}

func setIfNotEmpty(body *hclwrite.Body, name, v string) {
	if v != "" {
		body.SetAttributeValue(name, cty.StringVal(v))
	}
}
