package script

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// HCLEngine evaluates scripts written as HCL attribute assignments:
//
//	total   = inputs.a + inputs.b
//	_scaled = total * config.factor
//	outputs = { total = total, scaled = _scaled }
//
// Assignments are evaluated in source order. Scope entries and every earlier
// assignment are visible as variables. All assignments whose name does not
// start with an underscore form the result.
type HCLEngine struct {
	functions map[string]function.Function
	timeout   time.Duration
}

// HCLOption configures an HCLEngine.
type HCLOption func(*HCLEngine)

// WithTimeout bounds the wall-clock time of a single script run.
func WithTimeout(d time.Duration) HCLOption {
	return func(e *HCLEngine) { e.timeout = d }
}

// WithFunction registers an additional function for scripts.
func WithFunction(name string, fn function.Function) HCLOption {
	return func(e *HCLEngine) { e.functions[name] = fn }
}

// NewHCLEngine returns an engine with the standard function library.
func NewHCLEngine(opts ...HCLOption) *HCLEngine {
	e := &HCLEngine{functions: Functions()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements Engine.
func (e *HCLEngine) Execute(ctx context.Context, code string, scope value.Map) (result value.Map) {
	logger := ctxlog.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Script evaluation panicked.", "panic", r)
			result = Failure(fmt.Sprintf("script panicked: %v", r))
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	attrs, err := parseAssignments(code)
	if err != nil {
		return Failure(err.Error())
	}
	logger.Debug("Evaluating script.", "assignments", len(attrs))

	evalCtx := &hcl.EvalContext{
		Variables: make(map[string]cty.Value, len(scope)+len(attrs)),
		Functions: e.functions,
	}
	for name, v := range scope {
		evalCtx.Variables[name] = value.ToCty(v)
	}

	result = make(value.Map, len(attrs))
	for _, attr := range attrs {
		if err := ctx.Err(); err != nil {
			return Failure(fmt.Sprintf("script interrupted: %v", err))
		}

		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return Failure(formatDiagnostics(diags))
		}
		evalCtx.Variables[attr.Name] = val

		if strings.HasPrefix(attr.Name, "_") {
			continue
		}
		v, err := value.FromCty(val)
		if err != nil {
			return Failure(fmt.Sprintf("%s: %v", attr.Name, err))
		}
		result[attr.Name] = v
	}
	return result
}

// parseAssignments parses code and returns its attributes in source order.
func parseAssignments(code string) ([]*hclsyntax.Attribute, error) {
	file, diags := hclsyntax.ParseConfig([]byte(code), "script.hcl", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse script: %s", formatDiagnostics(diags))
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("failed to parse script: unexpected body type %T", file.Body)
	}
	if len(body.Blocks) > 0 {
		b := body.Blocks[0]
		return nil, fmt.Errorf("%s: blocks are not allowed in scripts, only assignments", b.DefRange().String())
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})
	return attrs, nil
}

func formatDiagnostics(diags hcl.Diagnostics) string {
	msgs := make([]string, 0, len(diags))
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		if d.Subject != nil {
			msg = fmt.Sprintf("%s: %s", d.Subject.String(), msg)
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
