package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/node"
)

// ValidateRegistry checks that every registration is a known built-in kind
// and that its factory produces a behavior reporting that same kind.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, kind := range r.Kinds() {
		rk := r.kinds[kind]

		if !kind.Valid() || kind == node.KindPlugin {
			errs = append(errs, fmt.Sprintf("kind '%s': not a built-in node kind", kind))
			continue
		}
		if rk.New == nil {
			errs = append(errs, fmt.Sprintf("kind '%s': no factory", kind))
			continue
		}

		b, err := rk.New(nil)
		if err != nil {
			errs = append(errs, fmt.Sprintf("kind '%s': cannot be built with default config: %v", kind, err))
			continue
		}
		if b.Kind() != kind {
			errs = append(errs, fmt.Sprintf("kind '%s': factory produces a '%s' behavior", kind, b.Kind()))
		}
		logger.Debug("Node kind validated.", "kind", kind, "outputs", b.OutputPinNames())
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
