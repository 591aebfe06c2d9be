package registry

import (
	"fmt"

	"github.com/specialistvlad/nodegrid/internal/validation"
	"github.com/specialistvlad/nodegrid/internal/value"
)

// DecodeConfig merges cfg over defaults, decodes the result into out and
// validates it. The merged map is returned so behaviors can report the
// effective configuration back.
func DecodeConfig(defaults, cfg value.Map, out any) (value.Map, error) {
	merged := defaults.Clone()
	for k, v := range cfg {
		merged[k] = v
	}
	if err := merged.Decode(out); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := validation.Struct(out); err != nil {
		return nil, err
	}
	return merged, nil
}
