// Package pluginstore holds database-backed implementations of plugin.Store.
//
// Each backend keeps one row per plugin definition. The definition itself is
// stored as a serialized blob (MessagePack and zstd by default), next to a
// few plain columns (name, version, format) that make the table readable
// from a SQL shell.
//
//   - sqlite: modernc.org/sqlite through database/sql.
//   - postgres: jackc/pgx connection pool.
package pluginstore

import (
	"fmt"

	"github.com/specialistvlad/nodegrid/internal/plugin"
	"github.com/specialistvlad/nodegrid/internal/serialization"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "plugins"

// IsSafeIdent reports whether s may be interpolated as a table name.
func IsSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

// Encode serializes def for storage after validating it.
func Encode(s *serialization.Serializer, def *plugin.Definition) ([]byte, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", plugin.ErrInvalidManifest)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	data, err := s.Serialize(def)
	if err != nil {
		return nil, fmt.Errorf("serializing plugin %s: %w", def.ID, err)
	}
	return data, nil
}

// Decode restores a definition stored by Encode.
func Decode(s *serialization.Serializer, data []byte) (*plugin.Definition, error) {
	var def plugin.Definition
	if err := s.Deserialize(data, &def); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
