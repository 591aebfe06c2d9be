// Package postgres stores plugin definitions in PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/plugin"
	"github.com/specialistvlad/nodegrid/internal/pluginstore"
	"github.com/specialistvlad/nodegrid/internal/serialization"
)

// Store implements plugin.Store on top of a pgx connection pool.
type Store struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
	table      string
}

// Open connects to databaseURL and ensures the table exists. The returned
// store owns the pool; call Close when done.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := New(pool, serialization.Default())
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, serializer *serialization.Serializer) *Store {
	return &Store{pool: pool, serializer: serializer, table: pluginstore.DefaultTable}
}

// WithTableName overrides the table name. Unsafe identifiers are ignored.
func (s *Store) WithTableName(name string) *Store {
	if pluginstore.IsSafeIdent(name) {
		s.table = name
	}
	return s
}

// CreateTables creates the plugin table if needed.
func (s *Store) CreateTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			format TEXT NOT NULL,
			definition BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_name ON %s (name);
	`, s.table, s.table, s.table)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// List returns every stored definition ordered by name. Rows that fail to
// decode are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*plugin.Definition, error) {
	query := fmt.Sprintf("SELECT id, definition FROM %s ORDER BY name, id", s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer rows.Close()

	logger := ctxlog.FromContext(ctx)
	var defs []*plugin.Definition
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan plugin row: %w", err)
		}
		def, err := pluginstore.Decode(s.serializer, data)
		if err != nil {
			logger.Error("Skipping unreadable plugin row.", "pluginID", id, "error", err)
			continue
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	return defs, nil
}

// Save inserts or updates def.
func (s *Store) Save(ctx context.Context, def *plugin.Definition) error {
	data, err := pluginstore.Encode(s.serializer, def)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, version, format, definition, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			format = EXCLUDED.format,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
	`, s.table)
	if _, err := s.pool.Exec(ctx, query, def.ID, def.Name, def.Version, s.serializer.Format(), data); err != nil {
		return fmt.Errorf("failed to save plugin: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Plugin saved to postgres.", "pluginID", def.ID, "bytes", len(data))
	return nil
}

// Delete removes the definition with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", plugin.ErrPluginNotFound, id)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
