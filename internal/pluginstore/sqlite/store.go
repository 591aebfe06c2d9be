// Package sqlite stores plugin definitions in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/plugin"
	"github.com/specialistvlad/nodegrid/internal/pluginstore"
	"github.com/specialistvlad/nodegrid/internal/serialization"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Store implements plugin.Store on top of a *sql.DB.
type Store struct {
	db         *sql.DB
	serializer *serialization.Serializer
	table      string
}

// Open opens (or creates) the database at dsn and ensures the table exists.
// The returned store owns the connection; call Close when done.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent.
	db.SetMaxOpenConns(1)

	s := New(db, serialization.Default())
	if err := s.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle.
func New(db *sql.DB, serializer *serialization.Serializer) *Store {
	return &Store{db: db, serializer: serializer, table: pluginstore.DefaultTable}
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
			definition BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_name ON %s (name);
	`, s.table, s.table, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// List returns every stored definition ordered by name. Rows that fail to
// decode are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*plugin.Definition, error) {
	query := fmt.Sprintf("SELECT id, definition FROM %s ORDER BY name, id", s.table)
	rows, err := s.db.QueryContext(ctx, query)
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

// Save inserts or replaces def.
func (s *Store) Save(ctx context.Context, def *plugin.Definition) error {
	data, err := pluginstore.Encode(s.serializer, def)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (id, name, version, format, definition, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.table)
	_, err = s.db.ExecContext(ctx, query, def.ID, def.Name, def.Version, s.serializer.Format(), data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save plugin: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Plugin saved to sqlite.", "pluginID", def.ID, "bytes", len(data))
	return nil
}

// Delete removes the definition with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", plugin.ErrPluginNotFound, id)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return errors.New("sqlite store: not open")
	}
	return s.db.Close()
}
