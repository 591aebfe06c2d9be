package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/fsutil"
)

// Store persists plugin definitions.
type Store interface {
	List(ctx context.Context) ([]*Definition, error)
	Save(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps definitions in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewMemoryStore returns a store pre-populated with defs.
func NewMemoryStore(defs ...*Definition) *MemoryStore {
	s := &MemoryStore{defs: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		s.defs[def.ID] = def.Clone()
	}
	return s
}

func (s *MemoryStore) List(_ context.Context) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	delete(s.defs, id)
	return nil
}

// DirStore keeps HCL manifests in a directory. A manifest may hold several
// plugins. Save and Delete rewrite the file a plugin was read from; new
// plugins go to <id>.hcl.
type DirStore struct {
	dir string
	mu  sync.Mutex
}

// NewDirStore returns a store rooted at dir. The directory is created on
// the first Save.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Dir returns the root directory of the store.
func (s *DirStore) Dir() string { return s.dir }

// manifestFile is one parsed manifest.
type manifestFile struct {
	path string
	defs []*Definition
}

// scan parses every manifest below the root in path order. Files that fail
// to parse are logged and skipped.
func (s *DirStore) scan(ctx context.Context) ([]manifestFile, error) {
	logger := ctxlog.FromContext(ctx)

	paths, err := fsutil.FindFiles(s.dir, ManifestExtension)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Plugin directory does not exist.", "dir", s.dir)
			return nil, nil
		}
		return nil, fmt.Errorf("scanning plugin directory %s: %w", s.dir, err)
	}

	files := make([]manifestFile, 0, len(paths))
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read plugin manifest, skipping.", "file", path, "error", err)
			continue
		}
		defs, err := ParseManifest(ctx, src, path)
		if err != nil {
			logger.Error("Failed to load plugin manifest, skipping.", "file", path, "error", err)
			continue
		}
		files = append(files, manifestFile{path: path, defs: defs})
	}
	return files, nil
}

// sources maps every plugin id to the file its definition is read from.
// When two files declare the same id, the file named after the id wins,
// otherwise the one whose path sorts last.
func (s *DirStore) sources(ctx context.Context, files []manifestFile) map[string]string {
	logger := ctxlog.FromContext(ctx)
	source := make(map[string]string)
	for _, f := range files {
		for _, def := range f.defs {
			if prev, seen := source[def.ID]; seen {
				logger.Warn("Plugin id declared more than once.", "pluginID", def.ID, "file", f.path, "previous", prev)
				if prev == s.path(def.ID) {
					continue
				}
			}
			source[def.ID] = f.path
		}
	}
	return source
}

// List parses every manifest below the root.
func (s *DirStore) List(ctx context.Context) ([]*Definition, error) {
	files, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	source := s.sources(ctx, files)

	out := make([]*Definition, 0, len(source))
	for _, f := range files {
		for _, def := range f.defs {
			if source[def.ID] == f.path {
				out = append(out, def)
				source[def.ID] = ""
			}
		}
	}
	return out, nil
}

// Save replaces def in the manifest it was read from, dropping copies in
// other manifests. An unknown plugin is written to <dir>/<id>.hcl.
func (s *DirStore) Save(ctx context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating plugin directory: %w", err)
	}
	files, err := s.scan(ctx)
	if err != nil {
		return err
	}

	path, ok := s.sources(ctx, files)[def.ID]
	if !ok {
		path = s.path(def.ID)
		defs := []*Definition{def}
		for _, f := range files {
			if f.path == path {
				defs = append(f.defs, def)
			}
		}
		if err := writeManifest(path, defs); err != nil {
			return err
		}
	}
	for _, f := range files {
		kept, found := without(f.defs, def.ID)
		if !found {
			continue
		}
		if f.path == path {
			kept = replaced(f.defs, def)
		}
		if err := writeManifest(f.path, kept); err != nil {
			return err
		}
	}

	ctxlog.FromContext(ctx).Debug("Plugin manifest saved.", "pluginID", def.ID, "file", path)
	return nil
}

// Delete removes id from every manifest declaring it. Manifests left empty
// are deleted.
func (s *DirStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.scan(ctx)
	if err != nil {
		return err
	}

	removed := false
	for _, f := range files {
		kept, found := without(f.defs, id)
		if !found {
			continue
		}
		if err := writeManifest(f.path, kept); err != nil {
			return err
		}
		removed = true
		ctxlog.FromContext(ctx).Debug("Plugin manifest updated.", "pluginID", id, "file", f.path, "remaining", len(kept))
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return nil
}

func (s *DirStore) path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+ManifestExtension)
}

// writeManifest atomically replaces path with defs, or removes it when defs
// is empty.
func writeManifest(path string, defs []*Definition) error {
	if len(defs) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing plugin manifest: %w", err)
		}
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, EncodeManifest(defs...), 0o644); err != nil {
		return fmt.Errorf("writing plugin manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing plugin manifest: %w", err)
	}
	return nil
}

func without(defs []*Definition, id string) ([]*Definition, bool) {
	kept := make([]*Definition, 0, len(defs))
	for _, d := range defs {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	return kept, len(kept) != len(defs)
}

// replaced swaps every definition with def's id for def, keeping the
// first position only.
func replaced(defs []*Definition, def *Definition) []*Definition {
	out := make([]*Definition, 0, len(defs))
	done := false
	for _, d := range defs {
		if d.ID != def.ID {
			out = append(out, d)
		} else if !done {
			out = append(out, def)
			done = true
		}
	}
	return out
}

// Import copies every definition listed by src into dst. Definitions that
// dst refuses are logged and skipped. It returns how many were copied.
func Import(ctx context.Context, dst, src Store) (int, error) {
	defs, err := src.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing plugins to import: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	imported := 0
	for _, def := range defs {
		if err := dst.Save(ctx, def); err != nil {
			logger.Error("Failed to import plugin, skipping.", "pluginID", def.ID, "name", def.Name, "error", err)
			continue
		}
		imported++
	}
	logger.Info("Plugins imported.", "imported", imported, "found", len(defs))
	return imported, nil
}
