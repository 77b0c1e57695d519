// Package store persists gateway artifacts as JSON files in the data dir.
//
// Each custom sector is stored as a separate file: sector_<name>.json.
// Download manifests land next to them via WriteFile. Writes use atomic file
// replacement (write to .tmp, then rename) to prevent corruption from partial
// writes or crashes mid-save. The simulation adapter loads the sector files
// on startup so custom sectors survive a restart.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"quantgate/pkg/types"
)

// Store persists sectors to JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string     // directory containing sector_*.json files
	mu  sync.Mutex // serializes all file operations
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

func sectorPath(dir, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid sector name %q", name)
	}
	return filepath.Join(dir, "sector_"+name+".json"), nil
}

// SaveSector atomically persists one custom sector. It writes to a .tmp
// file first, then renames over the target so the file is never left in a
// partial state.
func (s *Store) SaveSector(sector types.Sector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := sectorPath(s.dir, sector.Name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(sector)
	if err != nil {
		return fmt.Errorf("marshal sector: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write sector: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadSector restores one custom sector from disk.
// Returns nil, nil if no saved sector exists under that name.
func (s *Store) LoadSector(name string) (*types.Sector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := sectorPath(s.dir, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sector: %w", err)
	}

	var sector types.Sector
	if err := json.Unmarshal(data, &sector); err != nil {
		return nil, fmt.Errorf("unmarshal sector: %w", err)
	}
	return &sector, nil
}

// DeleteSector removes one custom sector. Deleting a sector that does not
// exist is not an error.
func (s *Store) DeleteSector(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := sectorPath(s.dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete sector: %w", err)
	}
	return nil
}

// ListSectors loads every persisted custom sector. Unreadable files are
// skipped rather than failing the whole listing.
func (s *Store) ListSectors() ([]types.Sector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}

	var sectors []types.Sector
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "sector_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var sector types.Sector
		if err := json.Unmarshal(data, &sector); err != nil {
			continue
		}
		sectors = append(sectors, sector)
	}
	return sectors, nil
}

// WriteFile atomically writes v as JSON under the given file name in the
// data dir. The name must be a bare file name, not a path.
func (s *Store) WriteFile(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid file name %q", name)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}
