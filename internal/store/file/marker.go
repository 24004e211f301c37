package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// FileMarkerStore keeps the marker in a local JSON document of namespaced
// entries. Other entries in the same document are preserved on every write.
type FileMarkerStore struct {
	path string
	key  string
	mu   sync.Mutex
}

// NewFileMarkerStore creates a marker store backed by the JSON file at path.
// The file and its directory are created on first write.
func NewFileMarkerStore(path, key string) *FileMarkerStore {
	if key == "" {
		key = store.DefaultMarkerKey
	}
	return &FileMarkerStore{path: path, key: key}
}

func (f *FileMarkerStore) Get(_ context.Context) (*store.SaveMarker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	raw, ok := doc[f.key]
	if !ok {
		return nil, nil
	}
	var m store.SaveMarker
	if err := json.Unmarshal(raw, &m); err != nil {
		// A corrupt entry is as good as no entry.
		slog.Warn("marker: ignoring unreadable entry", "path", f.path, "key", f.key, "error", err)
		return nil, nil
	}
	return &m, nil
}

func (f *FileMarkerStore) Put(_ context.Context, m store.SaveMarker) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	doc[f.key] = data
	return f.save(doc)
}

func (f *FileMarkerStore) Delete(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc[f.key]; !ok {
		return nil
	}
	delete(doc, f.key)
	return f.save(doc)
}

func (f *FileMarkerStore) Close() error { return nil }

// Path returns the backing file path.
func (f *FileMarkerStore) Path() string { return f.path }

func (f *FileMarkerStore) load() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local state %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse local state %s: %w", f.path, err)
	}
	return doc, nil
}

// save writes doc atomically via a temp file + rename.
func (f *FileMarkerStore) save(doc map[string]json.RawMessage) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal local state: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace local state: %w", err)
	}
	return nil
}
