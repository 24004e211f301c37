package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

func TestFileMarkerStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "local-state.json")
	s := NewFileMarkerStore(path, "")

	if m, err := s.Get(ctx); err != nil || m != nil {
		t.Fatalf("Get on missing file = %v, %v", m, err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Put(ctx, store.SaveMarker{SavedAt: at}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A fresh instance sees the persisted marker.
	reopened := NewFileMarkerStore(path, "")
	m, err := reopened.Get(ctx)
	if err != nil || m == nil || !m.SavedAt.Equal(at) {
		t.Fatalf("Get after reopen = %v, %v", m, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	if err := reopened.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m, _ := s.Get(ctx); m != nil {
		t.Errorf("expected nil after delete, got %v", m)
	}
}

func TestFileMarkerStore_PreservesOtherEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local-state.json")
	if err := os.WriteFile(path, []byte(`{"ui:theme": "dark", "ui:lastTab": 3}`), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewFileMarkerStore(path, "")
	if err := s.Put(ctx, store.SaveMarker{SavedAt: time.Now()}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc["ui:theme"] != "dark" || doc["ui:lastTab"] != float64(3) {
		t.Errorf("other entries not preserved: %v", doc)
	}
	if _, ok := doc[store.DefaultMarkerKey]; ok {
		t.Error("marker entry should be gone")
	}
}

func TestFileMarkerStore_CorruptEntryIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local-state.json")
	os.WriteFile(path, []byte(`{"`+store.DefaultMarkerKey+`": "not-an-object"}`), 0600)

	m, err := NewFileMarkerStore(path, "").Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil for corrupt entry, got %v", m)
	}
}

func TestFileMarkerStore_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local-state.json")
	os.WriteFile(path, []byte(`{not json`), 0600)

	if _, err := NewFileMarkerStore(path, "").Get(context.Background()); err == nil {
		t.Error("expected error for unparseable document")
	}
}
