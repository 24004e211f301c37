package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryMarkerStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryMarkerStore()

	m, err := s.Get(ctx)
	if err != nil || m != nil {
		t.Fatalf("empty store Get = %v, %v", m, err)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.Put(ctx, SaveMarker{SavedAt: at}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	m, err = s.Get(ctx)
	if err != nil || m == nil || !m.SavedAt.Equal(at) {
		t.Fatalf("Get = %v, %v", m, err)
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if m, _ := s.Get(ctx); m != nil {
		t.Errorf("expected nil after delete, got %v", m)
	}
}

func TestStoreConfig_MarkerKey(t *testing.T) {
	if got := (StoreConfig{}).MarkerKey(); got != DefaultMarkerKey {
		t.Errorf("default key = %q", got)
	}
	if got := (StoreConfig{Key: "custom"}).MarkerKey(); got != "custom" {
		t.Errorf("custom key = %q", got)
	}
}
