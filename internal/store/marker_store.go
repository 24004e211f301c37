package store

import (
	"context"
	"sync"
	"time"
)

// DefaultMarkerKey namespaces the phone-save marker inside a shared local store.
const DefaultMarkerKey = "pairlink:whatsapp:phone-saved-at"

// SaveMarker records when the admin phone was last saved successfully. It
// bridges the gap until the backend's status reflects the new phone.
type SaveMarker struct {
	SavedAt time.Time `json:"savedAt"`
}

// MarkerStore persists a single SaveMarker under its own key. Implementations
// must only ever touch that key.
type MarkerStore interface {
	// Get returns the stored marker, or nil when none exists.
	Get(ctx context.Context) (*SaveMarker, error)
	Put(ctx context.Context, m SaveMarker) error
	// Delete removes the marker. Deleting a missing marker is not an error.
	Delete(ctx context.Context) error
	Close() error
}

// MemoryMarkerStore keeps the marker in process memory. It does not survive
// restarts and is meant for tests and throwaway sessions.
type MemoryMarkerStore struct {
	mu     sync.Mutex
	marker *SaveMarker
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{}
}

func (s *MemoryMarkerStore) Get(_ context.Context) (*SaveMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marker == nil {
		return nil, nil
	}
	m := *s.marker
	return &m, nil
}

func (s *MemoryMarkerStore) Put(_ context.Context, m SaveMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = &m
	return nil
}

func (s *MemoryMarkerStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = nil
	return nil
}

func (s *MemoryMarkerStore) Close() error { return nil }
