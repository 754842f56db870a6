// Package memory provides an in-process storage.Store used as the local
// cache in front of the durable store, and in tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/mmynk/splitton/internal/models"
	"github.com/mmynk/splitton/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory store closed")

// Store keeps deep copies of events in a map.
type Store struct {
	mu     sync.RWMutex
	events map[string]*models.Event
	closed bool
}

func New() *Store {
	return &Store{events: make(map[string]*models.Event)}
}

func (s *Store) GetEvent(_ context.Context, eventID string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.events[eventID].Clone(), nil
}

func (s *Store) SaveEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.events[event.ID] = event.Clone()
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.events, eventID)
	return nil
}

func (s *Store) ListEventIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
