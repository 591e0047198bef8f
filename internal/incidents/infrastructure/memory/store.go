// Package memory holds in-process incident storage.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	incidents "github.com/Sabari-Jazz/moose/internal/incidents/domain"
)

// Store implements incidents.Repository in memory.
type Store struct {
	mu    sync.Mutex
	items map[string]incidents.Incident
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]incidents.Incident)}
}

// Create inserts an incident unless the id exists.
func (s *Store) Create(_ context.Context, incident incidents.Incident) error {
	if err := incident.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[incident.ID]; !ok {
		s.items[incident.ID] = incident
	}
	return nil
}

// Get returns a copy, or nil when missing.
func (s *Store) Get(_ context.Context, id string) (*incidents.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &incident, nil
}

// ListPending lists a recipient's pending incidents, oldest first.
func (s *Store) ListPending(_ context.Context, recipientID string) ([]incidents.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []incidents.Incident
	for _, incident := range s.items {
		if incident.RecipientID == recipientID && incident.Status == incidents.StatusPending {
			out = append(out, incident)
		}
	}
	sortIncidents(out)
	return out, nil
}

// List returns every incident, oldest first.
func (s *Store) List() []incidents.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]incidents.Incident, 0, len(s.items))
	for _, incident := range s.items {
		out = append(out, incident)
	}
	sortIncidents(out)
	return out
}

// SetTimer stores the timer handle.
func (s *Store) SetTimer(_ context.Context, id, handle string) error {
	return s.update(id, func(incident *incidents.Incident) {
		incident.TimerHandle = handle
	})
}

// Discard deletes a pending incident without a timer handle.
func (s *Store) Discard(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.items[id]
	if !ok || incident.Status != incidents.StatusPending || incident.TimerHandle != "" {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

// Resolve moves a pending incident to a terminal status.
func (s *Store) Resolve(_ context.Context, id string, to incidents.Status, reason string, at time.Time) (bool, error) {
	if !incidents.CanTransition(incidents.StatusPending, to) {
		return false, incidents.ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.items[id]
	if !ok || incident.Status != incidents.StatusPending {
		return false, nil
	}
	incident.Status = to
	incident.Resolution = reason
	incident.ResolvedAt = at.UTC()
	incident.ProcessedAt = at.UTC()
	s.items[id] = incident
	return true, nil
}

// MarkProcessed records that a timer was handled.
func (s *Store) MarkProcessed(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(incident *incidents.Incident) {
		incident.ProcessedAt = at.UTC()
	})
}

func (s *Store) update(id string, fn func(*incidents.Incident)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.items[id]
	if !ok {
		return errors.New("incident store: not found")
	}
	fn(&incident)
	s.items[id] = incident
	return nil
}

func sortIncidents(list []incidents.Incident) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
