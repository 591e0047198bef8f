// Package memory keeps status records in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// DeviceStore is an in-memory DeviceStatusRepository.
type DeviceStore struct {
	mu      sync.RWMutex
	records map[string]status.DeviceStatusRecord
}

// NewDeviceStore constructs an empty store.
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{records: make(map[string]status.DeviceStatusRecord)}
}

// Get returns nil when the device is unknown.
func (s *DeviceStore) Get(_ context.Context, deviceID string) (*status.DeviceStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[deviceID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Save replaces the record.
func (s *DeviceStore) Save(_ context.Context, record status.DeviceStatusRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[record.DeviceID] = record
	s.mu.Unlock()
	return nil
}

// Touch updates power and last_updated.
func (s *DeviceStore) Touch(_ context.Context, deviceID string, power float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[deviceID]
	if !ok {
		return status.ErrNotFound
	}
	record.Power = power
	record.LastUpdated = at
	s.records[deviceID] = record
	return nil
}

// ListBySite returns the site's records ordered by device id.
func (s *DeviceStore) ListBySite(_ context.Context, siteID string) ([]status.DeviceStatusRecord, error) {
	return s.filter(func(r status.DeviceStatusRecord) bool { return r.SiteID == siteID }), nil
}

// ListByStatus returns records with the given status.
func (s *DeviceStore) ListByStatus(_ context.Context, want status.Status) ([]status.DeviceStatusRecord, error) {
	return s.filter(func(r status.DeviceStatusRecord) bool { return r.Status == want }), nil
}

// List returns every record.
func (s *DeviceStore) List(context.Context) ([]status.DeviceStatusRecord, error) {
	return s.filter(func(status.DeviceStatusRecord) bool { return true }), nil
}

func (s *DeviceStore) filter(keep func(status.DeviceStatusRecord) bool) []status.DeviceStatusRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []status.DeviceStatusRecord
	for _, record := range s.records {
		if keep(record) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// SiteStore is an in-memory SiteStatusRepository that counts writes.
type SiteStore struct {
	mu      sync.RWMutex
	records map[string]status.SiteStatusRecord
	writes  int
}

// NewSiteStore constructs an empty store.
func NewSiteStore() *SiteStore {
	return &SiteStore{records: make(map[string]status.SiteStatusRecord)}
}

// Get returns nil when the site has no aggregate yet.
func (s *SiteStore) Get(_ context.Context, siteID string) (*status.SiteStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[siteID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Save replaces the aggregate.
func (s *SiteStore) Save(_ context.Context, record status.SiteStatusRecord) error {
	if record.SiteID == "" {
		return status.ErrInvalidRecord
	}
	s.mu.Lock()
	s.records[record.SiteID] = record
	s.writes++
	s.mu.Unlock()
	return nil
}

// Writes returns how many times Save succeeded.
func (s *SiteStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

type logKey struct {
	kind    status.SubjectKind
	subject string
	date    string
}

// LogStore is an in-memory LogRepository.
type LogStore struct {
	mu   sync.RWMutex
	logs map[logKey][]status.LogEntry
}

// NewLogStore constructs an empty store.
func NewLogStore() *LogStore {
	return &LogStore{logs: make(map[logKey][]status.LogEntry)}
}

// Append adds an entry to the subject's log for date.
func (s *LogStore) Append(_ context.Context, kind status.SubjectKind, subjectID, date string, entry status.LogEntry) error {
	s.mu.Lock()
	key := logKey{kind: kind, subject: subjectID, date: date}
	s.logs[key] = append(s.logs[key], entry)
	s.mu.Unlock()
	return nil
}

// Get returns nil when nothing was logged.
func (s *LogStore) Get(_ context.Context, kind status.SubjectKind, subjectID, date string) (*status.DailyStatusLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.logs[logKey{kind: kind, subject: subjectID, date: date}]
	if !ok {
		return nil, nil
	}
	return &status.DailyStatusLog{
		Kind:      kind,
		SubjectID: subjectID,
		Date:      date,
		Entries:   append([]status.LogEntry(nil), entries...),
	}, nil
}

// Range returns logs between two inclusive dates ordered by date.
func (s *LogStore) Range(_ context.Context, kind status.SubjectKind, subjectID, from, to string) ([]status.DailyStatusLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []status.DailyStatusLog
	for key, entries := range s.logs {
		if key.kind != kind || key.subject != subjectID || key.date < from || key.date > to {
			continue
		}
		out = append(out, status.DailyStatusLog{
			Kind:      kind,
			SubjectID: subjectID,
			Date:      key.date,
			Entries:   append([]status.LogEntry(nil), entries...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
