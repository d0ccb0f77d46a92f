// Package localstore persists the client-side bookkeeping that survives
// restarts: the capped audit log of generated keys, per-day issuance
// counters, the legacy used-key set, and a small timestamped event log.
//
// The store is a cache and audit trail only. For the dated key scheme the
// remote store remains the single source of truth for existence and usage.
package localstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// AuditLogLimit caps the generation audit log at the most recent entries.
	AuditLogLimit = 100
	// EventLogLimit caps the analytics event log.
	EventLogLimit = 100
)

// DateKeyLayout formats the calendar-day key for daily counters.
const DateKeyLayout = "2006-01-02"

// AuditRecord is one locally logged key generation.
type AuditRecord struct {
	Code      string    `json:"key"`
	Type      string    `json:"type"`
	Generated time.Time `json:"generated"`
}

// LegacyKeyRecord tracks an offline-scheme key. Legacy keys have no remote
// record, so used/expiry state lives entirely here.
type LegacyKeyRecord struct {
	Code        string    `json:"code"`
	IssuedAt    time.Time `json:"issued_at"`
	UsageBonus  int       `json:"usage_bonus"`
	Used        bool      `json:"used"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// Event is a timestamped analytics entry.
type Event struct {
	Category string    `json:"category"`
	Action   string    `json:"action"`
	Label    string    `json:"label,omitempty"`
	At       time.Time `json:"at"`
}

type fileData struct {
	AuditLog    []AuditRecord              `json:"audit_log"`
	DailyCounts map[string]int             `json:"daily_counts"`
	UsedKeys    map[string]bool            `json:"used_keys"`
	LegacyKeys  map[string]LegacyKeyRecord `json:"legacy_keys"`
	Events      []Event                    `json:"events"`
}

// Store is a single-writer, file-backed JSON store. Every mutation is
// persisted before the method returns; the file is written with 0600
// permissions via a temp-file rename.
type Store struct {
	path string
	mu   sync.Mutex
	data fileData
}

// Open loads the store at path, creating an empty one (and any missing
// parent directories) if the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	s.data = fileData{
		DailyCounts: make(map[string]int),
		UsedKeys:    make(map[string]bool),
		LegacyKeys:  make(map[string]LegacyKeyRecord),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if dir := filepath.Dir(path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0700); mkErr != nil {
				return nil, fmt.Errorf("create store directory: %w", mkErr)
			}
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read local store: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse local store: %w", err)
	}
	// Maps may be nil after unmarshaling an older file
	if s.data.DailyCounts == nil {
		s.data.DailyCounts = make(map[string]int)
	}
	if s.data.UsedKeys == nil {
		s.data.UsedKeys = make(map[string]bool)
	}
	if s.data.LegacyKeys == nil {
		s.data.LegacyKeys = make(map[string]LegacyKeyRecord)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// AppendAudit records a key generation, pruning to the most recent entries.
func (s *Store) AppendAudit(rec AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.AuditLog = append(s.data.AuditLog, rec)
	if n := len(s.data.AuditLog); n > AuditLogLimit {
		s.data.AuditLog = s.data.AuditLog[n-AuditLogLimit:]
	}
	return s.persist()
}

// AuditLog returns a copy of the audit log, oldest first.
func (s *Store) AuditLog() []AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditRecord, len(s.data.AuditLog))
	copy(out, s.data.AuditLog)
	return out
}

// IncrementDaily bumps the issuance counter for a calendar-day key.
func (s *Store) IncrementDaily(dateKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DailyCounts[dateKey]++
	return s.persist()
}

// DailyCount returns the issuance counter for a calendar-day key.
func (s *Store) DailyCount(dateKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DailyCounts[dateKey]
}

// MarkUsed adds a legacy code to the used set and stamps its record.
func (s *Store) MarkUsed(code, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.UsedKeys[code] = true
	if rec, ok := s.data.LegacyKeys[code]; ok {
		rec.Used = true
		rec.Fingerprint = fingerprint
		s.data.LegacyKeys[code] = rec
	}
	return s.persist()
}

// IsUsed reports whether a legacy code has been consumed.
func (s *Store) IsUsed(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UsedKeys[code]
}

// PutLegacyKey stores metadata for a newly generated legacy key.
func (s *Store) PutLegacyKey(rec LegacyKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LegacyKeys[rec.Code] = rec
	return s.persist()
}

// LegacyKey looks up a legacy key record.
func (s *Store) LegacyKey(code string) (LegacyKeyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.LegacyKeys[code]
	return rec, ok
}

// LegacyKeys returns a copy of all legacy key records.
func (s *Store) LegacyKeys() []LegacyKeyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LegacyKeyRecord, 0, len(s.data.LegacyKeys))
	for _, rec := range s.data.LegacyKeys {
		out = append(out, rec)
	}
	return out
}

// AppendEvent records an analytics event, pruning to the most recent entries.
func (s *Store) AppendEvent(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Events = append(s.data.Events, ev)
	if n := len(s.data.Events); n > EventLogLimit {
		s.data.Events = s.data.Events[n-EventLogLimit:]
	}
	return s.persist()
}

// Events returns a copy of the event log, oldest first.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.data.Events))
	copy(out, s.data.Events)
	return out
}

// CleanupExpired drops legacy key records older than maxAge along with their
// used-set entries, mirroring the page-load cleanup of the original client.
// It returns the number of records removed.
func (s *Store) CleanupExpired(now time.Time, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for code, rec := range s.data.LegacyKeys {
		if now.Sub(rec.IssuedAt) > maxAge {
			delete(s.data.LegacyKeys, code)
			delete(s.data.UsedKeys, code)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persist()
}

// persist writes the store atomically. Callers must hold s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal local store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write local store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace local store: %w", err)
	}
	return nil
}
