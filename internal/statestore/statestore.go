// Package statestore implements C9: the single persistent JSON document
// holding quota counters and deferred-queue contents, with a single-writer
// mutex and atomic (temp-then-rename) writes, plus migration from legacy
// split quota/queue files.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chronodownloader/internal/model"
)

const stateVersion = "2.0"

// Store owns the unified state document exclusively; C10 and C11 must only
// read/write it through this type, per §3's ownership table.
type Store struct {
	mu            sync.Mutex
	path          string
	legacyQuotas  string
	legacyQueue   string
	doc           *model.UnifiedState
}

// New constructs a Store for the given unified state file path, with
// optional legacy split-file paths for one-time migration.
func New(path, legacyQuotasPath, legacyQueuePath string) *Store {
	return &Store{path: path, legacyQuotas: legacyQuotasPath, legacyQueue: legacyQueuePath}
}

// Load reads the unified document, migrating from legacy split files if the
// unified file is absent, per §3/§9. Subsequent loads only ever read the
// unified file.
func (s *Store) Load() (*model.UnifiedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		return s.doc, nil
	}

	if raw, err := os.ReadFile(s.path); err == nil {
		var doc model.UnifiedState
		if err := json.Unmarshal(raw, &doc); err == nil {
			normalize(&doc)
			s.doc = &doc
			return s.doc, nil
		}
	}

	doc := s.migrateLegacyLocked()
	s.doc = doc
	if err := s.saveLocked(); err != nil {
		return s.doc, err
	}
	return s.doc, nil
}

func normalize(doc *model.UnifiedState) {
	if doc.Quotas == nil {
		doc.Quotas = map[string]*model.ProviderQuota{}
	}
	if doc.Version == "" {
		doc.Version = stateVersion
	}
}

func (s *Store) migrateLegacyLocked() *model.UnifiedState {
	doc := &model.UnifiedState{Version: stateVersion, Quotas: map[string]*model.ProviderQuota{}}
	if s.legacyQuotas != "" {
		if raw, err := os.ReadFile(s.legacyQuotas); err == nil {
			var quotas map[string]*model.ProviderQuota
			if json.Unmarshal(raw, &quotas) == nil {
				doc.Quotas = quotas
			}
		}
	}
	if s.legacyQueue != "" {
		if raw, err := os.ReadFile(s.legacyQueue); err == nil {
			var items []*model.DeferredItem
			if json.Unmarshal(raw, &items) == nil {
				doc.DeferredItem = items
			}
		}
	}
	return doc
}

// Save persists the in-memory document atomically. Callers mutate the
// pointer returned by Load and then call Save while holding no other locks;
// Save itself serialises concurrent callers.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.doc == nil {
		return nil
	}
	s.doc.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Mutate runs fn with exclusive access to the loaded document and persists
// the result, serialising the whole read-modify-write under one lock so no
// network I/O is ever interleaved with the mutex hold, per §9's guidance.
func (s *Store) Mutate(fn func(doc *model.UnifiedState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		doc := s.migrateLegacyLocked()
		s.doc = doc
	}
	fn(s.doc)
	return s.saveLocked()
}
