package team

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Document wraps one persisted team-state concern with version metadata.
type Document struct {
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// Store persists team state as one versioned JSON document per concern
// (config, tasks, findings, checkpoint). Writes are atomic: the document is
// written to a temp file and renamed into place, so a crash never leaves a
// partial read behind.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create team state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save marshals v into the named concern's document, bumping its version.
func (s *Store) Save(concern string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", concern, err)
	}

	doc := Document{Version: 1, UpdatedAt: time.Now(), Data: data}
	if prev, err := s.loadLocked(concern); err == nil {
		doc.Version = prev.Version + 1
	}

	path := s.path(concern)
	tmp := path + ".tmp"

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s document: %w", concern, err)
	}
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", concern, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", concern, err)
	}
	return nil
}

// Load unmarshals the named concern's document data into v and returns the
// document version.
func (s *Store) Load(concern string, v interface{}) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked(concern)
	if err != nil {
		return 0, err
	}
	if v != nil {
		if err := json.Unmarshal(doc.Data, v); err != nil {
			return 0, fmt.Errorf("decode %s: %w", concern, err)
		}
	}
	return doc.Version, nil
}

func (s *Store) loadLocked(concern string) (*Document, error) {
	raw, err := os.ReadFile(s.path(concern))
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s document: %w", concern, err)
	}
	return &doc, nil
}

func (s *Store) path(concern string) string {
	return filepath.Join(s.dir, concern+".json")
}
