package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-json-experiment/json"

	"github.com/wardenbot/warden/community"
)

// settingsFile persists runtime settings changes, so a modset toggle or
// an ignore survives a restart. The file maps community IDs to override
// records and is rewritten wholesale on every change.
type settingsFile struct {
	path string

	mu  sync.Mutex
	doc map[string]*settingsRecord
}

// settingsRecord is one community's persisted overrides. Nil fields
// were never overridden and leave the configured value alone.
type settingsRecord struct {
	Settings *community.Settings `json:"settings,omitzero"`
	Ignores  *community.Ignores  `json:"ignores,omitzero"`
}

func openSettings(path string) (*settingsFile, error) {
	s := &settingsFile{path: path, doc: make(map[string]*settingsRecord)}
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("couldn't read settings overrides: %w", err)
	}
	if err := json.Unmarshal(b, &s.doc); err != nil {
		return nil, fmt.Errorf("couldn't decode settings overrides: %w", err)
	}
	return s, nil
}

// Apply overlays persisted overrides onto the configured communities.
func (s *settingsFile) Apply(communities map[string]*community.Community) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cm := range communities {
		r := s.doc[id]
		if r == nil {
			continue
		}
		if r.Settings != nil {
			cm.Apply(*r.Settings)
		}
		if r.Ignores != nil {
			cm.ApplyIgnores(*r.Ignores)
		}
	}
}

// Put records a community's settings and rewrites the file.
func (s *settingsFile) Put(ctx context.Context, communityID string, v community.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(communityID).Settings = &v
	return s.write()
}

// PutIgnores records a community's ignore state and rewrites the file.
func (s *settingsFile) PutIgnores(ctx context.Context, communityID string, v community.Ignores) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(communityID).Ignores = &v
	return s.write()
}

// record returns the community's record, creating it if absent.
// The caller must hold mu.
func (s *settingsFile) record(communityID string) *settingsRecord {
	r := s.doc[communityID]
	if r == nil {
		r = &settingsRecord{}
		s.doc[communityID] = r
	}
	return r
}

// write rewrites the file through a temporary. The caller must hold mu.
func (s *settingsFile) write() error {
	b, err := json.Marshal(s.doc, json.Deterministic(true))
	if err != nil {
		return fmt.Errorf("couldn't encode settings overrides: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("couldn't create settings temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("couldn't write settings overrides: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("couldn't close settings temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("couldn't replace settings overrides: %w", err)
	}
	return nil
}
