package config

import (
	"fmt"
	"sync"
)

// Store holds the effective DetectionConfig. Readers get a deep copy, so a
// detection run never observes a later Update.
type Store struct {
	mu  sync.RWMutex
	cfg DetectionConfig
}

// NewStore validates initial and wraps it in a Store.
func NewStore(initial DetectionConfig) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}
	return &Store{cfg: initial.Clone()}, nil
}

// Get returns a snapshot of the effective config.
func (s *Store) Get() DetectionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update merges p into the effective config. Invalid results are rejected and
// the previous config stays in place.
func (s *Store) Update(p DetectionPatch) (DetectionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		return s.cfg.Clone(), err
	}
	s.cfg = next
	return next.Clone(), nil
}

// Replace swaps in a whole config, e.g. after the config file changed.
func (s *Store) Replace(cfg DetectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg.Clone()
	s.mu.Unlock()
	return nil
}
