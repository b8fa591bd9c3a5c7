package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MemStore is an in-memory Store for tests. Implements Store.
type MemStore struct {
	mu        sync.Mutex
	models    map[string]*Model
	nextModel int64
	fetches   []*Fetch
}

// NewMemStore returns a new in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{models: make(map[string]*Model)}
}

// SaveModel implements Store.
func (s *MemStore) SaveModel(m *Model) error {
	if m == nil || m.Name == "" {
		return errors.New("save model: name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	cp.Source = slices.Clone(m.Source)
	now := nowUTC()
	cp.UpdatedAt = now
	if old, ok := s.models[m.Name]; ok {
		cp.ID = old.ID
		cp.CreatedAt = old.CreatedAt
	} else {
		s.nextModel++
		cp.ID = s.nextModel
		cp.CreatedAt = now
	}
	s.models[m.Name] = &cp
	return nil
}

// GetModel implements Store.
func (s *MemStore) GetModel(name string) (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[name]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// ListModels implements Store.
func (s *MemStore) ListModels() ([]*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Model, 0, len(s.models))
	for _, m := range s.models {
		cp := *m
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *Model) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// DeleteModel implements Store.
func (s *MemStore) DeleteModel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[name]; !ok {
		return fmt.Errorf("delete model %q: %w", name, ErrNotFound)
	}
	delete(s.models, name)
	return nil
}

// RecordFetch implements Store.
func (s *MemStore) RecordFetch(f *Fetch) (int64, error) {
	if f == nil {
		return 0, errors.New("record fetch: fetch is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	cp.ID = int64(len(s.fetches) + 1)
	if cp.VerifiedAt == "" {
		cp.VerifiedAt = nowUTC()
	}
	s.fetches = append(s.fetches, &cp)
	return cp.ID, nil
}

// LastFetch implements Store.
func (s *MemStore) LastFetch(sha256 string) (*Fetch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.fetches) - 1; i >= 0; i-- {
		if s.fetches[i].SHA256 == sha256 {
			cp := *s.fetches[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }
