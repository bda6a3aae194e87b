package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hurttlocker/papertopics/internal/topic"
)

// MemoryStore keeps groups in process memory. Reads return deep copies so
// callers never observe a concurrent writer's in-flight state.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]*topic.Group
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: map[string]*topic.Group{}}
}

func (s *MemoryStore) GetGroup(ctx context.Context, key topic.FacetKey) (*topic.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[key.ID()].Clone(), nil
}

func (s *MemoryStore) SaveGroup(ctx context.Context, g *topic.Group, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := g.Key.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.groups[id]
	switch {
	case !ok && expectedVersion != 0,
		ok && cur.Version != expectedVersion:
		return topic.ErrVersionConflict
	}

	stored := g.Clone()
	if ok {
		stored.Key = cur.Key
	}
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = nowUTC()
	s.groups[id] = stored

	g.Version = stored.Version
	g.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) ListGroups(ctx context.Context, f GroupFilter) ([]*topic.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f = f.canonical()

	s.mu.RLock()
	out := make([]*topic.Group, 0, len(s.groups))
	for _, g := range s.groups {
		if f.matches(g.Key.Canonical()) {
			out = append(out, g.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key.Canonical(), out[j].Key.Canonical()
		for _, pair := range [][2]string{
			{a.College, b.College},
			{a.Subject, b.Subject},
			{a.Semester, b.Semester},
			{string(a.ExamType), string(b.ExamType)},
			{a.Branch, b.Branch},
		} {
			if pair[0] != pair[1] {
				return pair[0] < pair[1]
			}
		}
		return a.Part < b.Part
	})
	return out, nil
}

func (s *MemoryStore) GroupVersions(ctx context.Context, f GroupFilter) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f = f.canonical()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]int64{}
	for id, g := range s.groups {
		if f.matches(g.Key.Canonical()) {
			out[id] = g.Version
		}
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	groups, err := s.ListGroups(ctx, GroupFilter{})
	if err != nil {
		return nil, err
	}
	return statsFromGroups(DriverMemory, groups), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
