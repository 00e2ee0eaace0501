package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/rent-house-crawler/internal/crawler"
)

type edge struct {
	parent int64
	child  int64
}

// EntityStore keeps entities and edges in maps behind a single mutex, so
// every get-or-create is serialized.
type EntityStore struct {
	mu     sync.Mutex
	closed bool
	nextID map[crawler.Kind]int64
	rows   map[crawler.Key]crawler.Row
	edges  map[crawler.EdgeSet]map[edge]struct{}
	flats  map[int64][]crawler.Flat
	flatID int64
}

// NewEntityStore constructs an empty EntityStore.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		nextID: make(map[crawler.Kind]int64),
		rows:   make(map[crawler.Key]crawler.Row),
		edges:  make(map[crawler.EdgeSet]map[edge]struct{}),
		flats:  make(map[int64][]crawler.Flat),
	}
}

func (s *EntityStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("memory store closed: %w", crawler.ErrStorageUnavailable)
	}
	return nil
}

// Resolve implements crawler.EntityStore.
func (s *EntityStore) Resolve(ctx context.Context, key crawler.Key, attrs crawler.Attrs) (crawler.Row, bool, error) {
	if err := key.Validate(); err != nil {
		return crawler.Row{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return crawler.Row{}, false, err
	}
	if row, ok := s.rows[key]; ok {
		return row, false, nil
	}
	s.nextID[key.Kind]++
	row := crawler.Row{ID: s.nextID[key.Kind], Key: key, Attrs: attrs}
	s.rows[key] = row
	return row, true, nil
}

// Lookup implements crawler.EntityStore.
func (s *EntityStore) Lookup(ctx context.Context, key crawler.Key) (crawler.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return crawler.Row{}, err
	}
	row, ok := s.rows[key]
	if !ok {
		return crawler.Row{}, fmt.Errorf("%s: %w", key, crawler.ErrNotFound)
	}
	return row, nil
}

// Update implements crawler.EntityStore.
func (s *EntityStore) Update(ctx context.Context, row crawler.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	existing, ok := s.rows[row.Key]
	if !ok || existing.ID != row.ID {
		return fmt.Errorf("update %s id %d: %w", row.Key, row.ID, crawler.ErrNotFound)
	}
	existing.Attrs = row.Attrs
	s.rows[row.Key] = existing
	return nil
}

// MergeEdge implements crawler.EntityStore.
func (s *EntityStore) MergeEdge(ctx context.Context, set crawler.EdgeSet, parentID, childID int64) error {
	return s.MergeEdges(ctx, set, parentID, []int64{childID})
}

// MergeEdges implements crawler.EntityStore.
func (s *EntityStore) MergeEdges(ctx context.Context, set crawler.EdgeSet, parentID int64, childIDs []int64) error {
	if err := set.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	edges, ok := s.edges[set]
	if !ok {
		edges = make(map[edge]struct{})
		s.edges[set] = edges
	}
	for _, child := range childIDs {
		edges[edge{parent: parentID, child: child}] = struct{}{}
	}
	return nil
}

// Children implements crawler.EntityStore.
func (s *EntityStore) Children(ctx context.Context, set crawler.EdgeSet, parentID int64) ([]int64, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []int64
	for e := range s.edges[set] {
		if e.parent == parentID {
			out = append(out, e.child)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Count implements crawler.EntityStore.
func (s *EntityStore) Count(ctx context.Context, kind crawler.Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	for key := range s.rows {
		if key.Kind == kind {
			n++
		}
	}
	return n, nil
}

// AddFlat implements crawler.EntityStore.
func (s *EntityStore) AddFlat(ctx context.Context, flat crawler.Flat) (crawler.Flat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return crawler.Flat{}, err
	}
	if !s.hasID(crawler.KindCommunity, flat.CommunityID) {
		return crawler.Flat{}, fmt.Errorf("flat owner community %d: %w", flat.CommunityID, crawler.ErrNotFound)
	}
	s.flatID++
	flat.ID = s.flatID
	s.flats[flat.CommunityID] = append(s.flats[flat.CommunityID], flat)
	return flat, nil
}

// Flats implements crawler.EntityStore.
func (s *EntityStore) Flats(ctx context.Context, communityID int64) ([]crawler.Flat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(s.flats[communityID]), nil
}

// Close makes every later call fail with crawler.ErrStorageUnavailable.
func (s *EntityStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *EntityStore) hasID(kind crawler.Kind, id int64) bool {
	for key, row := range s.rows {
		if key.Kind == kind && row.ID == id {
			return true
		}
	}
	return false
}
