package catalog

import (
	"context"
	"log"
	"sync"
	"time"
)

// Catalog is one scanned snapshot of a media kind. Books, tv and music fill
// Groups (author/show/artist -> items); movies fill Titles.
type Catalog struct {
	Kind   string
	Groups map[string][]string
	Titles []string
}

// Lister produces a fresh snapshot for one kind. Implemented by the scanner.
type Lister interface {
	Scan(ctx context.Context, kind string) (*Catalog, error)
}

type entry struct {
	mu        sync.RWMutex
	snapshot  *Catalog
	createdAt time.Time
}

// Service caches snapshots per kind with a TTL. Concurrent Get calls for a
// stale kind trigger exactly one scan: readers take an optimistic RLock, and
// the loser of the exclusive lock re-checks freshness before scanning.
type Service struct {
	lister Lister
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func NewService(l Lister, ttl time.Duration) *Service {
	return &Service{
		lister:  l,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

func (s *Service) Get(ctx context.Context, kind string) (*Catalog, error) {
	e := s.entryFor(kind)

	e.mu.RLock()
	if c := s.fresh(e); c != nil {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if c := s.fresh(e); c != nil {
		return c, nil
	}
	c, err := s.lister.Scan(ctx, kind)
	if err != nil {
		return nil, err
	}
	e.snapshot = c
	e.createdAt = s.now()
	return c, nil
}

// Refresh rescans the given kinds in the background loop. A failed scan
// logs and keeps the previous snapshot in place.
func (s *Service) Refresh(ctx context.Context, kinds []string) {
	for _, kind := range kinds {
		c, err := s.lister.Scan(ctx, kind)
		if err != nil {
			log.Printf("[refresh] %s scan failed, keeping old snapshot: %v", kind, err)
			continue
		}
		e := s.entryFor(kind)
		e.mu.Lock()
		e.snapshot = c
		e.createdAt = s.now()
		e.mu.Unlock()
	}
}

func (s *Service) entryFor(kind string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[kind]
	if !ok {
		e = &entry{}
		s.entries[kind] = e
	}
	return e
}

// caller holds e.mu in some mode
func (s *Service) fresh(e *entry) *Catalog {
	if e.snapshot == nil || s.now().Sub(e.createdAt) > s.ttl {
		return nil
	}
	return e.snapshot
}
