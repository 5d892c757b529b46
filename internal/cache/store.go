package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/clubsite/server/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 5 * time.Minute

// loadTimeout bounds a shared load, which outlives any single caller.
const loadTimeout = 30 * time.Second

type entry struct {
	value   any
	expires time.Time
}

// Store is an in-process TTL cache. Concurrent loads of the same key are
// collapsed into one call.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[Key]entry
	gen     map[Resource]uint64

	group singleflight.Group
}

func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Key]entry),
		gen:     make(map[Resource]uint64),
	}
}

// Get returns a live value for key.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || !s.now().Before(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	s.entries[key] = entry{value: value, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

// Invalidate drops every key of the given resources. Loads that started
// before the call do not store their results.
func (s *Store) Invalidate(resources ...Resource) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range resources {
		s.gen[r]++
		dropped := 0
		for k := range s.entries {
			if k.resource == r {
				delete(s.entries, k)
				dropped++
			}
		}
		metrics.CacheInvalidations.WithLabelValues(string(r)).Add(float64(dropped))
	}
}

// Len reports the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Prune removes expired entries.
func (s *Store) Prune() {
	now := s.now()
	s.mu.Lock()
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}

// Run prunes on an interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Prune()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) generation(r Resource) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen[r]
}

func (s *Store) setIfGeneration(key Key, value any, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[key.resource] != gen {
		return
	}
	s.entries[key] = entry{value: value, expires: s.now().Add(s.ttl)}
}

// GetOrLoad returns the cached value for key or calls load once for all
// concurrent callers. The load runs detached from the caller's
// cancellation so one caller going away does not fail the others; each
// caller still stops waiting when its own ctx is done. Errors are not
// cached. A nil store always loads.
func GetOrLoad[T any](ctx context.Context, s *Store, key Key, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if s == nil {
		return load(ctx)
	}
	label := string(key.resource)
	if v, ok := s.Get(key); ok {
		if typed, ok := v.(T); ok {
			metrics.CacheHits.WithLabelValues(label).Inc()
			return typed, nil
		}
	}
	metrics.CacheMisses.WithLabelValues(label).Inc()

	gen := s.generation(key.resource)
	flightKey := key.String() + "#" + strconv.FormatUint(gen, 10)
	ch := s.group.DoChan(flightKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.setIfGeneration(key, value, gen)
		return value, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
