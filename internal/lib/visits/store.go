package visits

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deliverymap/server/internal/kv"
	"github.com/deliverymap/server/internal/lib/geo"
)

// storageKey is the key-value collaborator key holding the full
// visited-location mapping.
const storageKey = "visited_locations"

// Location aggregates dwell events at one grid cell: a frequently
// visited delivery stop.
type Location struct {
	Key        string    `json:"id"`
	Location   geo.Point `json:"location"`
	VisitCount int       `json:"visitCount"`
	FirstVisit time.Time `json:"firstVisit"`
	LastVisit  time.Time `json:"lastVisit"`
	Name       string    `json:"name,omitempty"`
}

// GridKey derives the deduplication key for a position: coordinates
// rounded to 4 decimal places, an ~11m grid cell.
func GridKey(p geo.Point) string {
	return fmt.Sprintf("%.4f,%.4f", p.Latitude, p.Longitude)
}

// Store is the keyed aggregate of dwell events, persisted through the
// key-value collaborator. The in-memory state stays authoritative when a
// save fails.
type Store struct {
	mutex   sync.RWMutex
	entries map[string]*Location
	kv      kv.Store
	logger  *zap.SugaredLogger
}

// NewStore creates an empty visited-location store backed by kvStore.
func NewStore(kvStore kv.Store, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		entries: make(map[string]*Location),
		kv:      kvStore,
		logger:  logger,
	}
}

// RecordDwell registers a dwell event at point: the first dwell in a
// grid cell creates the location, later dwells increment its visit
// count. Implements the dwell detector's Recorder.
func (s *Store) RecordDwell(p geo.Point, at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := GridKey(p)
	if existing, ok := s.entries[key]; ok {
		existing.VisitCount++
		existing.LastVisit = at
		s.logger.Infow("repeat visit", "key", key, "count", existing.VisitCount)
		return
	}

	s.entries[key] = &Location{
		Key:        key,
		Location:   p,
		VisitCount: 1,
		FirstVisit: at,
		LastVisit:  at,
	}
	s.logger.Infow("new visited location", "key", key)
}

// List returns up to limit locations sorted by visit count descending.
// A non-positive limit returns everything.
func (s *Store) List(limit int) []Location {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Location, 0, len(s.entries))
	for _, loc := range s.entries {
		out = append(out, *loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VisitCount != out[j].VisitCount {
			return out[i].VisitCount > out[j].VisitCount
		}
		return out[i].Key < out[j].Key
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of distinct visited locations.
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries)
}

// Save serializes the full mapping through the key-value collaborator.
// Failures are logged and returned; the caller treats them as non-fatal.
func (s *Store) Save() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.entries)
	s.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal visited locations: %w", err)
	}

	if err := s.kv.Set(storageKey, string(data)); err != nil {
		s.logger.Warnw("failed to save visited locations, keeping in-memory state", "error", err)
		return fmt.Errorf("failed to save visited locations: %w", err)
	}
	return nil
}

// Load replaces the in-memory mapping with the persisted one. A missing
// key is an empty store, not an error.
func (s *Store) Load() error {
	data, ok, err := s.kv.Get(storageKey)
	if err != nil {
		return fmt.Errorf("failed to load visited locations: %w", err)
	}
	if !ok {
		return nil
	}

	entries := make(map[string]*Location)
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return fmt.Errorf("failed to parse visited locations: %w", err)
	}

	s.mutex.Lock()
	s.entries = entries
	s.mutex.Unlock()
	s.logger.Infow("loaded visited locations", "count", len(entries))
	return nil
}
