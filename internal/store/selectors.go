package store

import "sync"

// ScoredView is what a hover or expanded card renders: the entity, its
// score and the score breakdown.
type ScoredView struct {
	POI       POI       `json:"poi"`
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
	// PlaceID is the owning hub for planned POIs.
	PlaceID string `json:"placeId,omitempty"`
	Planned bool   `json:"planned"`
}

// Index maps POI ids to their scored views.
type Index map[string]ScoredView

type memo struct {
	mu        sync.Mutex
	version   uint64
	valid     bool
	discovery Index
	planned   Index
	filtered  []DiscoveryItem
}

// FilterDiscovery applies the category filter, then the quality threshold.
func FilterDiscovery(items []DiscoveryItem, f Filters) []DiscoveryItem {
	out := make([]DiscoveryItem, 0, len(items))
	for _, it := range items {
		switch f.Category {
		case CategoryAttractions:
			if it.ItemType != Attraction {
				continue
			}
		case CategoryRestaurants:
			if it.ItemType != Restaurant {
				continue
			}
		}
		out = append(out, it)
	}

	if f.MinQuality <= 0 {
		return out
	}
	kept := out[:0]
	for _, it := range out {
		if it.Quality >= f.MinQuality {
			kept = append(kept, it)
		}
	}
	return kept
}

// BuildDiscoveryIndex indexes discovery items by id. Later duplicates win,
// matching append order.
func BuildDiscoveryIndex(items []DiscoveryItem) Index {
	idx := make(Index, len(items))
	for _, it := range items {
		idx[it.ID] = ScoredView{POI: it.POI, Score: it.Score, Breakdown: it.Breakdown()}
	}
	return idx
}

// BuildPlannedIndex indexes every planned POI of every hub by id.
func BuildPlannedIndex(places []HubPlace) Index {
	idx := make(Index)
	for _, h := range places {
		for _, list := range [][]PlannedPOI{h.PlannedAttractions, h.PlannedRestaurants} {
			for _, p := range list {
				b := p.Breakdown()
				idx[p.ID] = ScoredView{POI: p.POI, Score: b.Total, Breakdown: b, PlaceID: h.ID, Planned: true}
			}
		}
	}
	return idx
}

// refresh rebuilds the memoized selectors when the store version moved.
// Callers hold s.mu for reading.
func (s *Store) refresh() *memo {
	m := &s.memo
	m.mu.Lock()
	if !m.valid || m.version != s.dataVersion {
		m.discovery = BuildDiscoveryIndex(s.state.Discovery)
		m.planned = BuildPlannedIndex(s.state.Places)
		m.filtered = FilterDiscovery(s.state.Discovery, s.state.Filters)
		m.version = s.dataVersion
		m.valid = true
	}
	return m
}

// FilteredDiscovery returns the discovery results with filters applied.
func (s *Store) FilteredDiscovery() []DiscoveryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.refresh()
	defer m.mu.Unlock()
	return append([]DiscoveryItem{}, m.filtered...)
}

// DiscoveryIndex returns the id lookup over discovery results. The map is
// shared; callers must not modify it.
func (s *Store) DiscoveryIndex() Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.refresh()
	defer m.mu.Unlock()
	return m.discovery
}

// PlannedIndex returns the id lookup over planned POIs. The map is shared;
// callers must not modify it.
func (s *Store) PlannedIndex() Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.refresh()
	defer m.mu.Unlock()
	return m.planned
}

// IsPlanned reports whether a POI id is already planned under any hub.
func (s *Store) IsPlanned(poiID string) bool {
	_, ok := s.PlannedIndex()[poiID]
	return ok
}
