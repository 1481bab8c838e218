package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-trip/internal/geo"
)

var (
	ErrPlaceNotFound     = errors.New("place not found")
	ErrDuplicatePlace    = errors.New("place already exists")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidMode       = errors.New("invalid mode")
)

// State is a snapshot of everything the store owns.
type State struct {
	Places             []HubPlace      `json:"places"`
	Discovery          []DiscoveryItem `json:"discovery"`
	SearchCenters      []orb.Point     `json:"searchCenters"`
	SelectedPlaceID    string          `json:"selectedPlaceId,omitempty"`
	HoveredMarkerID    string          `json:"hoveredMarkerId,omitempty"`
	ExpandedCardID     string          `json:"expandedCardPlaceId,omitempty"`
	HighlightedPlaceID string          `json:"highlightedPlaceId,omitempty"`
	Mode               Mode            `json:"activeMode"`
	Filters            Filters         `json:"filters"`
}

// Store holds State behind a mutex. Every exported mutation is atomic: it
// completes fully or not at all, then notifies subscribers.
type Store struct {
	mu          sync.RWMutex
	state       State
	version     uint64
	// dataVersion only moves when entities or filters change, so cursor
	// updates keep the memoized selectors.
	dataVersion uint64
	bus         *EventBus

	watchMu  sync.RWMutex
	watchers map[int]func(Event)
	nextW    int

	memo memo
}

// New creates an empty store in discover mode.
func New() *Store {
	return &Store{
		state:    State{Mode: ModeDiscover},
		bus:      NewEventBus(),
		watchers: make(map[int]func(Event)),
	}
}

// Bus returns the asynchronous event bus.
func (s *Store) Bus() *EventBus {
	return s.bus
}

// Watch registers fn to run synchronously after each mutation, outside the
// store lock. It returns a function that removes the watcher.
func (s *Store) Watch(fn func(Event)) func() {
	s.watchMu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// Version increases with every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) notify(events ...Event) {
	s.watchMu.RLock()
	fns := make([]func(Event), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.RUnlock()

	for _, e := range events {
		s.bus.Publish(e)
		for _, fn := range fns {
			fn(e)
		}
	}
}

// update runs fn under the write lock. fn returns the events to publish;
// an empty slice means nothing changed and the version is not bumped.
func (s *Store) update(fn func(st *State) ([]Event, error)) error {
	s.mu.Lock()
	events, err := fn(&s.state)
	if err == nil && len(events) > 0 {
		s.version++
		for _, e := range events {
			if e.Resource != ResourceCursor && e.Resource != ResourceMode && e.Resource != ResourceSearch {
				s.dataVersion++
				break
			}
		}
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(events...)
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	st.Places = make([]HubPlace, len(s.state.Places))
	for i, p := range s.state.Places {
		st.Places[i] = p.clone()
	}
	st.Discovery = append([]DiscoveryItem{}, s.state.Discovery...)
	st.SearchCenters = append([]orb.Point{}, s.state.SearchCenters...)
	return st
}

// Places returns the hub places in itinerary order.
func (s *Store) Places() []HubPlace {
	return s.Snapshot().Places
}

// Place returns the hub place with the given id.
func (s *Store) Place(id string) (HubPlace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.state.Places, id); i >= 0 {
		return s.state.Places[i].clone(), true
	}
	return HubPlace{}, false
}

// Selected returns the selected hub place, if any.
func (s *Store) Selected() (HubPlace, bool) {
	s.mu.RLock()
	id := s.state.SelectedPlaceID
	s.mu.RUnlock()
	if id == "" {
		return HubPlace{}, false
	}
	return s.Place(id)
}

// Discovery returns the unfiltered discovery results.
func (s *Store) Discovery() []DiscoveryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]DiscoveryItem{}, s.state.Discovery...)
}

// DiscoveryItem returns the discovery result with the given id, ignoring
// filters.
func (s *Store) DiscoveryItem(id string) (DiscoveryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.state.Discovery {
		if it.ID == id {
			return it, true
		}
	}
	return DiscoveryItem{}, false
}

// SearchCenters returns the recorded search centers.
func (s *Store) SearchCenters() []orb.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]orb.Point{}, s.state.SearchCenters...)
}

// Mode returns the active mode.
func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Mode
}

// Cursor returns the hovered and expanded ids.
func (s *Store) Cursor() (hovered, expanded string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.HoveredMarkerID, s.state.ExpandedCardID
}

// HighlightedPlace returns the highlighted hub id, or "".
func (s *Store) HighlightedPlace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.HighlightedPlaceID
}

// --- Place lifecycle ---

// AddPlace appends a hub place. An empty ID is filled with a new UUID.
func (s *Store) AddPlace(p HubPlace) (HubPlace, error) {
	if !geo.Valid(p.Point()) {
		return HubPlace{}, fmt.Errorf("add place %q: %w", p.Name, ErrInvalidCoordinate)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PlannedAttractions == nil {
		p.PlannedAttractions = []PlannedPOI{}
	}
	if p.PlannedRestaurants == nil {
		p.PlannedRestaurants = []PlannedPOI{}
	}

	err := s.update(func(st *State) ([]Event, error) {
		if indexOf(st.Places, p.ID) >= 0 {
			return nil, fmt.Errorf("add place %q: %w", p.ID, ErrDuplicatePlace)
		}
		st.Places = append(st.Places, p.clone())
		return []Event{{Resource: ResourcePlaces, Action: "created", ID: p.ID}}, nil
	})
	if err != nil {
		return HubPlace{}, err
	}
	return p, nil
}

// RemovePlace deletes a hub place and clears cursor fields pointing at it.
func (s *Store) RemovePlace(id string) error {
	return s.update(func(st *State) ([]Event, error) {
		i := indexOf(st.Places, id)
		if i < 0 {
			return nil, fmt.Errorf("remove place %q: %w", id, ErrPlaceNotFound)
		}
		st.Places = append(st.Places[:i], st.Places[i+1:]...)
		events := []Event{{Resource: ResourcePlaces, Action: "deleted", ID: id}}
		if st.SelectedPlaceID == id {
			st.SelectedPlaceID = ""
			st.Discovery = nil
			events = append(events,
				Event{Resource: ResourceCursor, Action: "deselected", ID: id},
				Event{Resource: ResourceDiscovery, Action: "cleared"})
		}
		if st.HighlightedPlaceID == id {
			st.HighlightedPlaceID = ""
		}
		return events, nil
	})
}

// ReorderPlaces moves the place at from to index to. Out-of-range indices
// leave the order unchanged and report false.
func (s *Store) ReorderPlaces(from, to int) bool {
	moved := false
	_ = s.update(func(st *State) ([]Event, error) {
		next, ok := Reorder(st.Places, from, to)
		if !ok || from == to {
			return nil, nil
		}
		st.Places = next
		moved = true
		return []Event{{Resource: ResourcePlaces, Action: "moved", ID: next[to].ID}}, nil
	})
	return moved
}

// Reorder returns a copy of list with the element at from moved to to.
func Reorder[T any](list []T, from, to int) ([]T, bool) {
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) {
		return list, false
	}
	out := make([]T, 0, len(list))
	item := list[from]
	for i, v := range list {
		if i != from {
			out = append(out, v)
		}
	}
	out = append(out, item)
	copy(out[to+1:], out[to:len(out)-1])
	out[to] = item
	return out, true
}

// --- POI lifecycle ---

// AddPOI commits poi to the attraction or restaurant list of the place,
// chosen by poi.ItemType. Adding an id already in either list of that place
// is a no-op.
// It reports whether the POI was added.
func (s *Store) AddPOI(placeID string, poi PlannedPOI) (bool, error) {
	if !geo.Valid(poi.Point()) {
		return false, fmt.Errorf("add poi %q: %w", poi.ID, ErrInvalidCoordinate)
	}
	if poi.ItemType == "" {
		poi.ItemType = Classify(poi.Types)
	}

	added := false
	err := s.update(func(st *State) ([]Event, error) {
		i := indexOf(st.Places, placeID)
		if i < 0 {
			return nil, fmt.Errorf("add poi to %q: %w", placeID, ErrPlaceNotFound)
		}
		hub := &st.Places[i]
		if containsPOI(hub.PlannedAttractions, poi.ID) || containsPOI(hub.PlannedRestaurants, poi.ID) {
			return nil, nil
		}
		list := hub.list(poi.ItemType)
		*list = append(*list, poi)
		added = true
		return []Event{{Resource: ResourcePOIs, Action: "created", ID: poi.ID}}, nil
	})
	return added, err
}

// RemovePOI removes a POI of the given kind from a place. It reports whether
// anything was removed.
func (s *Store) RemovePOI(placeID string, kind ItemType, poiID string) (bool, error) {
	removed := false
	err := s.update(func(st *State) ([]Event, error) {
		i := indexOf(st.Places, placeID)
		if i < 0 {
			return nil, fmt.Errorf("remove poi from %q: %w", placeID, ErrPlaceNotFound)
		}
		list := st.Places[i].list(kind)
		for j, p := range *list {
			if p.ID == poiID {
				*list = append((*list)[:j], (*list)[j+1:]...)
				removed = true
				events := []Event{{Resource: ResourcePOIs, Action: "deleted", ID: poiID}}
				events = append(events, clearCursorFor(st, poiID)...)
				return events, nil
			}
		}
		return nil, nil
	})
	return removed, err
}

// AddAttraction adds poi to the place's attraction list.
func (s *Store) AddAttraction(placeID string, poi PlannedPOI) (bool, error) {
	poi.ItemType = Attraction
	return s.AddPOI(placeID, poi)
}

// AddRestaurant adds poi to the place's restaurant list.
func (s *Store) AddRestaurant(placeID string, poi PlannedPOI) (bool, error) {
	poi.ItemType = Restaurant
	return s.AddPOI(placeID, poi)
}

// RemoveAttraction removes an attraction by id.
func (s *Store) RemoveAttraction(placeID, poiID string) (bool, error) {
	return s.RemovePOI(placeID, Attraction, poiID)
}

// RemoveRestaurant removes a restaurant by id.
func (s *Store) RemoveRestaurant(placeID, poiID string) (bool, error) {
	return s.RemovePOI(placeID, Restaurant, poiID)
}

// --- Selection / UI cursor ---

// SelectPlace marks a hub place as selected.
func (s *Store) SelectPlace(id string) error {
	return s.update(func(st *State) ([]Event, error) {
		if indexOf(st.Places, id) < 0 {
			return nil, fmt.Errorf("select place %q: %w", id, ErrPlaceNotFound)
		}
		if st.SelectedPlaceID == id {
			return nil, nil
		}
		st.SelectedPlaceID = id
		return []Event{{Resource: ResourceCursor, Action: "selected", ID: id}}, nil
	})
}

// DeselectPlace clears the selection along with the discovery results
// gathered around it.
func (s *Store) DeselectPlace() {
	_ = s.update(func(st *State) ([]Event, error) {
		if st.SelectedPlaceID == "" {
			return nil, nil
		}
		id := st.SelectedPlaceID
		st.SelectedPlaceID = ""
		st.Discovery = nil
		return []Event{
			{Resource: ResourceCursor, Action: "deselected", ID: id},
			{Resource: ResourceDiscovery, Action: "cleared"},
		}, nil
	})
}

// SetHovered sets the hovered marker id; "" clears it.
func (s *Store) SetHovered(id string) {
	s.setCursor(func(st *State) *string { return &st.HoveredMarkerID }, "hovered", id)
}

// SetExpanded sets the expanded card id; "" closes the card.
func (s *Store) SetExpanded(id string) {
	s.setCursor(func(st *State) *string { return &st.ExpandedCardID }, "expanded", id)
}

// SetHighlighted sets the highlighted place id; "" clears it.
func (s *Store) SetHighlighted(id string) {
	s.setCursor(func(st *State) *string { return &st.HighlightedPlaceID }, "highlighted", id)
}

func (s *Store) setCursor(field func(*State) *string, action, id string) {
	_ = s.update(func(st *State) ([]Event, error) {
		f := field(st)
		if *f == id {
			return nil, nil
		}
		*f = id
		return []Event{{Resource: ResourceCursor, Action: action, ID: id}}, nil
	})
}

// SetMode switches the active mode.
func (s *Store) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("set mode %q: %w", m, ErrInvalidMode)
	}
	return s.update(func(st *State) ([]Event, error) {
		if st.Mode == m {
			return nil, nil
		}
		st.Mode = m
		// Ids from one universe mean nothing in the other.
		st.HoveredMarkerID = ""
		st.ExpandedCardID = ""
		return []Event{{Resource: ResourceMode, Action: "updated", ID: string(m)}}, nil
	})
}

// SetFilters replaces the filter state.
func (s *Store) SetFilters(f Filters) {
	_ = s.update(func(st *State) ([]Event, error) {
		if st.Filters == f {
			return nil, nil
		}
		st.Filters = f
		return []Event{{Resource: ResourceFilters, Action: "updated"}}, nil
	})
}

// ClearFilters resets filters to their zero value.
func (s *Store) ClearFilters() {
	s.SetFilters(Filters{})
}

// --- Discovery ---

// SetDiscoveryResults replaces the discovery results.
func (s *Store) SetDiscoveryResults(items []DiscoveryItem) {
	_ = s.update(func(st *State) ([]Event, error) {
		st.Discovery = append([]DiscoveryItem{}, items...)
		return []Event{{Resource: ResourceDiscovery, Action: "replaced"}}, nil
	})
}

// AddDiscoveryResults appends a batch to the discovery results.
func (s *Store) AddDiscoveryResults(items []DiscoveryItem) {
	if len(items) == 0 {
		return
	}
	_ = s.update(func(st *State) ([]Event, error) {
		st.Discovery = append(st.Discovery, items...)
		return []Event{{Resource: ResourceDiscovery, Action: "appended"}}, nil
	})
}

// ClearDiscoveryResults empties the discovery results.
func (s *Store) ClearDiscoveryResults() {
	_ = s.update(func(st *State) ([]Event, error) {
		if len(st.Discovery) == 0 {
			return nil, nil
		}
		st.Discovery = nil
		return []Event{{Resource: ResourceDiscovery, Action: "cleared"}}, nil
	})
}

// RecordSearchCenter appends p to the search-center history.
func (s *Store) RecordSearchCenter(p orb.Point) error {
	if !geo.Valid(p) {
		return fmt.Errorf("record search center: %w", ErrInvalidCoordinate)
	}
	return s.update(func(st *State) ([]Event, error) {
		st.SearchCenters = append(st.SearchCenters, p)
		return []Event{{Resource: ResourceSearch, Action: "created"}}, nil
	})
}

// Restore replaces the hub places wholesale, e.g. from a saved plan.
func (s *Store) Restore(places []HubPlace) error {
	for _, p := range places {
		if !geo.Valid(p.Point()) {
			return fmt.Errorf("restore place %q: %w", p.ID, ErrInvalidCoordinate)
		}
	}
	return s.update(func(st *State) ([]Event, error) {
		st.Places = make([]HubPlace, len(places))
		for i, p := range places {
			st.Places[i] = p.clone()
		}
		st.SelectedPlaceID = ""
		return []Event{{Resource: ResourcePlaces, Action: "restored"}}, nil
	})
}

func clearCursorFor(st *State, id string) []Event {
	var events []Event
	if st.HoveredMarkerID == id {
		st.HoveredMarkerID = ""
		events = append(events, Event{Resource: ResourceCursor, Action: "hovered"})
	}
	if st.ExpandedCardID == id {
		st.ExpandedCardID = ""
		events = append(events, Event{Resource: ResourceCursor, Action: "expanded"})
	}
	return events
}

func indexOf(places []HubPlace, id string) int {
	for i, p := range places {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func containsPOI(list []PlannedPOI, id string) bool {
	for _, p := range list {
		if p.ID == id {
			return true
		}
	}
	return false
}
