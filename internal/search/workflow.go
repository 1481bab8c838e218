// Package search runs the "search this area" workflow: incremental
// nearby-search around the viewport center, or the new trip point flow that
// reverse-geocodes the center into a draft place awaiting confirmation.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-trip/internal/geo"
	"github.com/joeblew999/plat-trip/internal/store"
)

// NameDelimiter separates city and country in a composite place name.
const NameDelimiter = "||"

var (
	ErrNoDraft       = errors.New("no draft place")
	ErrNotAdjusting  = errors.New("draft is not being adjusted")
	ErrInvalidCenter = errors.New("invalid viewport center")
	ErrNoProvider    = errors.New("provider not configured")
	// ErrSuperseded is returned when a newer request replaced this one
	// before its response arrived.
	ErrSuperseded     = errors.New("superseded by a newer request")
	errNothingResolve = errors.New("nothing resolved")
)

// NearbySearcher returns points of interest of one category around a
// point. It must be safe for concurrent use.
type NearbySearcher interface {
	Search(ctx context.Context, category store.ItemType, center orb.Point, radius float64, limit int) ([]store.DiscoveryItem, error)
}

// Resolved is a reverse-geocoding result. Name may be "City||Country".
type Resolved struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Lat    float64  `json:"lat"`
	Lng    float64  `json:"lng"`
	Photos []string `json:"photos,omitempty"`
}

// ReverseGeocoder resolves a coordinate to a place. A nil result with a nil
// error means nothing was found.
type ReverseGeocoder interface {
	Resolve(ctx context.Context, center orb.Point) (*Resolved, error)
}

// State of the workflow.
type State string

const (
	StateIdle         State = "idle"
	StateSearching    State = "searching"
	StateDraftPending State = "draftPending"
	StateAdjusting    State = "adjustingLocation"
)

// Outcome tells the caller which branch a search-this-area action took.
type Outcome string

const (
	OutcomeNearby     Outcome = "nearby"
	OutcomeDraft      Outcome = "draft"
	OutcomeNothing    Outcome = "nothing"
	OutcomeSuperseded Outcome = "superseded"
)

// Draft is a candidate hub place awaiting confirmation.
type Draft struct {
	PlaceID  string   `json:"placeId,omitempty"`
	Name     string   `json:"name"`
	CityName string   `json:"cityName"`
	Country  string   `json:"country,omitempty"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Photos   []string `json:"photos,omitempty"`
}

// Config tunes the workflow.
type Config struct {
	// NewPointDistance is how far (metres) the viewport center may be from the
	// anchor hub before a search starts the new trip point flow.
	NewPointDistance float64
	// Radius is the nearby-search radius in metres before per-category caps.
	Radius     float64
	RadiusCaps map[store.ItemType]float64
	Limits     map[store.ItemType]int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		NewPointDistance: 50000,
		Radius:           10000,
		RadiusCaps: map[store.ItemType]float64{
			store.Attraction: 50000,
			store.Restaurant: 5000,
		},
		Limits: map[store.ItemType]int{
			store.Attraction: 20,
			store.Restaurant: 20,
		},
	}
}

// RadiusFor returns the capped radius for a category.
func (c Config) RadiusFor(cat store.ItemType) float64 {
	if limit, ok := c.RadiusCaps[cat]; ok && limit > 0 {
		return math.Min(c.Radius, limit)
	}
	return c.Radius
}

// ParseName splits a composite "City||Country" name. Without the delimiter
// the whole name is the city and no country is detected.
func ParseName(name string) (city, country string) {
	before, after, found := strings.Cut(name, NameDelimiter)
	if !found {
		return strings.TrimSpace(name), ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

// Workflow owns the search/draft state machine. Results are written to the
// store; the workflow itself keeps only its state and the current draft.
type Workflow struct {
	store    *store.Store
	searcher NearbySearcher
	geocoder ReverseGeocoder
	cfg      Config
	log      *zap.Logger

	// seq fences responses: only the latest request may write results.
	seq atomic.Uint64

	mu       sync.Mutex
	state    State
	draft    *Draft
	onChange func(State, *Draft)
}

// New creates a workflow. log may be nil.
func New(s *store.Store, searcher NearbySearcher, geocoder ReverseGeocoder, cfg Config, log *zap.Logger) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflow{
		store:    s,
		searcher: searcher,
		geocoder: geocoder,
		cfg:      cfg,
		log:      log.Named("search"),
		state:    StateIdle,
	}
}

// OnChange registers a callback run after every state transition.
func (w *Workflow) OnChange(fn func(State, *Draft)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Draft returns a copy of the current draft.
func (w *Workflow) Draft() (Draft, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft == nil {
		return Draft{}, false
	}
	return *w.draft, true
}

// Busy reports whether a request is in flight.
func (w *Workflow) Busy() bool {
	return w.State() == StateSearching
}

func (w *Workflow) transition(st State, d *Draft) {
	w.mu.Lock()
	w.state = st
	w.draft = d
	fn := w.onChange
	var cp *Draft
	if d != nil {
		c := *d
		cp = &c
	}
	w.mu.Unlock()

	if fn != nil {
		fn(st, cp)
	}
}

// NeedsNewPoint reports whether a search at center should start the new
// trip point flow: there is no hub place yet, or the anchor hub is farther
// than the configured distance. The anchor is the selected hub, or the
// nearest hub when nothing is selected.
func (w *Workflow) NeedsNewPoint(center orb.Point) bool {
	places := w.store.Places()
	if len(places) == 0 {
		return true
	}
	if hub, ok := w.store.Selected(); ok {
		return geo.DistanceMeters(center, hub.Point()) > w.cfg.NewPointDistance
	}
	min := math.Inf(1)
	for _, p := range places {
		min = math.Min(min, geo.DistanceMeters(center, p.Point()))
	}
	return min > w.cfg.NewPointDistance
}

// SearchThisArea runs the action behind the affordance at the viewport center.
func (w *Workflow) SearchThisArea(ctx context.Context, center orb.Point) (Outcome, error) {
	if !geo.Valid(center) {
		return OutcomeNothing, ErrInvalidCenter
	}
	if w.NeedsNewPoint(center) {
		ok, err := w.StartNewPoint(ctx, center)
		if err != nil {
			return OutcomeNothing, err
		}
		if !ok {
			return OutcomeNothing, nil
		}
		return OutcomeDraft, nil
	}
	if err := w.FetchNearby(ctx, center, true); err != nil {
		if errors.Is(err, ErrSuperseded) {
			return OutcomeSuperseded, nil
		}
		return OutcomeNothing, err
	}
	return OutcomeNearby, nil
}

// FetchNearby searches both categories concurrently around center and
// writes the merged batch to the store, appending or replacing. A failing
// category never hides the other's results. On total failure results are
// cleared only when not appending. The center is always recorded.
func (w *Workflow) FetchNearby(ctx context.Context, center orb.Point, appendMode bool) error {
	if !geo.Valid(center) {
		return ErrInvalidCenter
	}
	if w.searcher == nil {
		return ErrNoProvider
	}
	id := w.seq.Add(1)
	prevState, prevDraft := w.snapshot()
	w.transition(StateSearching, prevDraft)

	cats := []store.ItemType{store.Attraction, store.Restaurant}
	results := make([][]store.DiscoveryItem, len(cats))
	errs := make([]error, len(cats))

	var g errgroup.Group
	for i, cat := range cats {
		g.Go(func() error {
			items, err := w.searcher.Search(ctx, cat, center, w.cfg.RadiusFor(cat), w.cfg.Limits[cat])
			if err != nil {
				errs[i] = err
				w.log.Warn("nearby search failed", zap.String("category", string(cat)), zap.Error(err))
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	if err := w.store.RecordSearchCenter(center); err != nil {
		w.log.Debug("search center not recorded", zap.Error(err))
	}

	if w.seq.Load() != id {
		w.log.Debug("dropping superseded nearby results", zap.Uint64("request", id))
		return ErrSuperseded
	}
	w.restoreAfterSearch(prevState, prevDraft)

	if errs[0] != nil && errs[1] != nil {
		if !appendMode {
			w.store.ClearDiscoveryResults()
		}
		return nil
	}

	var merged []store.DiscoveryItem
	for _, items := range results {
		for _, it := range items {
			if !geo.Valid(it.Point()) {
				continue
			}
			if it.ItemType == "" {
				it.ItemType = store.Classify(it.Types)
			}
			merged = append(merged, it)
		}
	}

	if appendMode {
		existing := w.store.DiscoveryIndex()
		fresh := merged[:0]
		seen := map[string]bool{}
		for _, it := range merged {
			if _, dup := existing[it.ID]; dup || seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			fresh = append(fresh, it)
		}
		w.store.AddDiscoveryResults(fresh)
	} else {
		w.store.SetDiscoveryResults(merged)
	}
	w.log.Debug("nearby search done",
		zap.Int("items", len(merged)), zap.Bool("append", appendMode),
		zap.Bool("attractionsFailed", errs[0] != nil), zap.Bool("restaurantsFailed", errs[1] != nil))
	return nil
}

func (w *Workflow) snapshot() (State, *Draft) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.draft
}

// restoreAfterSearch leaves a pending draft intact when a nearby-search ran
// alongside it.
func (w *Workflow) restoreAfterSearch(prev State, d *Draft) {
	if prev == StateDraftPending || prev == StateAdjusting {
		w.transition(prev, d)
		return
	}
	w.transition(StateIdle, nil)
}

// StartNewPoint reverse-geocodes center into a draft. It reports false when
// nothing could be resolved; the workflow is then back to idle.
func (w *Workflow) StartNewPoint(ctx context.Context, center orb.Point) (bool, error) {
	if !geo.Valid(center) {
		return false, ErrInvalidCenter
	}
	id := w.seq.Add(1)
	w.transition(StateSearching, nil)

	d, err := w.resolve(ctx, center, id)
	switch {
	case errors.Is(err, ErrSuperseded):
		return false, nil
	case err != nil:
		w.transition(StateIdle, nil)
		return false, nil
	}
	w.transition(StateDraftPending, d)
	return true, nil
}

func (w *Workflow) resolve(ctx context.Context, center orb.Point, id uint64) (*Draft, error) {
	if w.geocoder == nil {
		return nil, ErrNoProvider
	}
	res, err := w.geocoder.Resolve(ctx, center)
	if w.seq.Load() != id {
		return nil, ErrSuperseded
	}
	if err != nil {
		w.log.Warn("reverse geocoding failed", zap.Error(err))
		return nil, err
	}
	if res == nil || res.Name == "" {
		w.log.Debug("reverse geocoding found nothing")
		return nil, errNothingResolve
	}
	city, country := ParseName(res.Name)
	return &Draft{
		PlaceID:  res.ID,
		Name:     res.Name,
		CityName: city,
		Country:  country,
		Lat:      center.Lat(),
		Lng:      center.Lon(),
		Photos:   res.Photos,
	}, nil
}

// BeginAdjust lets the user move the map to fine-tune the draft location.
func (w *Workflow) BeginAdjust() error {
	st, d := w.snapshot()
	if st != StateDraftPending || d == nil {
		return fmt.Errorf("begin adjust in state %s: %w", st, ErrNoDraft)
	}
	w.transition(StateAdjusting, d)
	return nil
}

// FinishAdjust re-resolves the draft against the viewport center and returns
// to draftPending. When nothing resolves the previous draft is kept.
func (w *Workflow) FinishAdjust(ctx context.Context, center orb.Point) error {
	st, prev := w.snapshot()
	if st != StateAdjusting || prev == nil {
		return fmt.Errorf("finish adjust in state %s: %w", st, ErrNotAdjusting)
	}
	if !geo.Valid(center) {
		return ErrInvalidCenter
	}
	id := w.seq.Add(1)

	d, err := w.resolve(ctx, center, id)
	switch {
	case errors.Is(err, ErrSuperseded):
		return nil
	case err != nil:
		w.transition(StateDraftPending, prev)
		return nil
	}
	w.transition(StateDraftPending, d)
	return nil
}

// Confirm promotes the draft into a new hub place, selects it and returns
// to idle.
func (w *Workflow) Confirm() (store.HubPlace, error) {
	st, d := w.snapshot()
	if d == nil || (st != StateDraftPending && st != StateAdjusting) {
		return store.HubPlace{}, ErrNoDraft
	}
	place, err := w.store.AddPlace(store.HubPlace{
		Name:    d.CityName,
		Country: d.Country,
		Lat:     d.Lat,
		Lng:     d.Lng,
		Photos:  d.Photos,
	})
	if err != nil {
		return store.HubPlace{}, fmt.Errorf("confirm draft: %w", err)
	}
	if err := w.store.SelectPlace(place.ID); err != nil {
		return store.HubPlace{}, fmt.Errorf("confirm draft: %w", err)
	}
	w.seq.Add(1)
	w.transition(StateIdle, nil)
	return place, nil
}

// Cancel discards the draft from any state. In-flight geocoding results are
// dropped.
func (w *Workflow) Cancel() {
	w.seq.Add(1)
	w.transition(StateIdle, nil)
}
