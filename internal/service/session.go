// Package service composes the map interaction core around one viewport:
// the store, the search workflow, selection, pan detection and the marker
// layers, plus persistence of preferences and the plan.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-trip/internal/db"
	"github.com/joeblew999/plat-trip/internal/layout"
	"github.com/joeblew999/plat-trip/internal/markers"
	"github.com/joeblew999/plat-trip/internal/pan"
	"github.com/joeblew999/plat-trip/internal/projection"
	"github.com/joeblew999/plat-trip/internal/search"
	"github.com/joeblew999/plat-trip/internal/selection"
	"github.com/joeblew999/plat-trip/internal/store"
)

// Session-level resources published on the store bus next to store events.
const (
	ResourceAffordance = "affordance"
	ResourceDraft      = "draft"
	ResourceViewport   = "viewport"
)

// Marker layer names.
const (
	LayerHubs      = "hubs"
	LayerPlanned   = "planned"
	LayerDiscovery = "discovery"
)

// ErrViewportNotReady is returned by actions that need the viewport center
// before the page reported one.
var ErrViewportNotReady = errors.New("viewport not ready")

// Config carries the session tuning.
type Config struct {
	Search       search.Config
	Selection    selection.Config
	PanThreshold float64
	PanDelay     time.Duration
	CardOffset   float64
	// PreferredSide is where desktop cards go when they fit.
	PreferredSide layout.Side
	// SaveTimeout bounds each persistence write.
	SaveTimeout time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Search:        search.DefaultConfig(),
		Selection:     selection.DefaultConfig(),
		PanThreshold:  pan.DefaultThreshold,
		PanDelay:      pan.DefaultDelay,
		CardOffset:    layout.DefaultOffset,
		PreferredSide: layout.Top,
		SaveTimeout:   2 * time.Second,
	}
}

// Persister stores preferences and the plan. *db.Repository implements it.
type Persister interface {
	LoadPreferences(ctx context.Context) (db.Preferences, error)
	SavePreferences(ctx context.Context, p db.Preferences) error
	LoadPlan(ctx context.Context) ([]store.HubPlace, error)
	SavePlan(ctx context.Context, places []store.HubPlace) error
}

// Deps are the external collaborators. Every field may be nil.
type Deps struct {
	Searcher  search.NearbySearcher
	Geocoder  search.ReverseGeocoder
	Persister Persister
	Logger    *zap.Logger
}

var (
	_ selection.Camera = (*Viewport)(nil)
	_ Persister        = (*db.Repository)(nil)
)

// Session is one user's map session.
type Session struct {
	cfg       Config
	log       *zap.Logger
	persister Persister

	store     *store.Store
	viewport  *Viewport
	workflow  *search.Workflow
	selection *selection.Controller
	detector  *pan.Detector

	hubs      *markers.Layer
	planned   *markers.Layer
	discovery *markers.Layer

	mu               sync.Mutex
	mobile           bool
	sidebar          layout.Rect
	sidebarCollapsed bool

	unwatch func()
}

// New builds a session. Call Start before use.
func New(cfg Config, deps Deps) *Session {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	st := store.New()
	vp := NewViewport()
	s := &Session{
		cfg:       cfg,
		log:       log.Named("session"),
		persister: deps.Persister,
		store:     st,
		viewport:  vp,
		workflow:  search.New(st, deps.Searcher, deps.Geocoder, cfg.Search, log),
		selection: selection.NewController(st, vp, vp, cfg.Selection, log),
		hubs:      markers.NewLayer(LayerHubs, vp),
		planned:   markers.NewLayer(LayerPlanned, vp),
		discovery: markers.NewLayer(LayerDiscovery, vp),
	}
	s.detector = pan.NewDetector(cfg.PanDelay, s.panInput, s.onPanDecision)
	s.workflow.OnChange(s.onWorkflowChange)
	return s
}

// Start restores persisted state and begins reacting to store changes.
// Missing or unreadable persisted state falls back to defaults.
func (s *Session) Start(ctx context.Context) {
	if s.persister != nil {
		prefs, err := s.persister.LoadPreferences(ctx)
		if err != nil {
			s.log.Warn("preferences not loaded, using defaults", zap.Error(err))
			prefs = db.DefaultPreferences()
		}
		s.applyPreferences(prefs)

		places, err := s.persister.LoadPlan(ctx)
		switch {
		case err != nil:
			s.log.Warn("plan not loaded", zap.Error(err))
		case len(places) > 0:
			if err := s.store.Restore(places); err != nil {
				s.log.Warn("plan not restored", zap.Error(err))
			}
		}
	}

	s.selection.Start()
	s.unwatch = s.store.Watch(s.onStoreEvent)
	s.reconcile()
	s.highlight()
	s.log.Info("session started", zap.Int("places", len(s.store.Places())))
}

// Close stops timers and watchers.
func (s *Session) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
	s.selection.Stop()
	s.detector.Stop()
}

// Store returns the session store.
func (s *Session) Store() *store.Store { return s.store }

// Viewport returns the server mirror of the map.
func (s *Session) Viewport() *Viewport { return s.viewport }

// Workflow returns the search workflow.
func (s *Session) Workflow() *search.Workflow { return s.workflow }

// Selection returns the selection controller.
func (s *Session) Selection() *selection.Controller { return s.selection }

// Bus returns the bus carrying store and session events.
func (s *Session) Bus() *store.EventBus { return s.store.Bus() }

func (s *Session) publish(resource, action, id string) {
	s.store.Bus().Publish(store.Event{Resource: resource, Action: action, ID: id})
}

// --- Viewport and pointer events ---

// OnIdle applies a settled viewport, schedules the pan check and closes an
// expanded card that scrolled out of view.
func (s *Session) OnIdle(state ViewportState) error {
	if err := s.viewport.Apply(state); err != nil {
		return err
	}
	s.detector.Notify()
	if s.selection.ViewportChanged() {
		s.log.Debug("expanded card auto-closed")
	}
	s.publish(ResourceViewport, "idle", "")
	return nil
}

// Hover shows the hover card for a marker.
func (s *Session) Hover(id string) { s.selection.HoverMarker(id) }

// LeaveMarker starts the hover grace period.
func (s *Session) LeaveMarker() { s.selection.LeaveMarker() }

// EnterCard keeps the hover card open.
func (s *Session) EnterCard() { s.selection.EnterCard() }

// LeaveCard starts the hover grace period.
func (s *Session) LeaveCard() { s.selection.LeaveCard() }

// Expand opens the card for id and recenters on it.
func (s *Session) Expand(id string) { s.selection.Expand(id) }

// CloseCard closes the expanded card.
func (s *Session) CloseCard() { s.selection.Close() }

// SelectPlace selects a hub place, recenters on it and loads what is
// around it into discovery.
func (s *Session) SelectPlace(ctx context.Context, id string) error {
	if err := s.store.SelectPlace(id); err != nil {
		return err
	}
	s.discoverAround(ctx, id)
	return nil
}

// ConfirmDraft promotes the draft into a selected hub place and loads what
// is around it into discovery.
func (s *Session) ConfirmDraft(ctx context.Context) (store.HubPlace, error) {
	place, err := s.workflow.Confirm()
	if err != nil {
		return place, err
	}
	s.discoverAround(ctx, place.ID)
	return place, nil
}

// discoverAround replaces the discovery results with a nearby search at the
// hub. Plan mode does not show discovery and skips it.
func (s *Session) discoverAround(ctx context.Context, id string) {
	if !s.store.Mode().UsesDiscovery() {
		return
	}
	hub, ok := s.store.Place(id)
	if !ok {
		return
	}
	if err := s.workflow.FetchNearby(ctx, hub.Point(), false); err != nil {
		s.log.Debug("discovery around hub not loaded", zap.String("place", id), zap.Error(err))
	}
}

// BackgroundClick closes the expanded card and clears hover.
func (s *Session) BackgroundClick() {
	s.selection.Close()
	s.store.SetHovered("")
}

// --- Search ---

// SearchThisArea runs the search affordance at the current viewport center.
func (s *Session) SearchThisArea(ctx context.Context) (search.Outcome, error) {
	center, ok := s.viewport.Center()
	if !ok {
		return search.OutcomeNothing, ErrViewportNotReady
	}
	s.detector.Reset()
	s.publish(ResourceAffordance, "hidden", "")
	out, err := s.workflow.SearchThisArea(ctx, center)
	if err != nil {
		return out, fmt.Errorf("search this area: %w", err)
	}
	return out, nil
}

// FinishAdjust re-resolves the draft at the current viewport center.
func (s *Session) FinishAdjust(ctx context.Context) error {
	center, ok := s.viewport.Center()
	if !ok {
		return ErrViewportNotReady
	}
	return s.workflow.FinishAdjust(ctx, center)
}

// Affordance returns the latest pan decision.
func (s *Session) Affordance() pan.Decision {
	return s.detector.Last()
}

func (s *Session) panInput() pan.Input {
	in := pan.Input{
		Centers:   s.store.SearchCenters(),
		Threshold: s.cfg.PanThreshold,
	}
	in.Center, _ = s.viewport.Center()
	if hub, ok := s.store.Selected(); ok {
		p := hub.Point()
		in.Fallback = &p
	}
	return in
}

func (s *Session) onPanDecision(d pan.Decision) {
	action := "hidden"
	if d.Show {
		action = "shown"
	}
	s.publish(ResourceAffordance, action, "")
}

func (s *Session) onWorkflowChange(st search.State, _ *search.Draft) {
	s.publish(ResourceDraft, string(st), "")
}

// --- Layout ---

// SetLayout switches between the desktop and mobile layouts. sidebar is
// the desktop sidebar's page rect; cards avoid only the part of it that
// covers the map container.
func (s *Session) SetLayout(mobile bool, sidebar layout.Rect) {
	s.mu.Lock()
	s.mobile = mobile
	s.sidebar = sidebar
	s.mu.Unlock()
	s.selection.SetAutoClose(!mobile)
}

// CardSizes are the rendered sizes of the floating cards.
type CardSizes struct {
	Hover    layout.Size `json:"hover"`
	Expanded layout.Size `json:"expanded"`
}

// CardPosition is where one card goes, in page coordinates.
type CardPosition struct {
	ID     string       `json:"id"`
	Origin layout.Point `json:"origin"`
}

// CardPlacements holds the positions of the visible cards. A nil entry is
// not drawn this frame.
type CardPlacements struct {
	Hover    *CardPosition `json:"hover,omitempty"`
	Expanded *CardPosition `json:"expanded,omitempty"`
}

// CardPlacement positions the hover and expanded cards. Desktop cards sit
// next to their markers and avoid the sidebar; on mobile the hover card is
// docked to the bottom and the expanded card is centered.
func (s *Session) CardPlacement(sizes CardSizes) CardPlacements {
	var out CardPlacements
	rect, ok := s.viewport.ContainerRect()
	if !ok {
		return out
	}
	container := layout.Size{W: rect.W, H: rect.H}

	s.mu.Lock()
	mobile := s.mobile
	var exclusion *layout.Rect
	if !s.sidebarCollapsed {
		if overlap := s.sidebar.Intersect(rect); !overlap.Empty() {
			overlap.X -= rect.X
			overlap.Y -= rect.Y
			exclusion = &overlap
		}
	}
	s.mu.Unlock()

	// Placement runs in container coordinates; the page positions cards
	// against the document.
	toPage := func(id string, p layout.Point) *CardPosition {
		return &CardPosition{ID: id, Origin: layout.Point{X: p.X + rect.X, Y: p.Y + rect.Y}}
	}
	place := func(v store.ScoredView, size layout.Size, docked bool) *CardPosition {
		if mobile {
			if docked {
				return toPage(v.POI.ID, layout.BottomDocked(size, container))
			}
			return toPage(v.POI.ID, layout.Centered(size, container))
		}
		pt, ok := projectLocal(s.viewport, v)
		if !ok {
			return nil
		}
		return toPage(v.POI.ID, layout.Place(pt, size, container, s.cfg.CardOffset, s.cfg.PreferredSide, exclusion))
	}

	if v, ok := s.selection.Hovered(); ok {
		out.Hover = place(v, sizes.Hover, true)
	}
	if v, ok := s.selection.Expanded(); ok {
		out.Expanded = place(v, sizes.Expanded, false)
	}
	return out
}

// --- Preferences ---

// Preferences returns the current UI preferences.
func (s *Session) Preferences() db.Preferences {
	snap := s.store.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	return db.Preferences{
		ViewMode:         snap.Mode,
		SidebarCollapsed: s.sidebarCollapsed,
		Filters:          snap.Filters,
	}
}

// SetPreferences applies and saves p.
func (s *Session) SetPreferences(p db.Preferences) error {
	if !p.ViewMode.Valid() {
		return fmt.Errorf("preferences: %w", store.ErrInvalidMode)
	}
	s.applyPreferences(p)
	s.savePreferences()
	return nil
}

func (s *Session) applyPreferences(p db.Preferences) {
	s.mu.Lock()
	s.sidebarCollapsed = p.SidebarCollapsed
	s.mu.Unlock()
	if p.ViewMode.Valid() {
		_ = s.store.SetMode(p.ViewMode)
	}
	s.store.SetFilters(p.Filters)
}

func (s *Session) savePreferences() {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
	defer cancel()
	if err := s.persister.SavePreferences(ctx, s.Preferences()); err != nil {
		s.log.Warn("preferences not saved", zap.Error(err))
	}
}

func (s *Session) savePlan() {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
	defer cancel()
	if err := s.persister.SavePlan(ctx, s.store.Places()); err != nil {
		s.log.Warn("plan not saved", zap.Error(err))
	}
}

// --- Store reactions ---

func (s *Session) onStoreEvent(e store.Event) {
	switch e.Resource {
	case store.ResourcePlaces, store.ResourcePOIs:
		s.reconcile()
		s.highlight()
		s.savePlan()
	case store.ResourceDiscovery:
		s.reconcile()
		s.highlight()
	case store.ResourceMode, store.ResourceFilters:
		s.reconcile()
		s.highlight()
		s.savePreferences()
	case store.ResourceCursor:
		s.highlight()
		if e.Action == "selected" || e.Action == "deselected" {
			s.detector.Notify()
		}
	case store.ResourceSearch:
		s.detector.Notify()
	}
}

// reconcile brings every marker layer in line with the store. Discovery
// markers are hidden in plan mode and skip POIs that are already planned.
func (s *Session) reconcile() {
	places := s.store.Places()
	s.hubs.Reconcile(markers.FromHubs(places))
	s.planned.Reconcile(markers.FromPlanned(places))

	if !s.store.Mode().UsesDiscovery() {
		s.discovery.Clear()
		return
	}
	planned := s.store.PlannedIndex()
	var items []store.DiscoveryItem
	for _, it := range s.store.FilteredDiscovery() {
		if _, ok := planned[it.ID]; !ok {
			items = append(items, it)
		}
	}
	s.discovery.Reconcile(markers.FromDiscovery(items))
}

// highlight is the visual-only pass. Hubs use the highlighted and
// selected place ids; POI layers use the hovered and expanded ids.
func (s *Session) highlight() {
	hovered, expanded := s.store.Cursor()
	s.planned.Highlight(hovered, expanded)
	s.discovery.Highlight(hovered, expanded)

	selected := ""
	if hub, ok := s.store.Selected(); ok {
		selected = hub.ID
	}
	s.hubs.Highlight(s.store.HighlightedPlace(), selected)
}

// Resync re-issues every marker, e.g. when a new page connects.
func (s *Session) Resync() {
	s.viewport.Drain()
	for _, l := range []*markers.Layer{s.hubs, s.planned, s.discovery} {
		l.Clear()
	}
	s.viewport.Drain()
	s.reconcile()
	s.highlight()
}

func projectLocal(v *Viewport, sv store.ScoredView) (layout.Point, bool) {
	pt, ok := projection.Project(v, sv.POI.Point())
	if !ok {
		return layout.Point{}, false
	}
	rect, ok := v.ContainerRect()
	if !ok {
		return layout.Point{}, false
	}
	return projection.Local(pt, rect), true
}
