package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-trip/internal/db"
	"github.com/joeblew999/plat-trip/internal/geo"
	"github.com/joeblew999/plat-trip/internal/layout"
	"github.com/joeblew999/plat-trip/internal/search"
	"github.com/joeblew999/plat-trip/internal/store"
)

type memPersister struct {
	mu    sync.Mutex
	prefs *db.Preferences
	plan  []store.HubPlace
	saves int
}

func (m *memPersister) LoadPreferences(context.Context) (db.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prefs == nil {
		return db.DefaultPreferences(), nil
	}
	return *m.prefs, nil
}

func (m *memPersister) SavePreferences(_ context.Context, p db.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = &p
	return nil
}

func (m *memPersister) LoadPlan(context.Context) ([]store.HubPlace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan, nil
}

func (m *memPersister) SavePlan(_ context.Context, places []store.HubPlace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan = places
	m.saves++
	return nil
}

type nearby struct{}

func (nearby) Search(_ context.Context, cat store.ItemType, center orb.Point, _ float64, _ int) ([]store.DiscoveryItem, error) {
	sub := store.SubScores{Quality: 0.8, Persona: 0.5, Diversity: 1, Confidence: 0.9}
	if cat == store.Restaurant {
		return []store.DiscoveryItem{
			store.NewDiscoveryItem(store.POI{ID: "r1", Name: "Bistro", Types: []string{"restaurant"},
				Lat: geo.Offset(center, 300, 0).Lat(), Lng: center.Lon()}, sub, 0.8),
		}, nil
	}
	return []store.DiscoveryItem{
		store.NewDiscoveryItem(store.POI{ID: "a1", Name: "Museum", Types: []string{"museum"},
			Lat: geo.Offset(center, 0, 400).Lat(), Lng: geo.Offset(center, 0, 400).Lon()}, sub, 0.7),
		store.NewDiscoveryItem(store.POI{ID: "a2", Name: "Tower", Types: []string{"tourist_attraction"},
			Lat: geo.Offset(center, -500, 0).Lat(), Lng: center.Lon()}, sub, 0.6),
	}, nil
}

type geocoder struct{}

func (geocoder) Resolve(_ context.Context, center orb.Point) (*search.Resolved, error) {
	return &search.Resolved{ID: "paris", Name: "Paris||France", Lat: center.Lat(), Lng: center.Lon()}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PanDelay = time.Hour
	cfg.Selection.HoverGrace = time.Hour
	return cfg
}

func newSession(t *testing.T, p *memPersister) *Session {
	t.Helper()
	deps := Deps{Searcher: nearby{}, Geocoder: geocoder{}}
	if p != nil {
		deps.Persister = p
	}
	s := New(testConfig(), deps)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

func countOps(cmds []Command, op, layer string) int {
	n := 0
	for _, c := range cmds {
		if c.Op == op && (layer == "" || c.Layer == layer) {
			n++
		}
	}
	return n
}

func TestSearchBeforeViewportReady(t *testing.T) {
	s := newSession(t, nil)
	if _, err := s.SearchThisArea(context.Background()); err == nil {
		t.Fatal("search ran without a viewport")
	}
}

func TestOnIdleRejectsInvalidViewport(t *testing.T) {
	s := newSession(t, nil)
	bad := paris()
	bad.Lng = math.Inf(1)
	if err := s.OnIdle(bad); err == nil {
		t.Fatal("invalid viewport accepted")
	}
	if s.Viewport().Ready() {
		t.Fatal("viewport ready after invalid report")
	}
}

func TestNewPointThenNearbySearch(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	s := newSession(t, p)
	vp := paris()
	vp.Zoom = 5
	if err := s.OnIdle(vp); err != nil {
		t.Fatal(err)
	}

	out, err := s.SearchThisArea(ctx)
	if err != nil || out != search.OutcomeDraft {
		t.Fatalf("outcome=%v err=%v, want draft", out, err)
	}
	hub, err := s.Workflow().Confirm()
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if hub.Name != "Paris" || hub.Country != "France" {
		t.Fatalf("hub=%+v", hub)
	}

	cmds := s.Viewport().Drain()
	if countOps(cmds, OpAddMarker, LayerHubs) != 1 {
		t.Fatalf("hub markers added=%d", countOps(cmds, OpAddMarker, LayerHubs))
	}
	if countOps(cmds, OpPan, "") != 1 || countOps(cmds, OpZoom, "") != 1 {
		t.Fatalf("selecting the hub did not recenter: %+v", cmds)
	}
	if z, _ := s.Viewport().Zoom(); z != 12 {
		t.Fatalf("zoom=%v, want hub floor 12", z)
	}
	if len(p.plan) != 1 {
		t.Fatalf("saved plan=%v", p.plan)
	}

	// Near the selected hub: nearby-search in append mode.
	out, err = s.SearchThisArea(ctx)
	if err != nil || out != search.OutcomeNearby {
		t.Fatalf("outcome=%v err=%v, want nearby", out, err)
	}
	if n := countOps(s.Viewport().Drain(), OpAddMarker, LayerDiscovery); n != 3 {
		t.Fatalf("discovery markers added=%d, want 3", n)
	}

	// Same results again: append dedupes, no marker churn.
	if _, err := s.SearchThisArea(ctx); err != nil {
		t.Fatal(err)
	}
	cmds = s.Viewport().Drain()
	if countOps(cmds, OpAddMarker, LayerDiscovery) != 0 || countOps(cmds, OpRemove, LayerDiscovery) != 0 {
		t.Fatalf("repeat search touched markers: %+v", cmds)
	}

	// Planning a POI moves its marker from the discovery layer to the planned layer.
	item := s.Store().Discovery()[0]
	if _, err := s.Store().AddAttraction(hub.ID, item.Plan()); err != nil {
		t.Fatal(err)
	}
	cmds = s.Viewport().Drain()
	if countOps(cmds, OpRemove, LayerDiscovery) != 1 || countOps(cmds, OpAddMarker, LayerPlanned) != 1 {
		t.Fatalf("planning commands=%+v", cmds)
	}
	if len(p.plan[0].PlannedAttractions) != 1 {
		t.Fatalf("saved plan=%+v", p.plan)
	}
}

func TestAffordanceFollowsPan(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)
	hub, _ := s.Store().AddPlace(store.HubPlace{Name: "Paris", Lat: 48.8566, Lng: 2.3522})
	s.Store().SelectPlace(hub.ID)
	s.OnIdle(paris())

	if _, err := s.SearchThisArea(ctx); err != nil {
		t.Fatal(err)
	}
	s.detector.Flush()
	if s.Affordance().Show {
		t.Fatal("affordance shown at the search center")
	}

	moved := paris()
	far := geo.Offset(moved.Center(), 3000, 0)
	moved.Lat, moved.Lng = far.Lat(), far.Lon()
	s.OnIdle(moved)
	s.detector.Flush()
	d := s.Affordance()
	if !d.Show || math.Abs(d.MinDistance-3000) > 5 {
		t.Fatalf("decision=%+v, want shown at ~3km", d)
	}

	near := geo.Offset(paris().Center(), 1500, 0)
	moved.Lat, moved.Lng = near.Lat(), near.Lon()
	s.OnIdle(moved)
	s.detector.Flush()
	if s.Affordance().Show {
		t.Fatal("affordance shown within the threshold")
	}
}

func TestModeSwitchHidesDiscoveryAndSavesPreferences(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	s := newSession(t, p)
	hub, _ := s.Store().AddPlace(store.HubPlace{Name: "Paris", Lat: 48.8566, Lng: 2.3522})
	s.Store().SelectPlace(hub.ID)
	s.OnIdle(paris())
	s.SearchThisArea(ctx)
	s.Viewport().Drain()

	if err := s.Store().SetMode(store.ModePlan); err != nil {
		t.Fatal(err)
	}
	if n := countOps(s.Viewport().Drain(), OpRemove, LayerDiscovery); n != 3 {
		t.Fatalf("discovery markers removed=%d, want 3", n)
	}
	if p.prefs == nil || p.prefs.ViewMode != store.ModePlan {
		t.Fatalf("saved prefs=%+v", p.prefs)
	}

	s.Store().SetMode(store.ModeDiscover)
	s.Store().SetFilters(store.Filters{Category: store.CategoryRestaurants})
	cmds := s.Viewport().Drain()
	if countOps(cmds, OpAddMarker, LayerDiscovery) != 3 || countOps(cmds, OpRemove, LayerDiscovery) != 2 {
		t.Fatalf("filter commands=%+v", cmds)
	}
	if p.prefs.Filters.Category != store.CategoryRestaurants {
		t.Fatalf("saved filters=%+v", p.prefs.Filters)
	}
}

func TestStartRestoresPersistedState(t *testing.T) {
	p := &memPersister{
		prefs: &db.Preferences{ViewMode: store.ModePlan, SidebarCollapsed: true},
		plan: []store.HubPlace{{ID: "rome", Name: "Rome", Lat: 41.9, Lng: 12.5,
			PlannedAttractions: []store.PlannedPOI{{POI: store.POI{ID: "colosseum", Lat: 41.89, Lng: 12.49, ItemType: store.Attraction}}},
		}},
	}
	s := newSession(t, p)

	if s.Store().Mode() != store.ModePlan {
		t.Fatalf("mode=%v, want plan", s.Store().Mode())
	}
	if !s.Preferences().SidebarCollapsed {
		t.Fatal("sidebar state not restored")
	}
	if len(s.Store().Places()) != 1 {
		t.Fatalf("places=%d", len(s.Store().Places()))
	}
	cmds := s.Viewport().Drain()
	if countOps(cmds, OpAddMarker, LayerHubs) != 1 || countOps(cmds, OpAddMarker, LayerPlanned) != 1 {
		t.Fatalf("restore commands=%+v", cmds)
	}
	if p.saves != 0 {
		t.Fatalf("restore wrote the plan back %d times", p.saves)
	}
}

func TestStartWithoutPersister(t *testing.T) {
	s := newSession(t, nil)
	if s.Store().Mode() != store.ModeDiscover {
		t.Fatalf("mode=%v, want discover default", s.Store().Mode())
	}
	if err := s.SetPreferences(db.Preferences{ViewMode: "bogus"}); err == nil {
		t.Fatal("invalid mode accepted")
	}
}

func TestCardPlacementAndAutoClose(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)
	hub, _ := s.Store().AddPlace(store.HubPlace{Name: "Paris", Lat: 48.8566, Lng: 2.3522})
	s.Store().SelectPlace(hub.ID)
	s.OnIdle(paris())
	s.SearchThisArea(ctx)
	s.SetLayout(false, layout.Rect{W: 200, H: 600})

	sizes := CardSizes{Hover: layout.Size{W: 200, H: 100}, Expanded: layout.Size{W: 300, H: 200}}
	if got := s.CardPlacement(sizes); got.Hover != nil || got.Expanded != nil {
		t.Fatalf("cards placed with nothing open: %+v", got)
	}

	s.Expand("a1")
	got := s.CardPlacement(sizes)
	if got.Expanded == nil || got.Expanded.ID != "a1" {
		t.Fatalf("expanded=%+v", got.Expanded)
	}
	// Recentered on the POI: the card sits above the container center.
	if math.Abs(got.Expanded.Origin.X-250) > 1e-3 || math.Abs(got.Expanded.Origin.Y-60) > 1e-3 {
		t.Fatalf("expanded origin=%+v, want (250,60)", got.Expanded.Origin)
	}

	s.SetLayout(true, layout.Rect{})
	s.Hover("r1")
	got = s.CardPlacement(sizes)
	if got.Expanded.Origin != (layout.Point{X: 250, Y: 200}) {
		t.Fatalf("mobile expanded origin=%+v, want centered", got.Expanded.Origin)
	}
	if got.Hover == nil || got.Hover.Origin != (layout.Point{X: 300, Y: 492}) {
		t.Fatalf("mobile hover=%+v, want bottom docked", got.Hover)
	}

	// Mobile shows the expanded card full-screen: panning away keeps it.
	away := paris()
	away.Lat += 1
	s.OnIdle(away)
	if _, e := s.Store().Cursor(); e != "a1" {
		t.Fatalf("expanded=%q, mobile must not auto-close", e)
	}

	s.SetLayout(false, layout.Rect{W: 200, H: 600})
	s.OnIdle(away)
	if _, e := s.Store().Cursor(); e != "" {
		t.Fatalf("expanded=%q, want auto-closed after scrolling out", e)
	}

	s.Hover("a2")
	s.BackgroundClick()
	if h, e := s.Store().Cursor(); h != "" || e != "" {
		t.Fatalf("cursor=%q/%q after background click", h, e)
	}
}

func TestCardPlacementUsesPageCoordinates(t *testing.T) {
	s := newSession(t, nil)
	vp := paris()
	vp.Zoom = 14
	vp.Left, vp.Top = 340, 20
	if err := s.OnIdle(vp); err != nil {
		t.Fatal(err)
	}
	s.Store().SetDiscoveryResults([]store.DiscoveryItem{
		store.NewDiscoveryItem(store.POI{ID: "c1", Name: "Centre", Types: []string{"museum"}, Lat: vp.Lat, Lng: vp.Lng},
			store.SubScores{Quality: 0.5}, 0.5),
	})
	// The sidebar sits beside the map, so nothing of the map is covered.
	s.SetLayout(false, layout.Rect{X: 0, Y: 0, W: 340, H: 640})
	s.Hover("c1")

	sizes := CardSizes{Hover: layout.Size{W: 200, H: 100}}
	got := s.CardPlacement(sizes)
	if got.Hover == nil {
		t.Fatal("hover card not placed")
	}
	// Marker at page (740, 320); the card sits centered above it.
	want := layout.Point{X: 740 - 100, Y: 320 - layout.DefaultOffset - 100}
	if math.Abs(got.Hover.Origin.X-want.X) > 1e-3 || math.Abs(got.Hover.Origin.Y-want.Y) > 1e-3 {
		t.Fatalf("hover origin=%+v, want %+v", got.Hover.Origin, want)
	}

	// A sidebar drawn over the left of the map pushes a card near it aside.
	s.SetLayout(false, layout.Rect{X: 0, Y: 0, W: 700, H: 640})
	got = s.CardPlacement(sizes)
	if got.Hover == nil || got.Hover.Origin.X < 700 {
		t.Fatalf("hover=%+v, want clear of the overlapping sidebar", got.Hover)
	}

	s.SetLayout(true, layout.Rect{})
	got = s.CardPlacement(sizes)
	if got.Hover.Origin != (layout.Point{X: 340 + 300, Y: 20 + 600 - 100 - layout.Margin}) {
		t.Fatalf("mobile hover=%+v, want docked inside the container", got.Hover.Origin)
	}
}

func TestFreshSessionOffersSearch(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)
	if err := s.OnIdle(paris()); err != nil {
		t.Fatal(err)
	}
	s.detector.Flush()
	if !s.Affordance().Show {
		t.Fatal("affordance hidden with nothing searched yet")
	}

	out, err := s.SearchThisArea(ctx)
	if err != nil || out != search.OutcomeDraft {
		t.Fatalf("outcome=%q err=%v, want a draft", out, err)
	}
	hub, err := s.ConfirmDraft(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sel, ok := s.Store().Selected(); !ok || sel.ID != hub.ID {
		t.Fatal("confirmed place not selected")
	}
	if n := len(s.Store().Discovery()); n != 3 {
		t.Fatalf("discoveries=%d after confirm, want 3", n)
	}
	if len(s.Store().SearchCenters()) != 1 {
		t.Fatal("hub search center not recorded")
	}
}

func TestSelectPlaceReplacesDiscovery(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)
	hubParis, _ := s.Store().AddPlace(store.HubPlace{Name: "Paris", Lat: 48.8566, Lng: 2.3522})
	rome, _ := s.Store().AddPlace(store.HubPlace{Name: "Rome", Lat: 41.9, Lng: 12.5})

	s.Store().SetDiscoveryResults([]store.DiscoveryItem{
		store.NewDiscoveryItem(store.POI{ID: "old", Name: "Old", Types: []string{"museum"}, Lat: 1, Lng: 1},
			store.SubScores{}, 0.1),
	})
	if err := s.SelectPlace(ctx, rome.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Store().DiscoveryItem("old"); ok {
		t.Fatal("selecting a hub appended instead of replacing")
	}
	a1, ok := s.Store().DiscoveryItem("a1")
	if !ok || geo.DistanceMeters(a1.Point(), rome.Point()) > 1000 {
		t.Fatalf("a1=%+v, want a result around Rome", a1)
	}

	if err := s.Store().SetMode(store.ModePlan); err != nil {
		t.Fatal(err)
	}
	before := len(s.Store().SearchCenters())
	if err := s.SelectPlace(ctx, hubParis.ID); err != nil {
		t.Fatal(err)
	}
	if len(s.Store().SearchCenters()) != before {
		t.Fatal("plan mode ran a nearby search")
	}

	if err := s.SelectPlace(ctx, "missing"); err == nil {
		t.Fatal("unknown place selected")
	}
}
