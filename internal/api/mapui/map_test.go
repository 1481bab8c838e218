package mapui

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-trip/internal/geo"
	"github.com/joeblew999/plat-trip/internal/humastar"
	"github.com/joeblew999/plat-trip/internal/layout"
	"github.com/joeblew999/plat-trip/internal/service"
	"github.com/joeblew999/plat-trip/internal/store"
	"github.com/joeblew999/plat-trip/internal/templates"
)

var paris = service.ViewportState{Lat: 48.8566, Lng: 2.3522, Zoom: 14, Width: 800, Height: 600}

func newTestHandler(t *testing.T) (*MapHandler, *service.Session, humatest.TestAPI) {
	t.Helper()
	renderer, err := templates.New("")
	if err != nil {
		t.Fatal(err)
	}
	cfg := service.DefaultConfig()
	cfg.PanDelay = time.Hour
	cfg.Selection.HoverGrace = time.Hour
	s := service.New(cfg, service.Deps{})
	s.Start(context.Background())
	t.Cleanup(s.Close)

	hc := huma.DefaultConfig("Test API", "1.0.0")
	hc.CreateHooks = nil
	_, api := humatest.New(t, hc)
	h := NewMapHandler(s, renderer, nil)
	h.RegisterRoutes(api)
	return h, s, api
}

func seedDiscovery(s *service.Session) {
	center := paris.Center()
	a := geo.Offset(center, 0, 400)
	r := geo.Offset(center, 300, 0)
	s.Store().SetDiscoveryResults([]store.DiscoveryItem{
		store.NewDiscoveryItem(store.POI{ID: "a1", Name: "Museum", Types: []string{"museum"}, Lat: a.Lat(), Lng: a.Lon()},
			store.SubScores{Quality: 0.9}, 0.7),
		store.NewDiscoveryItem(store.POI{ID: "r1", Name: "Bistro", Types: []string{"restaurant"}, Lat: r.Lat(), Lng: r.Lon()},
			store.SubScores{Quality: 0.8}, 0.6),
	})
}

func newSSE(t *testing.T) (humastar.SSE, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/map/events", nil)
	return humastar.SSE{ServerSentEventGenerator: datastar.NewSSE(rec, req)}, rec
}

func TestIdleValidatesSignals(t *testing.T) {
	_, s, api := newTestHandler(t)

	if resp := api.Post("/api/v1/map/idle", map[string]any{"lat": 48.85}); resp.Code != http.StatusBadRequest {
		t.Fatalf("partial viewport status=%d, want 400", resp.Code)
	}
	if s.Viewport().Ready() {
		t.Fatal("viewport ready after a rejected report")
	}

	resp := api.Post("/api/v1/map/idle", map[string]any{
		"lat": paris.Lat, "lng": paris.Lng, "zoom": paris.Zoom, "width": paris.Width, "height": paris.Height,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if z, ok := s.Viewport().Zoom(); !ok || z != 14 {
		t.Fatalf("zoom=%v ready=%v", z, ok)
	}
}

func TestPointerActions(t *testing.T) {
	_, s, api := newTestHandler(t)
	if err := s.OnIdle(paris); err != nil {
		t.Fatal(err)
	}
	seedDiscovery(s)

	if resp := api.Post("/api/v1/map/hover", map[string]any{}); resp.Code != http.StatusBadRequest {
		t.Fatalf("hover without id status=%d, want 400", resp.Code)
	}
	api.Post("/api/v1/map/hover", map[string]any{"id": "a1"})
	if h, _ := s.Store().Cursor(); h != "a1" {
		t.Fatalf("hovered=%q, want a1", h)
	}

	api.Post("/api/v1/map/leave")
	api.Post("/api/v1/map/card/enter")
	s.Selection().FlushHover()
	if h, _ := s.Store().Cursor(); h != "a1" {
		t.Fatalf("hovered=%q after entering the card, want a1", h)
	}

	api.Post("/api/v1/map/click", map[string]any{"id": "r1"})
	if _, e := s.Store().Cursor(); e != "r1" {
		t.Fatalf("expanded=%q, want r1", e)
	}
	api.Post("/api/v1/map/close")
	if _, e := s.Store().Cursor(); e != "" {
		t.Fatalf("expanded=%q after close", e)
	}

	api.Post("/api/v1/map/expand", map[string]any{"id": "a1"})
	api.Post("/api/v1/map/click", map[string]any{})
	if h, e := s.Store().Cursor(); h != "" || e != "" {
		t.Fatalf("cursor=%q/%q after background click, want cleared", h, e)
	}
}

func TestClickHubSelectsPlace(t *testing.T) {
	_, s, api := newTestHandler(t)
	hub, err := s.Store().AddPlace(store.HubPlace{Name: "Paris", Lat: paris.Lat, Lng: paris.Lng})
	if err != nil {
		t.Fatal(err)
	}

	api.Post("/api/v1/map/click", map[string]any{"id": hub.ID, "kind": "hub"})
	if sel, ok := s.Store().Selected(); !ok || sel.ID != hub.ID {
		t.Fatal("hub click did not select the place")
	}

	resp := api.Post("/api/v1/map/click", map[string]any{"id": "missing", "kind": "hub"})
	if !strings.Contains(resp.Body.String(), "place not found") {
		t.Fatalf("body=%q, want an error signal", resp.Body.String())
	}
}

func TestLayoutRecordsCardSizes(t *testing.T) {
	h, _, api := newTestHandler(t)
	api.Post("/api/v1/map/layout", map[string]any{"mobile": true, "hoverWidth": 300})
	sizes := h.cardSizes()
	if sizes.Hover.W != 300 || sizes.Hover.H != DefaultHoverCard.H {
		t.Fatalf("hover=%+v", sizes.Hover)
	}
	if sizes.Expanded != DefaultExpandedCard {
		t.Fatalf("expanded=%+v, want defaults", sizes.Expanded)
	}
}

func TestSidebarRect(t *testing.T) {
	band := sidebarRect(humastar.Signals{"sidebarWidth": 340.0})
	if band.W != 340 || !math.IsInf(band.H, 1) {
		t.Fatalf("band=%+v, want a full-height band", band)
	}
	r := sidebarRect(humastar.Signals{"sidebarLeft": 10.0, "sidebarTop": 20.0, "sidebarWidth": 300.0, "sidebarHeight": 500.0})
	if r != (layout.Rect{X: 10, Y: 20, W: 300, H: 500}) {
		t.Fatalf("rect=%+v", r)
	}
	if !sidebarRect(humastar.Signals{}).Empty() {
		t.Fatal("no sidebar reported but rect not empty")
	}
}

func TestStreamInitialRender(t *testing.T) {
	h, s, _ := newTestHandler(t)
	if _, err := s.Store().AddPlace(store.HubPlace{Name: "Paris", Lat: paris.Lat, Lng: paris.Lng}); err != nil {
		t.Fatal(err)
	}
	s.Viewport().Drain()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sse, rec := newSSE(t)
	h.stream(ctx, sse)

	body := rec.Body.String()
	for _, want := range []string{"#place-list", "Paris", "#discovery-list", "#draft-panel", "map-commands"} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}
}

func TestRenderHoverCard(t *testing.T) {
	h, s, _ := newTestHandler(t)
	if err := s.OnIdle(paris); err != nil {
		t.Fatal(err)
	}
	seedDiscovery(s)
	s.Hover("a1")

	sse, rec := newSSE(t)
	h.render(sse, store.Event{Resource: store.ResourceCursor, Action: "hovered", ID: "a1"})

	body := rec.Body.String()
	if !strings.Contains(body, "hover-a1") || !strings.Contains(body, "Museum") {
		t.Fatalf("hover card not rendered:\n%s", body)
	}
	if !strings.Contains(body, `"visible":true`) {
		t.Fatalf("hover card not positioned:\n%s", body)
	}
}

func TestRenderPlanModeHidesDiscovery(t *testing.T) {
	h, s, _ := newTestHandler(t)
	seedDiscovery(s)
	if err := s.Store().SetMode(store.ModePlan); err != nil {
		t.Fatal(err)
	}

	sse, rec := newSSE(t)
	h.patchDiscovery(sse)
	if body := rec.Body.String(); strings.Contains(body, "Museum") {
		t.Fatalf("plan mode listed discovery results:\n%s", body)
	}
}

func TestExpandedCardPlanActions(t *testing.T) {
	h, s, _ := newTestHandler(t)
	st := s.Store()
	if _, err := st.AddPlace(store.HubPlace{ID: "hub", Name: "Paris", Lat: 48.8566, Lng: 2.3522}); err != nil {
		t.Fatal(err)
	}
	if err := st.SelectPlace("hub"); err != nil {
		t.Fatal(err)
	}
	seedDiscovery(s)

	card := h.expandedCard(st.DiscoveryIndex()["a1"])
	if card.Planned || card.PlanPath != "/api/v1/places/hub/attractions/a1" {
		t.Fatalf("unplanned card=%+v", card)
	}
	if html := h.renderCard("expanded-card", card); !strings.Contains(html, "Add to plan") {
		t.Fatalf("add button missing:\n%s", html)
	}

	bistro, _ := st.DiscoveryItem("r1")
	if _, err := st.AddRestaurant("hub", bistro.Plan()); err != nil {
		t.Fatal(err)
	}
	card = h.expandedCard(st.DiscoveryIndex()["r1"])
	if !card.Planned || card.PlanPath != "/api/v1/places/hub/restaurants/r1" {
		t.Fatalf("planned card=%+v", card)
	}
	if html := h.renderCard("expanded-card", card); !strings.Contains(html, "Remove from plan") {
		t.Fatalf("remove button missing:\n%s", html)
	}

	st.DeselectPlace()
	seedDiscovery(s)
	if card := h.expandedCard(st.DiscoveryIndex()["a1"]); card.PlanPath != "" {
		t.Fatalf("plan path=%q without a selected hub", card.PlanPath)
	}
}
