package mapui

import (
	"context"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trip/internal/humastar"
	"github.com/joeblew999/plat-trip/internal/search"
	"github.com/joeblew999/plat-trip/internal/service"
	"github.com/joeblew999/plat-trip/internal/store"
)

// Events streams session changes to the map page: marker and camera
// commands as a "map-commands" event, and re-rendered panels and cards as
// element patches. A new stream re-issues every marker.
func (h *MapHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			h.stream(ctx, humastar.NewSSE(humaCtx))
		},
	}, nil
}

func (h *MapHandler) stream(ctx context.Context, sse humastar.SSE) {
	bus := h.session.Bus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	h.session.Resync()
	h.renderAll(sse)
	h.flushCommands(sse)

	vp := h.session.Viewport()
	for {
		select {
		case <-ctx.Done():
			return
		case <-vp.Changed():
			h.flushCommands(sse)
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.render(sse, ev)
			h.flushCommands(sse)
			sse.DispatchCustomEvent("resource-changed", map[string]any{
				"resource": ev.Resource,
				"action":   ev.Action,
				"id":       ev.ID,
			})
		}
	}
}

func (h *MapHandler) flushCommands(sse humastar.SSE) {
	cmds := h.session.Viewport().Drain()
	if len(cmds) == 0 {
		return
	}
	if err := sse.DispatchCustomEvent("map-commands", cmds); err != nil {
		h.log.Debug("map commands not sent", zap.Int("commands", len(cmds)), zap.Error(err))
	}
}

// render patches what one event can have changed.
func (h *MapHandler) render(sse humastar.SSE, ev store.Event) {
	switch ev.Resource {
	case store.ResourcePlaces, store.ResourcePOIs:
		h.patchPlaces(sse)
		h.patchDiscovery(sse)
		h.patchCards(sse)
	case store.ResourceDiscovery, store.ResourceFilters, store.ResourceMode:
		h.patchDiscovery(sse)
		h.patchCards(sse)
		if ev.Resource == store.ResourceMode {
			sse.Signals(map[string]any{"mode": ev.ID})
		}
	case store.ResourceCursor:
		h.patchCards(sse)
		if ev.Action == "selected" || ev.Action == "deselected" {
			h.patchPlaces(sse)
		}
	case service.ResourceViewport:
		h.patchCards(sse)
	case service.ResourceAffordance:
		h.patchAffordance(sse)
	case service.ResourceDraft:
		h.patchDraft(sse)
		h.patchAffordance(sse)
	}
}

func (h *MapHandler) renderAll(sse humastar.SSE) {
	h.patchPlaces(sse)
	h.patchDiscovery(sse)
	h.patchDraft(sse)
	h.patchAffordance(sse)
	h.patchCards(sse)
	sse.Signals(map[string]any{"mode": string(h.session.Store().Mode())})
}

type placeItem struct {
	Place    store.HubPlace
	Selected bool
}

func (h *MapHandler) patchPlaces(sse humastar.SSE) {
	snap := h.session.Store().Snapshot()
	items := make([]any, len(snap.Places))
	for i, p := range snap.Places {
		items[i] = placeItem{Place: p, Selected: p.ID == snap.SelectedPlaceID}
	}
	sse.Patch(h.RenderList("place-item", items, "No places yet", "Search an area to add your first stop."), "#place-list")
}

func (h *MapHandler) patchDiscovery(sse humastar.SSE) {
	st := h.session.Store()
	if !st.Mode().UsesDiscovery() {
		sse.Patch("", "#discovery-list")
		return
	}
	var items []any
	for _, it := range st.FilteredDiscovery() {
		items = append(items, it)
	}
	sse.Patch(h.RenderList("discovery-item", items, "Nothing found yet", "Select a place and search this area."), "#discovery-list")
}

func (h *MapHandler) patchDraft(sse humastar.SSE) {
	wf := h.session.Workflow()
	data := struct {
		State search.State
		Draft *search.Draft
	}{State: wf.State()}
	if d, ok := wf.Draft(); ok {
		data.Draft = &d
	}
	html, err := h.Renderer.Render("draft-panel", data)
	if err != nil {
		h.log.Warn("draft panel not rendered", zap.Error(err))
		return
	}
	sse.Patch(html, "#draft-panel")
}

func (h *MapHandler) patchAffordance(sse humastar.SSE) {
	data := struct {
		Show bool
		Busy bool
	}{Show: h.session.Affordance().Show, Busy: h.session.Workflow().Busy()}
	html, err := h.Renderer.Render("affordance", data)
	if err != nil {
		h.log.Warn("affordance not rendered", zap.Error(err))
		return
	}
	sse.Patch(html, "#search-affordance")
}

// patchCards renders the hover and expanded cards and sends their
// positions as signals. A card that cannot be placed is hidden.
func (h *MapHandler) patchCards(sse humastar.SSE) {
	placements := h.session.CardPlacement(h.cardSizes())
	sel := h.session.Selection()

	signals := map[string]any{}
	hover := ""
	if v, ok := sel.Hovered(); ok && placements.Hover != nil {
		hover = h.renderCard("hover-card", v)
		signals["hoverCard"] = cardSignal(placements.Hover)
	} else {
		signals["hoverCard"] = cardSignal(nil)
	}
	expanded := ""
	if v, ok := sel.Expanded(); ok && placements.Expanded != nil {
		expanded = h.renderCard("expanded-card", h.expandedCard(v))
		signals["expandedCard"] = cardSignal(placements.Expanded)
	} else {
		signals["expandedCard"] = cardSignal(nil)
	}

	sse.Patch(hover, "#hover-card")
	sse.Patch(expanded, "#expanded-card")
	sse.Signals(signals)
}

// expandedCard is the expanded card view with the route of its plan button.
type expandedCard struct {
	store.ScoredView
	// PlanPath removes a planned POI from its hub or adds an unplanned one
	// to the selected hub. Empty when neither applies.
	PlanPath string
}

func (h *MapHandler) expandedCard(v store.ScoredView) expandedCard {
	st := h.session.Store()
	card := expandedCard{ScoredView: v}
	if pv, ok := st.PlannedIndex()[v.POI.ID]; ok {
		card.Planned = true
		card.PlanPath = poiPath(pv.PlaceID, pv.POI)
	} else if hub, ok := st.Selected(); ok {
		card.PlanPath = poiPath(hub.ID, v.POI)
	}
	return card
}

func poiPath(placeID string, poi store.POI) string {
	list := "attractions"
	if poi.ItemType == store.Restaurant {
		list = "restaurants"
	}
	return "/api/v1/places/" + url.PathEscape(placeID) + "/" + list + "/" + url.PathEscape(poi.ID)
}

func (h *MapHandler) renderCard(tmpl string, v any) string {
	html, err := h.Renderer.Render(tmpl, v)
	if err != nil {
		h.log.Warn("card not rendered", zap.String("template", tmpl), zap.Error(err))
		return ""
	}
	return html
}

func cardSignal(p *service.CardPosition) map[string]any {
	if p == nil {
		return map[string]any{"visible": false}
	}
	return map[string]any{"visible": true, "id": p.ID, "x": p.Origin.X, "y": p.Origin.Y}
}
