// Package mapui contains Datastar SSE handlers for the map page.
package mapui

import (
	"context"
	"math"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trip/internal/humastar"
	"github.com/joeblew999/plat-trip/internal/layout"
	"github.com/joeblew999/plat-trip/internal/service"
	"github.com/joeblew999/plat-trip/internal/templates"
)

// Tag marks the SSE operations so hypermedia link discovery skips them.
const Tag = "map"

// Default card sizes until the page reports the rendered ones.
var (
	DefaultHoverCard    = layout.Size{W: 260, H: 110}
	DefaultExpandedCard = layout.Size{W: 320, H: 300}
)

// MapHandler serves the pointer and viewport events of the map page and
// streams marker commands and card fragments back.
type MapHandler struct {
	humastar.Handler
	session *service.Session
	log     *zap.Logger

	mu    sync.Mutex
	sizes service.CardSizes
}

// NewMapHandler creates a map handler. log may be nil.
func NewMapHandler(s *service.Session, renderer *templates.Renderer, log *zap.Logger) *MapHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MapHandler{
		Handler: humastar.Handler{Renderer: renderer},
		session: s,
		log:     log.Named("mapui"),
		sizes:   service.CardSizes{Hover: DefaultHoverCard, Expanded: DefaultExpandedCard},
	}
}

func (h *MapHandler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags(Tag)
	huma.Post(api, "/api/v1/map/idle", h.Idle, tags)
	huma.Post(api, "/api/v1/map/layout", h.Layout, tags)
	huma.Post(api, "/api/v1/map/hover", h.Hover, tags)
	huma.Post(api, "/api/v1/map/leave", h.Leave, tags)
	huma.Post(api, "/api/v1/map/card/enter", h.CardEnter, tags)
	huma.Post(api, "/api/v1/map/card/leave", h.CardLeave, tags)
	huma.Post(api, "/api/v1/map/expand", h.Expand, tags)
	huma.Post(api, "/api/v1/map/close", h.Close, tags)
	huma.Post(api, "/api/v1/map/click", h.Click, tags)
	huma.Get(api, "/api/v1/map/events", h.Events, tags)
}

func (h *MapHandler) cardSizes() service.CardSizes {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sizes
}

// done is the response of actions whose visible effect arrives on the
// event stream.
func (h *MapHandler) done() *huma.StreamResponse {
	return h.Stream(func(sse humastar.SSE) {})
}

// Idle applies the settled viewport the page reports after a pan or zoom.
func (h *MapHandler) Idle(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	state := service.ViewportState{
		Lat:    signals.Float("lat"),
		Lng:    signals.Float("lng"),
		Zoom:   signals.Float("zoom"),
		North:  signals.FloatOr("north", 0),
		South:  signals.FloatOr("south", 0),
		East:   signals.FloatOr("east", 0),
		West:   signals.FloatOr("west", 0),
		Left:   signals.FloatOr("left", 0),
		Top:    signals.FloatOr("top", 0),
		Width:  signals.Float("width"),
		Height: signals.Float("height"),
	}
	if err := h.session.OnIdle(state); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return h.done(), nil
}

// Layout switches between desktop and mobile and records card sizes.
func (h *MapHandler) Layout(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.sizes.Hover.W = signals.FloatOr("hoverWidth", h.sizes.Hover.W)
	h.sizes.Hover.H = signals.FloatOr("hoverHeight", h.sizes.Hover.H)
	h.sizes.Expanded.W = signals.FloatOr("expandedWidth", h.sizes.Expanded.W)
	h.sizes.Expanded.H = signals.FloatOr("expandedHeight", h.sizes.Expanded.H)
	h.mu.Unlock()

	h.session.SetLayout(signals.Bool("mobile"), sidebarRect(signals))
	return h.Stream(func(sse humastar.SSE) {
		h.patchCards(sse)
	}), nil
}

// sidebarRect reads the sidebar's page rect. A width without a height is a
// full-height band.
func sidebarRect(signals humastar.Signals) layout.Rect {
	r := layout.Rect{
		X: signals.FloatOr("sidebarLeft", 0),
		Y: signals.FloatOr("sidebarTop", 0),
		W: signals.FloatOr("sidebarWidth", 0),
		H: signals.FloatOr("sidebarHeight", 0),
	}
	if r.W > 0 && r.H <= 0 {
		r.H = math.Inf(1)
	}
	return r
}

func (h *MapHandler) Hover(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String("id")
	if id == "" {
		return nil, huma.Error400BadRequest("id is required")
	}
	h.session.Hover(id)
	return h.done(), nil
}

func (h *MapHandler) Leave(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	h.session.LeaveMarker()
	return h.done(), nil
}

func (h *MapHandler) CardEnter(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	h.session.EnterCard()
	return h.done(), nil
}

func (h *MapHandler) CardLeave(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	h.session.LeaveCard()
	return h.done(), nil
}

func (h *MapHandler) Expand(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String("id")
	if id == "" {
		return nil, huma.Error400BadRequest("id is required")
	}
	h.session.Expand(id)
	return h.done(), nil
}

func (h *MapHandler) Close(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	h.session.CloseCard()
	return h.done(), nil
}

// Click handles clicks on the map. A hub marker selects its place, a POI
// marker expands its card and a click on the background closes the card.
func (h *MapHandler) Click(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String("id")
	switch {
	case id == "":
		h.session.BackgroundClick()
	case signals.String("kind") == "hub":
		if err := h.session.SelectPlace(ctx, id); err != nil {
			return h.Stream(func(sse humastar.SSE) {
				sse.Error(err.Error())
			}), nil
		}
	default:
		h.session.Expand(id)
	}
	return h.done(), nil
}
