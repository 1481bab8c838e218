package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-trip/internal/humastar"
	"github.com/joeblew999/plat-trip/internal/search"
)

// DraftBody is the search/draft workflow state.
type DraftBody struct {
	State search.State  `json:"state" doc:"Workflow state" enum:"idle,searching,draftPending,adjustingLocation"`
	Busy  bool          `json:"busy" doc:"A search or geocoding request is in flight"`
	Draft *search.Draft `json:"draft,omitempty" doc:"Candidate hub place awaiting confirmation"`
}

var (
	actSearch       = humastar.ActionDef{Rel: "search", Pattern: "/api/v1/search-area", Method: "POST", Title: "Search this area"}
	actConfirm      = humastar.ActionDef{Rel: "confirm", Pattern: "/api/v1/draft/confirm", Method: "POST", Title: "Add to trip"}
	actAdjust       = humastar.ActionDef{Rel: "adjust", Pattern: "/api/v1/draft/adjust", Method: "POST", Title: "Adjust location"}
	actFinishAdjust = humastar.ActionDef{Rel: "finish-adjust", Pattern: "/api/v1/draft/finish-adjust", Method: "POST", Title: "Use this location"}
	actCancel       = humastar.ActionDef{Rel: "cancel", Pattern: "/api/v1/draft/cancel", Method: "POST", Title: "Cancel"}
)

// Actions implements humastar.Actor. The offered actions follow the
// workflow state.
func (b DraftBody) Actions() []humastar.Action {
	var defs []humastar.ActionDef
	switch b.State {
	case search.StateIdle:
		defs = []humastar.ActionDef{actSearch}
	case search.StateDraftPending:
		defs = []humastar.ActionDef{actConfirm, actAdjust, actCancel}
	case search.StateAdjusting:
		defs = []humastar.ActionDef{actFinishAdjust, actConfirm, actCancel}
	case search.StateSearching:
		defs = []humastar.ActionDef{actCancel}
	}
	return humastar.ActionsFor("", defs)
}

// RegisterDraft registers the new trip point workflow routes.
func (h *APIHandler) RegisterDraft(api huma.API) {
	huma.Get(api, "/api/v1/draft", h.GetDraft, huma.OperationTags("draft"))
	huma.Post(api, "/api/v1/draft/confirm", h.ConfirmDraft, huma.OperationTags("draft"))
	huma.Post(api, "/api/v1/draft/adjust", h.AdjustDraft, huma.OperationTags("draft"))
	huma.Post(api, "/api/v1/draft/finish-adjust", h.FinishAdjust, huma.OperationTags("draft"))
	huma.Post(api, "/api/v1/draft/cancel", h.CancelDraft, huma.OperationTags("draft"))
}

func (h *APIHandler) draft() *struct{ Body DraftBody } {
	wf := h.session.Workflow()
	st := wf.State()
	body := DraftBody{State: st, Busy: st == search.StateSearching}
	if d, ok := wf.Draft(); ok {
		body.Draft = &d
	}
	return &struct{ Body DraftBody }{Body: body}
}

func (h *APIHandler) GetDraft(ctx context.Context, input *struct{}) (*struct{ Body DraftBody }, error) {
	return h.draft(), nil
}

func (h *APIHandler) ConfirmDraft(ctx context.Context, input *struct{}) (*struct{ Body PlaceBody }, error) {
	place, err := h.session.ConfirmDraft(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body PlaceBody }{Body: PlaceBody{HubPlace: place, Selected: true}}, nil
}

func (h *APIHandler) AdjustDraft(ctx context.Context, input *struct{}) (*struct{ Body DraftBody }, error) {
	if err := h.session.Workflow().BeginAdjust(); err != nil {
		return nil, apiError(err)
	}
	return h.draft(), nil
}

func (h *APIHandler) FinishAdjust(ctx context.Context, input *struct{}) (*struct{ Body DraftBody }, error) {
	if err := h.session.FinishAdjust(ctx); err != nil {
		return nil, apiError(err)
	}
	return h.draft(), nil
}

func (h *APIHandler) CancelDraft(ctx context.Context, input *struct{}) (*struct{ Body DraftBody }, error) {
	h.session.Workflow().Cancel()
	return h.draft(), nil
}
