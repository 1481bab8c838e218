// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-trip/internal/db"
	"github.com/joeblew999/plat-trip/internal/humastar"
	"github.com/joeblew999/plat-trip/internal/search"
	"github.com/joeblew999/plat-trip/internal/service"
	"github.com/joeblew999/plat-trip/internal/store"
)

// Types

type IDInput struct {
	ID string `path:"id" doc:"Hub place ID" example:"4f6c1b1e-7a55-4c0e-9a57-2f1de0a1f7a1"`
}

type POIInput struct {
	IDInput
	POIID string `path:"poiId" doc:"POI ID" example:"gpl:ChIJLU7jZClu5kcR4PcOOO6p3I0"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type PlaceInput struct {
	Name    string  `json:"name" minLength:"1" doc:"Display name" example:"Paris"`
	Country string  `json:"country,omitempty" doc:"Country name" example:"France"`
	Lat     float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude"`
	Lng     float64 `json:"lng" minimum:"-180" maximum:"180" doc:"Longitude"`
	Select  bool    `json:"select,omitempty" doc:"Select the place once added"`
}

type ReorderInput struct {
	From int `json:"from" minimum:"0" doc:"Current index"`
	To   int `json:"to" minimum:"0" doc:"Target index"`
}

type ModeInput struct {
	Mode store.Mode `json:"mode" enum:"discover,plan,ai" doc:"Side panel mode"`
}

// PlaceBody is one hub place plus its selection state.
type PlaceBody struct {
	store.HubPlace
	Selected bool `json:"selected" doc:"Whether this is the selected hub"`
}

var placeActions = []humastar.ActionDef{
	{Rel: "select", Pattern: "/api/v1/places/%s/select", Method: "POST", Title: "Select place"},
	{Rel: "delete", Pattern: "/api/v1/places/%s", Method: "DELETE", Title: "Remove from trip"},
}

// Actions implements humastar.Actor.
func (b PlaceBody) Actions() []humastar.Action {
	defs := placeActions
	if b.Selected {
		defs = defs[1:]
	}
	return humastar.ActionsFor(b.ID, defs)
}

type PlacesBody struct {
	Places     []store.HubPlace `json:"places" doc:"Hub places in itinerary order"`
	SelectedID string           `json:"selectedId,omitempty" doc:"Selected hub place ID"`
}

type POIBody struct {
	Added   bool             `json:"added" doc:"False when the POI was already planned in this place"`
	POI     store.PlannedPOI `json:"poi" doc:"Planned POI"`
	Score   float64          `json:"score" doc:"Weighted score"`
	PlaceID string           `json:"placeId" doc:"Owning hub place ID"`
}

type ModeBody struct {
	Mode store.Mode `json:"mode" doc:"Side panel mode"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	session *service.Session
}

func NewAPIHandler(s *service.Session) *APIHandler {
	return &APIHandler{session: s}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterPlaces registers hub place routes.
func (h *APIHandler) RegisterPlaces(api huma.API) {
	huma.Get(api, "/api/v1/places", h.GetPlaces, huma.OperationTags("places"))
	huma.Post(api, "/api/v1/places", h.CreatePlace, huma.OperationTags("places"))
	huma.Post(api, "/api/v1/places/reorder", h.ReorderPlaces, huma.OperationTags("places"))
	huma.Get(api, "/api/v1/places/{id}", h.GetPlace, huma.OperationTags("places"))
	huma.Delete(api, "/api/v1/places/{id}", h.DeletePlace, huma.OperationTags("places"))
	huma.Post(api, "/api/v1/places/{id}/select", h.SelectPlace, huma.OperationTags("places"))
	huma.Delete(api, "/api/v1/selection", h.Deselect, huma.OperationTags("places"))
}

// RegisterPOIs registers planned attraction and restaurant routes.
func (h *APIHandler) RegisterPOIs(api huma.API) {
	huma.Post(api, "/api/v1/places/{id}/attractions/{poiId}", h.AddAttraction, huma.OperationTags("pois"))
	huma.Delete(api, "/api/v1/places/{id}/attractions/{poiId}", h.RemoveAttraction, huma.OperationTags("pois"))
	huma.Post(api, "/api/v1/places/{id}/restaurants/{poiId}", h.AddRestaurant, huma.OperationTags("pois"))
	huma.Delete(api, "/api/v1/places/{id}/restaurants/{poiId}", h.RemoveRestaurant, huma.OperationTags("pois"))
}

// RegisterView registers mode, filter and preference routes.
func (h *APIHandler) RegisterView(api huma.API) {
	huma.Get(api, "/api/v1/mode", h.GetMode, huma.OperationTags("view"))
	huma.Put(api, "/api/v1/mode", h.PutMode, huma.OperationTags("view"))
	huma.Get(api, "/api/v1/filters", h.GetFilters, huma.OperationTags("view"))
	huma.Put(api, "/api/v1/filters", h.PutFilters, huma.OperationTags("view"))
	huma.Delete(api, "/api/v1/filters", h.ClearFilters, huma.OperationTags("view"))
	huma.Get(api, "/api/v1/preferences", h.GetPreferences, huma.OperationTags("view"))
	huma.Put(api, "/api/v1/preferences", h.PutPreferences, huma.OperationTags("view"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetPlaces(ctx context.Context, input *struct{}) (*struct{ Body PlacesBody }, error) {
	snap := h.session.Store().Snapshot()
	return &struct{ Body PlacesBody }{Body: PlacesBody{Places: snap.Places, SelectedID: snap.SelectedPlaceID}}, nil
}

func (h *APIHandler) CreatePlace(ctx context.Context, input *struct{ Body PlaceInput }) (*struct{ Body PlaceBody }, error) {
	st := h.session.Store()
	created, err := st.AddPlace(store.HubPlace{
		Name:    input.Body.Name,
		Country: input.Body.Country,
		Lat:     input.Body.Lat,
		Lng:     input.Body.Lng,
	})
	if err != nil {
		return nil, apiError(err)
	}
	if input.Body.Select {
		if err := h.session.SelectPlace(ctx, created.ID); err != nil {
			return nil, apiError(err)
		}
	}
	return &struct{ Body PlaceBody }{Body: PlaceBody{HubPlace: created, Selected: input.Body.Select}}, nil
}

func (h *APIHandler) GetPlace(ctx context.Context, input *IDInput) (*struct{ Body PlaceBody }, error) {
	p, ok := h.session.Store().Place(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("place not found")
	}
	sel, _ := h.session.Store().Selected()
	return &struct{ Body PlaceBody }{Body: PlaceBody{HubPlace: p, Selected: sel.ID == p.ID}}, nil
}

func (h *APIHandler) DeletePlace(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.session.Store().RemovePlace(input.ID); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Place removed"}}, nil
}

func (h *APIHandler) SelectPlace(ctx context.Context, input *IDInput) (*struct{ Body PlaceBody }, error) {
	if err := h.session.SelectPlace(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	p, _ := h.session.Store().Place(input.ID)
	return &struct{ Body PlaceBody }{Body: PlaceBody{HubPlace: p, Selected: true}}, nil
}

func (h *APIHandler) Deselect(ctx context.Context, input *struct{}) (*struct{ Body MessageBody }, error) {
	h.session.Store().DeselectPlace()
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Selection cleared"}}, nil
}

func (h *APIHandler) ReorderPlaces(ctx context.Context, input *struct{ Body ReorderInput }) (*struct{ Body PlacesBody }, error) {
	st := h.session.Store()
	if input.Body.From != input.Body.To && !st.ReorderPlaces(input.Body.From, input.Body.To) {
		return nil, huma.Error400BadRequest("index out of range")
	}
	snap := st.Snapshot()
	return &struct{ Body PlacesBody }{Body: PlacesBody{Places: snap.Places, SelectedID: snap.SelectedPlaceID}}, nil
}

func (h *APIHandler) AddAttraction(ctx context.Context, input *POIInput) (*struct{ Body POIBody }, error) {
	return h.addPOI(input, store.Attraction)
}

func (h *APIHandler) AddRestaurant(ctx context.Context, input *POIInput) (*struct{ Body POIBody }, error) {
	return h.addPOI(input, store.Restaurant)
}

// addPOI plans a POI taken from the current discovery results.
func (h *APIHandler) addPOI(input *POIInput, kind store.ItemType) (*struct{ Body POIBody }, error) {
	st := h.session.Store()
	item, ok := st.DiscoveryItem(input.POIID)
	if !ok {
		return nil, huma.Error404NotFound("poi not in discovery results")
	}
	poi := item.Plan()
	poi.ItemType = kind
	added, err := st.AddPOI(input.ID, poi)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body POIBody }{Body: POIBody{Added: added, POI: poi, Score: poi.Score(), PlaceID: input.ID}}, nil
}

func (h *APIHandler) RemoveAttraction(ctx context.Context, input *POIInput) (*struct{ Body MessageBody }, error) {
	return h.removePOI(input, store.Attraction)
}

func (h *APIHandler) RemoveRestaurant(ctx context.Context, input *POIInput) (*struct{ Body MessageBody }, error) {
	return h.removePOI(input, store.Restaurant)
}

func (h *APIHandler) removePOI(input *POIInput, kind store.ItemType) (*struct{ Body MessageBody }, error) {
	removed, err := h.session.Store().RemovePOI(input.ID, kind, input.POIID)
	if err != nil {
		return nil, apiError(err)
	}
	if !removed {
		return nil, huma.Error404NotFound("poi not planned in this place")
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "POI removed"}}, nil
}

func (h *APIHandler) GetMode(ctx context.Context, input *struct{}) (*struct{ Body ModeBody }, error) {
	return &struct{ Body ModeBody }{Body: ModeBody{Mode: h.session.Store().Mode()}}, nil
}

func (h *APIHandler) PutMode(ctx context.Context, input *struct{ Body ModeInput }) (*struct{ Body ModeBody }, error) {
	if err := h.session.Store().SetMode(input.Body.Mode); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body ModeBody }{Body: ModeBody{Mode: input.Body.Mode}}, nil
}

func (h *APIHandler) GetFilters(ctx context.Context, input *struct{}) (*struct{ Body store.Filters }, error) {
	return &struct{ Body store.Filters }{Body: h.session.Store().Snapshot().Filters}, nil
}

func (h *APIHandler) PutFilters(ctx context.Context, input *struct{ Body store.Filters }) (*struct{ Body store.Filters }, error) {
	h.session.Store().SetFilters(input.Body)
	return &struct{ Body store.Filters }{Body: input.Body}, nil
}

func (h *APIHandler) ClearFilters(ctx context.Context, input *struct{}) (*struct{ Body store.Filters }, error) {
	h.session.Store().ClearFilters()
	return &struct{ Body store.Filters }{Body: store.Filters{}}, nil
}

func (h *APIHandler) GetPreferences(ctx context.Context, input *struct{}) (*struct{ Body db.Preferences }, error) {
	return &struct{ Body db.Preferences }{Body: h.session.Preferences()}, nil
}

func (h *APIHandler) PutPreferences(ctx context.Context, input *struct{ Body db.Preferences }) (*struct{ Body db.Preferences }, error) {
	if err := h.session.SetPreferences(input.Body); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body db.Preferences }{Body: h.session.Preferences()}, nil
}

// apiError maps domain errors onto HTTP status codes.
func apiError(err error) error {
	switch {
	case errors.Is(err, store.ErrPlaceNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, store.ErrDuplicatePlace),
		errors.Is(err, search.ErrNoDraft),
		errors.Is(err, search.ErrNotAdjusting),
		errors.Is(err, service.ErrViewportNotReady):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, store.ErrInvalidCoordinate),
		errors.Is(err, store.ErrInvalidMode),
		errors.Is(err, search.ErrInvalidCenter),
		errors.Is(err, service.ErrInvalidViewport):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, search.ErrNoProvider):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
