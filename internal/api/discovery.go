package api

import (
	"context"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-trip/internal/humastar"
	"github.com/joeblew999/plat-trip/internal/search"
	"github.com/joeblew999/plat-trip/internal/store"
)

const geoJSONContentType = "application/geo+json"

type DiscoveriesInput struct {
	Offset int  `query:"offset" default:"0" minimum:"0" doc:"Items to skip"`
	Limit  int  `query:"limit" default:"20" minimum:"1" maximum:"200" doc:"Page size"`
	All    bool `query:"all" doc:"Ignore the active filters"`
}

// DiscoveryView is one discovery result as listed by the API.
type DiscoveryView struct {
	store.DiscoveryItem
	Breakdown store.Breakdown `json:"breakdown" doc:"Weighted score contributions"`
	Planned   bool            `json:"planned" doc:"Already planned under some hub"`
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type SearchAreaBody struct {
	Outcome     search.Outcome `json:"outcome" doc:"Which branch the search took" enum:"nearby,draft,nothing,superseded"`
	State       search.State   `json:"state" doc:"Workflow state after the search"`
	Discoveries int            `json:"discoveries" doc:"Discovery results now held"`
	Draft       *search.Draft  `json:"draft,omitempty" doc:"Pending draft place"`
}

// RegisterDiscoveries registers discovery listing, export and search routes.
func (h *APIHandler) RegisterDiscoveries(api huma.API) {
	huma.Get(api, "/api/v1/discoveries", h.GetDiscoveries, huma.OperationTags("discovery"))
	huma.Get(api, "/api/v1/discoveries.geojson", h.GetDiscoveriesGeoJSON, huma.OperationTags("discovery"))
	huma.Get(api, "/api/v1/plan.geojson", h.GetPlanGeoJSON, huma.OperationTags("places"))
	huma.Post(api, "/api/v1/search-area", h.SearchArea, huma.OperationTags("discovery"))
}

func (h *APIHandler) GetDiscoveries(ctx context.Context, input *DiscoveriesInput) (*struct {
	Body humastar.PageBody[DiscoveryView]
}, error) {
	st := h.session.Store()
	items := st.FilteredDiscovery()
	if input.All {
		items = st.Discovery()
	}
	planned := st.PlannedIndex()
	views := make([]DiscoveryView, len(items))
	for i, it := range items {
		_, ok := planned[it.ID]
		views[i] = DiscoveryView{DiscoveryItem: it, Breakdown: it.Breakdown(), Planned: ok}
	}
	return &struct {
		Body humastar.PageBody[DiscoveryView]
	}{Body: humastar.Paginate(views, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) GetDiscoveriesGeoJSON(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	fc := geojson.NewFeatureCollection()
	for _, it := range h.session.Store().FilteredDiscovery() {
		f := geojson.NewFeature(it.Point())
		f.ID = it.ID
		f.Properties["name"] = it.Name
		f.Properties["itemType"] = string(it.ItemType)
		f.Properties["score"] = it.Score
		if it.Rating > 0 {
			f.Properties["rating"] = it.Rating
		}
		fc.Append(f)
	}
	return geoJSON(fc)
}

// GetPlanGeoJSON exports the hubs and their planned POIs. POI features carry
// the owning hub in placeId.
func (h *APIHandler) GetPlanGeoJSON(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	fc := geojson.NewFeatureCollection()
	for i, p := range h.session.Store().Places() {
		f := geojson.NewFeature(p.Point())
		f.ID = p.ID
		f.Properties["name"] = p.Name
		f.Properties["kind"] = "hub"
		f.Properties["order"] = i
		if p.Country != "" {
			f.Properties["country"] = p.Country
		}
		fc.Append(f)

		for _, list := range [][]store.PlannedPOI{p.PlannedAttractions, p.PlannedRestaurants} {
			for _, poi := range list {
				pf := geojson.NewFeature(poi.Point())
				pf.ID = poi.ID
				pf.Properties["name"] = poi.Name
				pf.Properties["kind"] = string(poi.ItemType)
				pf.Properties["placeId"] = p.ID
				pf.Properties["score"] = poi.Score()
				fc.Append(pf)
			}
		}
	}
	return geoJSON(fc)
}

func geoJSON(fc *geojson.FeatureCollection) (*GeoJSONOutput, error) {
	b, err := json.Marshal(fc)
	if err != nil {
		return nil, huma.Error500InternalServerError("encode geojson", err)
	}
	return &GeoJSONOutput{ContentType: geoJSONContentType, Body: b}, nil
}

func (h *APIHandler) SearchArea(ctx context.Context, input *struct{}) (*struct{ Body SearchAreaBody }, error) {
	out, err := h.session.SearchThisArea(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	wf := h.session.Workflow()
	body := SearchAreaBody{
		Outcome:     out,
		State:       wf.State(),
		Discoveries: len(h.session.Store().Discovery()),
	}
	if d, ok := wf.Draft(); ok {
		body.Draft = &d
	}
	return &struct{ Body SearchAreaBody }{Body: body}, nil
}
