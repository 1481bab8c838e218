// Package store is the single source of truth for the map session: hub
// places with their planned POIs, discovery results, search-center history
// and the UI cursor (selection, hover, expanded card, mode, filters).
package store

import (
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-trip/internal/geo"
)

// ItemType discriminates the two kinds of point of interest.
type ItemType string

const (
	Attraction ItemType = "attraction"
	Restaurant ItemType = "restaurant"
)

var restaurantKeywords = []string{"restaurant", "food", "cafe", "bar", "bakery"}

// Classify derives the item type from provider place types. Any type
// containing a restaurant keyword makes the place a restaurant.
func Classify(types []string) ItemType {
	for _, t := range types {
		t = strings.ToLower(t)
		for _, kw := range restaurantKeywords {
			if strings.Contains(t, kw) {
				return Restaurant
			}
		}
	}
	return Attraction
}

// SubScores are the provider-computed components of a POI score, each in [0,1].
type SubScores struct {
	Quality    float64 `json:"quality"`
	Persona    float64 `json:"persona"`
	Diversity  float64 `json:"diversity"`
	Confidence float64 `json:"confidence"`
}

// Weights is a per-type weighting of SubScores.
type Weights struct {
	Quality    float64
	Persona    float64
	Diversity  float64
	Confidence float64
}

var (
	AttractionWeights = Weights{Quality: 0.5, Persona: 0.1, Diversity: 0.2, Confidence: 0.2}
	RestaurantWeights = Weights{Quality: 0.7, Confidence: 0.3}
)

// WeightsFor returns the weighting used for the given item type.
func WeightsFor(t ItemType) Weights {
	if t == Restaurant {
		return RestaurantWeights
	}
	return AttractionWeights
}

// Breakdown is a score split into its weighted contributions.
type Breakdown struct {
	Quality    float64 `json:"quality"`
	Persona    float64 `json:"persona"`
	Diversity  float64 `json:"diversity"`
	Confidence float64 `json:"confidence"`
	Total      float64 `json:"total"`
}

// Weigh applies w to s.
func Weigh(s SubScores, w Weights) Breakdown {
	b := Breakdown{
		Quality:    s.Quality * w.Quality,
		Persona:    s.Persona * w.Persona,
		Diversity:  s.Diversity * w.Diversity,
		Confidence: s.Confidence * w.Confidence,
	}
	b.Total = b.Quality + b.Persona + b.Diversity + b.Confidence
	return b
}

// POI holds the fields shared by discovery items and planned POIs.
type POI struct {
	ID               string   `json:"id"`
	GooglePlaceID    string   `json:"googlePlaceId,omitempty"`
	Name             string   `json:"name"`
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	Rating           float64  `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"userRatingsTotal,omitempty"`
	Types            []string `json:"types,omitempty"`
	Photos           []string `json:"photos,omitempty"`
	PriceLevel       *int     `json:"priceLevel,omitempty"`
	ItemType         ItemType `json:"itemType"`
}

// Point returns the POI location.
func (p POI) Point() orb.Point {
	return geo.LatLng(p.Lat, p.Lng)
}

// DiscoveryItem is a nearby-search candidate. Score is precomputed by the
// search provider.
type DiscoveryItem struct {
	POI
	SubScores
	Score float64 `json:"score"`
}

// NewDiscoveryItem fills ItemType from the place types.
func NewDiscoveryItem(p POI, s SubScores, score float64) DiscoveryItem {
	p.ItemType = Classify(p.Types)
	return DiscoveryItem{POI: p, SubScores: s, Score: score}
}

// Breakdown reports the weighted sub-scores with the provider total.
func (d DiscoveryItem) Breakdown() Breakdown {
	b := Weigh(d.SubScores, WeightsFor(d.ItemType))
	b.Total = d.Score
	return b
}

// Plan converts the candidate into a planned POI.
func (d DiscoveryItem) Plan() PlannedPOI {
	return PlannedPOI{POI: d.POI, SubScores: d.SubScores}
}

// PlannedPOI is a discovery item committed into a hub place.
type PlannedPOI struct {
	POI
	SubScores
}

// Breakdown recomputes the score from the sub-scores.
func (p PlannedPOI) Breakdown() Breakdown {
	return Weigh(p.SubScores, WeightsFor(p.ItemType))
}

// Score is the recomputed weighted score.
func (p PlannedPOI) Score() float64 {
	return p.Breakdown().Total
}

// HubPlace is an anchor location the itinerary is built around.
type HubPlace struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Country            string       `json:"country,omitempty"`
	Lat                float64      `json:"lat"`
	Lng                float64      `json:"lng"`
	Photos             []string     `json:"photos,omitempty"`
	PlannedAttractions []PlannedPOI `json:"plannedAttractions"`
	PlannedRestaurants []PlannedPOI `json:"plannedRestaurants"`
}

// Point returns the hub location.
func (h HubPlace) Point() orb.Point {
	return geo.LatLng(h.Lat, h.Lng)
}

// list returns the planned list for kind.
func (h *HubPlace) list(kind ItemType) *[]PlannedPOI {
	if kind == Restaurant {
		return &h.PlannedRestaurants
	}
	return &h.PlannedAttractions
}

func (h HubPlace) clone() HubPlace {
	h.PlannedAttractions = append([]PlannedPOI{}, h.PlannedAttractions...)
	h.PlannedRestaurants = append([]PlannedPOI{}, h.PlannedRestaurants...)
	h.Photos = append([]string(nil), h.Photos...)
	return h
}

// Mode is the active side-panel mode.
type Mode string

const (
	ModeDiscover Mode = "discover"
	ModePlan     Mode = "plan"
	ModeAI       Mode = "ai"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDiscover || m == ModePlan || m == ModeAI
}

// UsesDiscovery reports whether hovered/expanded ids refer to discovery
// results in this mode rather than planned POIs.
func (m Mode) UsesDiscovery() bool {
	return m == ModeDiscover || m == ModeAI
}

// Category filters discovery results by item type. The empty value keeps all.
type Category string

const (
	CategoryAll         Category = ""
	CategoryAttractions Category = "attractions"
	CategoryRestaurants Category = "restaurants"
)

// Filters narrow the discovery list.
type Filters struct {
	Category   Category `json:"category,omitempty" enum:"attractions,restaurants" doc:"Keep only one item type"`
	MinQuality float64  `json:"minQuality,omitempty" minimum:"0" maximum:"1" doc:"Minimum quality sub-score"`
}
