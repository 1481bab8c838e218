package google

import (
	"math"

	"github.com/joeblew999/plat-trip/internal/store"
)

// confidenceSaturation is the review count at which confidence reaches 1.
const confidenceSaturation = 1000

// neutralPersona is used until a traveller profile is available.
const neutralPersona = 0.5

// genericTypes carry no information about what a place is.
var genericTypes = map[string]bool{"point_of_interest": true, "establishment": true}

// scorePlaces turns raw results into scored discovery items, dropping
// results without a name or a location. Diversity falls as more results
// share the same primary type.
func scorePlaces(results []placeResult) []store.DiscoveryItem {
	seen := map[string]int{}
	items := make([]store.DiscoveryItem, 0, len(results))
	for _, r := range results {
		loc := r.Geometry.Location
		if r.Name == "" || (loc.Lat == 0 && loc.Lng == 0) {
			continue
		}
		primary := primaryType(r.Types)
		sub := store.SubScores{
			Quality:    quality(r.Rating),
			Persona:    neutralPersona,
			Diversity:  1 / float64(1+seen[primary]),
			Confidence: confidence(r.UserRatingsTotal),
		}
		seen[primary]++

		photos := make([]string, 0, len(r.Photos))
		for _, p := range r.Photos {
			if p.Reference != "" {
				photos = append(photos, p.Reference)
			}
		}
		poi := store.POI{
			ID:               "gpl:" + r.PlaceID,
			GooglePlaceID:    r.PlaceID,
			Name:             r.Name,
			Lat:              loc.Lat,
			Lng:              loc.Lng,
			Rating:           r.Rating,
			UserRatingsTotal: r.UserRatingsTotal,
			Types:            r.Types,
			Photos:           photos,
			PriceLevel:       r.PriceLevel,
		}
		item := store.NewDiscoveryItem(poi, sub, 0)
		item.Score = store.Weigh(sub, store.WeightsFor(item.ItemType)).Total
		items = append(items, item)
	}
	return items
}

func quality(rating float64) float64 {
	return clamp01(rating / 5)
}

func confidence(reviews int) float64 {
	if reviews <= 0 {
		return 0
	}
	return clamp01(math.Log1p(float64(reviews)) / math.Log1p(confidenceSaturation))
}

func primaryType(types []string) string {
	for _, t := range types {
		if !genericTypes[t] {
			return t
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
