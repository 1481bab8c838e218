package markers

import "github.com/joeblew999/plat-trip/internal/store"

func kindOf(t store.ItemType) Kind {
	if t == store.Restaurant {
		return KindRestaurant
	}
	return KindAttraction
}

// FromDiscovery builds markers for discovery results.
func FromDiscovery(items []store.DiscoveryItem) []Marker {
	out := make([]Marker, 0, len(items))
	for _, it := range items {
		out = append(out, Marker{ID: it.ID, Kind: kindOf(it.ItemType), Label: it.Name, Position: it.Point()})
	}
	return out
}

// FromPlanned builds markers for every planned POI of every hub.
func FromPlanned(places []store.HubPlace) []Marker {
	var out []Marker
	for _, h := range places {
		for _, list := range [][]store.PlannedPOI{h.PlannedAttractions, h.PlannedRestaurants} {
			for _, p := range list {
				out = append(out, Marker{ID: p.ID, Kind: kindOf(p.ItemType), Label: p.Name, Position: p.Point()})
			}
		}
	}
	return out
}

// FromHubs builds markers for the hub places themselves.
func FromHubs(places []store.HubPlace) []Marker {
	out := make([]Marker, 0, len(places))
	for _, h := range places {
		out = append(out, Marker{ID: h.ID, Kind: KindHub, Label: h.Name, Position: h.Point()})
	}
	return out
}
