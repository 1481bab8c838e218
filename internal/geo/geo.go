// Package geo contains the spherical-earth helpers shared by the map
// interaction packages. Points are orb.Point values in [lng, lat] order.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the mean earth radius in metres.
const EarthRadius = 6371000.0

// LatLng builds an orb.Point from latitude/longitude order, which is how
// every upstream source (signals, providers) reports coordinates.
func LatLng(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

// DistanceMeters returns the great-circle distance between a and b using the
// haversine formula. Non-finite input propagates as NaN; callers guard with Valid.
func DistanceMeters(a, b orb.Point) float64 {
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	dLat := (b.Lat() - a.Lat()) * math.Pi / 180
	dLon := (b.Lon() - a.Lon()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Valid reports whether p is a finite coordinate inside the lat/lng ranges.
func Valid(p orb.Point) bool {
	lng, lat := p.Lon(), p.Lat()
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// FiniteBound reports whether b has finite corners with south <= north.
// Longitudes are not range checked: web maps report unwrapped values
// beyond ±180 when zoomed out or across the antimeridian.
func FiniteBound(b orb.Bound) bool {
	for _, v := range []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Min.Lat() <= b.Max.Lat()
}

// WrapLng shifts lng by whole turns into [west, west+360).
func WrapLng(lng, west float64) float64 {
	d := math.Mod(lng-west, 360)
	if d < 0 {
		d += 360
	}
	return west + d
}

// Contains reports whether p lies inside b. Bounds that cross the
// antimeridian, either as Min lng > Max lng or with unwrapped longitudes,
// are handled by wrapping.
func Contains(b orb.Bound, p orb.Point) bool {
	if p.Lat() < b.Min.Lat() || p.Lat() > b.Max.Lat() {
		return false
	}
	west, east := b.Min.Lon(), b.Max.Lon()
	if east < west {
		east += 360
	}
	if east-west >= 360 {
		return true
	}
	return WrapLng(p.Lon(), west) <= east
}

// Offset returns the point reached by moving north and east by the given
// number of metres from p. It is accurate enough for short distances and is
// mostly used to build test fixtures and search radii.
func Offset(p orb.Point, northMeters, eastMeters float64) orb.Point {
	dLat := northMeters / EarthRadius * 180 / math.Pi
	dLng := eastMeters / (EarthRadius * math.Cos(p.Lat()*math.Pi/180)) * 180 / math.Pi
	return orb.Point{p.Lon() + dLng, p.Lat() + dLat}
}
