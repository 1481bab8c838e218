// Package projection converts geographic coordinates into screen pixels
// relative to the page, using the map surface's current camera.
package projection

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-trip/internal/geo"
	"github.com/joeblew999/plat-trip/internal/layout"
)

// TileSize is the width of the world plane at zoom 0, in pixels.
const TileSize = 256.0

// Surface is the part of the rendering surface the projection needs.
// Every accessor reports false while the map is not ready.
type Surface interface {
	Zoom() (float64, bool)
	Bounds() (orb.Bound, bool)
	WorldPoint(p orb.Point) (layout.Point, bool)
	ContainerRect() (layout.Rect, bool)
}

// Project returns the page position of p. The second value is false when
// the surface cannot project yet; callers skip positioning for that frame.
func Project(s Surface, p orb.Point) (layout.Point, bool) {
	if s == nil {
		return layout.Point{}, false
	}
	zoom, ok := s.Zoom()
	if !ok {
		return layout.Point{}, false
	}
	bounds, ok := s.Bounds()
	if !ok {
		return layout.Point{}, false
	}
	rect, ok := s.ContainerRect()
	if !ok {
		return layout.Point{}, false
	}

	nw := orb.Point{bounds.Min.Lon(), bounds.Max.Lat()}
	target, ok := s.WorldPoint(nearestCopy(p, bounds))
	if !ok {
		return layout.Point{}, false
	}
	origin, ok := s.WorldPoint(nw)
	if !ok {
		return layout.Point{}, false
	}

	scale := math.Pow(2, zoom)
	return layout.Point{
		X: (target.X-origin.X)*scale + rect.X,
		Y: (target.Y-origin.Y)*scale + rect.Y,
	}, true
}

// nearestCopy moves p by whole turns of longitude to the world copy closest
// to the middle of bounds. Web maps report unwrapped bounds when zoomed out
// or when the view crosses the antimeridian.
func nearestCopy(p orb.Point, bounds orb.Bound) orb.Point {
	west, east := bounds.Min.Lon(), bounds.Max.Lon()
	if east < west {
		east += 360
	}
	mid := (west + east) / 2
	if math.Abs(p.Lon()-mid) <= 180 {
		return p
	}
	return orb.Point{geo.WrapLng(p.Lon(), mid-180), p.Lat()}
}

// Mercator maps p onto the Web Mercator world plane used by tiled web maps,
// where the whole world is TileSize pixels wide at zoom 0.
func Mercator(p orb.Point) layout.Point {
	m := project.Point(p, project.WGS84.ToMercator)
	half := math.Pi * orb.EarthRadius
	return layout.Point{
		X: (m.X() + half) / (2 * half) * TileSize,
		Y: (half - m.Y()) / (2 * half) * TileSize,
	}
}

// Container returns the viewport size of a container rect.
func Container(r layout.Rect) layout.Size {
	return layout.Size{W: r.W, H: r.H}
}

// Local converts a page position into container-relative coordinates.
func Local(p layout.Point, r layout.Rect) layout.Point {
	return layout.Point{X: p.X - r.X, Y: p.Y - r.Y}
}

// Unmercator is the inverse of Mercator.
func Unmercator(w layout.Point) orb.Point {
	half := math.Pi * orb.EarthRadius
	m := orb.Point{
		w.X/TileSize*2*half - half,
		half - w.Y/TileSize*2*half,
	}
	return project.Point(m, project.Mercator.ToWGS84)
}
