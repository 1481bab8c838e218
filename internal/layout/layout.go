// Package layout positions floating cards next to map markers.
//
// Placement is a hint: Place never fails. It tries the preferred side, then
// the remaining sides in a fixed order, and finally clamps the card into the
// viewport, stepping out of the exclusion zone when there is room to do so.
package layout

import "fmt"

// Margin is the gap kept between a card and the viewport edges.
const Margin = 8.0

// DefaultOffset is the clearance between a marker's anchor point and the card.
// It accounts for the height of the marker glyph.
const DefaultOffset = 40.0

// Point is a screen position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in CSS pixels.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Rect is an axis-aligned screen rectangle with its origin at the top-left.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Intersects reports whether r and o overlap. Shared edges do not count.
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Intersect returns the overlap of r and o, or an empty Rect.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.W, o.X+o.W), min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Side is the side of the marker a card is drawn on.
type Side int

const (
	Top Side = iota
	Right
	Bottom
	Left
)

var sideNames = [...]string{"top", "right", "bottom", "left"}

func (s Side) String() string {
	if s < Top || s > Left {
		return fmt.Sprintf("side(%d)", int(s))
	}
	return sideNames[s]
}

// ParseSide maps a side name to a Side, defaulting to Top.
func ParseSide(name string) Side {
	for i, n := range sideNames {
		if n == name {
			return Side(i)
		}
	}
	return Top
}

// fallbackOrder is the fixed order tried after the preferred side.
var fallbackOrder = []Side{Top, Right, Bottom, Left}

// Place returns the top-left origin for a card of the given size next to a
// marker at the given screen position. exclusion may be nil.
func Place(marker Point, card Size, viewport Size, offset float64, preferred Side, exclusion *Rect) Point {
	sides := make([]Side, 0, len(fallbackOrder))
	sides = append(sides, preferred)
	for _, s := range fallbackOrder {
		if s != preferred {
			sides = append(sides, s)
		}
	}

	for _, s := range sides {
		r := rectFor(s, marker, card, offset)
		if fits(r, viewport) && !hits(r, exclusion) {
			return Point{X: r.X, Y: r.Y}
		}
	}

	r := clamp(rectFor(preferred, marker, card, offset), viewport)
	if hits(r, exclusion) {
		moved := r
		moved.X = exclusion.X + exclusion.W + Margin
		if fits(moved, viewport) {
			return Point{X: moved.X, Y: moved.Y}
		}
	}
	return Point{X: r.X, Y: r.Y}
}

// Centered returns the origin that centers a card in the viewport. Used by
// mobile layouts, which bypass side placement.
func Centered(card Size, viewport Size) Point {
	return clampPoint(Point{
		X: (viewport.W - card.W) / 2,
		Y: (viewport.H - card.H) / 2,
	}, card, viewport)
}

// BottomDocked returns the origin that docks a card to the bottom edge.
func BottomDocked(card Size, viewport Size) Point {
	return clampPoint(Point{
		X: (viewport.W - card.W) / 2,
		Y: viewport.H - card.H - Margin,
	}, card, viewport)
}

func rectFor(s Side, m Point, c Size, offset float64) Rect {
	switch s {
	case Right:
		return Rect{X: m.X + offset, Y: m.Y - c.H/2, W: c.W, H: c.H}
	case Bottom:
		return Rect{X: m.X - c.W/2, Y: m.Y + offset, W: c.W, H: c.H}
	case Left:
		return Rect{X: m.X - offset - c.W, Y: m.Y - c.H/2, W: c.W, H: c.H}
	default:
		return Rect{X: m.X - c.W/2, Y: m.Y - offset - c.H, W: c.W, H: c.H}
	}
}

func fits(r Rect, vp Size) bool {
	return r.X >= Margin && r.Y >= Margin &&
		r.X+r.W <= vp.W-Margin && r.Y+r.H <= vp.H-Margin
}

func hits(r Rect, exclusion *Rect) bool {
	return exclusion != nil && r.Intersects(*exclusion)
}

func clamp(r Rect, vp Size) Rect {
	p := clampPoint(Point{X: r.X, Y: r.Y}, Size{W: r.W, H: r.H}, vp)
	r.X, r.Y = p.X, p.Y
	return r
}

func clampPoint(p Point, c Size, vp Size) Point {
	p.X = clampAxis(p.X, c.W, vp.W)
	p.Y = clampAxis(p.Y, c.H, vp.H)
	return p
}

// clampAxis keeps [v, v+length] inside [Margin, limit-Margin]. When the card
// is larger than the available space it is pinned to the leading margin.
func clampAxis(v, length, limit float64) float64 {
	hi := limit - Margin - length
	if v > hi {
		v = hi
	}
	if v < Margin {
		v = Margin
	}
	return v
}
