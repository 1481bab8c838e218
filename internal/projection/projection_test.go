package projection

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-trip/internal/geo"
	"github.com/joeblew999/plat-trip/internal/layout"
)

type fakeSurface struct {
	zoom    float64
	bounds  orb.Bound
	rect    layout.Rect
	ready   bool
	noWorld bool
}

func (f *fakeSurface) Zoom() (float64, bool)     { return f.zoom, f.ready }
func (f *fakeSurface) Bounds() (orb.Bound, bool) { return f.bounds, f.ready }
func (f *fakeSurface) ContainerRect() (layout.Rect, bool) {
	return f.rect, f.ready
}
func (f *fakeSurface) WorldPoint(p orb.Point) (layout.Point, bool) {
	if f.noWorld {
		return layout.Point{}, false
	}
	return Mercator(p), true
}

const maxMercatorLat = 85.0511287798

func near(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

func TestMercatorOrigin(t *testing.T) {
	p := Mercator(geo.LatLng(0, 0))
	if !near(p.X, 128) || !near(p.Y, 128) {
		t.Fatalf("mercator(0,0)=%v, want (128,128)", p)
	}
	nw := Mercator(geo.LatLng(maxMercatorLat, -180))
	if !near(nw.X, 0) || math.Abs(nw.Y) > 0.01 {
		t.Fatalf("mercator(nw)=%v, want (0,0)", nw)
	}
}

func TestProjectWholeWorld(t *testing.T) {
	s := &fakeSurface{
		zoom:   0,
		bounds: orb.Bound{Min: geo.LatLng(-maxMercatorLat, -180), Max: geo.LatLng(maxMercatorLat, 180)},
		rect:   layout.Rect{X: 10, Y: 20, W: 256, H: 256},
		ready:  true,
	}
	got, ok := Project(s, geo.LatLng(0, 0))
	if !ok {
		t.Fatal("expected projection")
	}
	if math.Abs(got.X-138) > 0.01 || math.Abs(got.Y-148) > 0.01 {
		t.Fatalf("got=%v, want (138,148)", got)
	}
}

func TestProjectScalesWithZoom(t *testing.T) {
	s := &fakeSurface{
		zoom:   3,
		bounds: orb.Bound{Min: geo.LatLng(-10, -10), Max: geo.LatLng(10, 10)},
		ready:  true,
	}
	a, _ := Project(s, geo.LatLng(0, 0))
	s.zoom = 4
	b, _ := Project(s, geo.LatLng(0, 0))
	if !near(b.X, 2*a.X) || !near(b.Y, 2*a.Y) {
		t.Fatalf("zoom 4=%v, want double of %v", b, a)
	}
}

func TestProjectUnavailable(t *testing.T) {
	if _, ok := Project(nil, geo.LatLng(0, 0)); ok {
		t.Fatal("nil surface should not project")
	}
	s := &fakeSurface{}
	if _, ok := Project(s, geo.LatLng(0, 0)); ok {
		t.Fatal("unready surface should not project")
	}
	s.ready = true
	s.noWorld = true
	if _, ok := Project(s, geo.LatLng(0, 0)); ok {
		t.Fatal("surface without projector should not project")
	}
}

func TestLocal(t *testing.T) {
	got := Local(layout.Point{X: 110, Y: 220}, layout.Rect{X: 10, Y: 20})
	if got != (layout.Point{X: 100, Y: 200}) {
		t.Fatalf("got=%v", got)
	}
}

func TestUnmercatorRoundTrip(t *testing.T) {
	for _, p := range []orb.Point{geo.LatLng(48.8566, 2.3522), geo.LatLng(-33.86, 151.2), geo.LatLng(0, 0)} {
		back := Unmercator(Mercator(p))
		if math.Abs(back.Lat()-p.Lat()) > 1e-9 || math.Abs(back.Lon()-p.Lon()) > 1e-9 {
			t.Fatalf("round trip %v -> %v", p, back)
		}
	}
}

func TestProjectAcrossAntimeridian(t *testing.T) {
	s := &fakeSurface{
		zoom:   3,
		bounds: orb.Bound{Min: geo.LatLng(-10, 160), Max: geo.LatLng(10, 200)},
		ready:  true,
	}
	scale := TileSize * 8 / 360
	got, ok := Project(s, geo.LatLng(0, -175))
	if !ok || !near(got.X, 25*scale) {
		t.Fatalf("unwrapped bounds: got=%v, want x=%v", got, 25*scale)
	}

	s.bounds = orb.Bound{Min: geo.LatLng(-10, 170), Max: geo.LatLng(10, -170)}
	got, _ = Project(s, geo.LatLng(0, -175))
	if !near(got.X, 15*scale) {
		t.Fatalf("wrapped bounds: got=%v, want x=%v", got, 15*scale)
	}

	s.bounds = orb.Bound{Min: geo.LatLng(-10, -10), Max: geo.LatLng(10, 10)}
	got, _ = Project(s, geo.LatLng(0, 5))
	if !near(got.X, 15*scale) {
		t.Fatalf("plain bounds: got=%v, want x=%v", got, 15*scale)
	}
}
