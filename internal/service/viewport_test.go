package service

import (
	"errors"
	"math"
	"testing"

	"github.com/joeblew999/plat-trip/internal/geo"
	"github.com/joeblew999/plat-trip/internal/markers"
	"github.com/joeblew999/plat-trip/internal/projection"
)

func paris() ViewportState {
	return ViewportState{Lat: 48.8566, Lng: 2.3522, Zoom: 12, Width: 800, Height: 600}
}

func TestViewportValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*ViewportState)
	}{
		{"nan lat", func(s *ViewportState) { s.Lat = math.NaN() }},
		{"lat range", func(s *ViewportState) { s.Lat = 91 }},
		{"inf zoom", func(s *ViewportState) { s.Zoom = math.Inf(1) }},
		{"deep zoom", func(s *ViewportState) { s.Zoom = MaxZoom + 1 }},
		{"no width", func(s *ViewportState) { s.Width = 0 }},
		{"nan left", func(s *ViewportState) { s.Left = math.NaN() }},
		{"nan bounds", func(s *ViewportState) { s.North, s.South, s.East, s.West = math.NaN(), 10, 20, 0 }},
		{"inverted bounds", func(s *ViewportState) { s.North, s.South, s.East, s.West = 10, 20, 20, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := paris()
			tt.edit(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidViewport) {
				t.Fatalf("err=%v, want ErrInvalidViewport", err)
			}
		})
	}
	if err := paris().Validate(); err != nil {
		t.Fatalf("valid viewport rejected: %v", err)
	}
}

func TestViewportNotReady(t *testing.T) {
	v := NewViewport()
	if _, ok := v.Zoom(); ok {
		t.Fatal("zoom ready before Apply")
	}
	if _, ok := projection.Project(v, geo.LatLng(1, 1)); ok {
		t.Fatal("projection available before Apply")
	}
	if err := v.Apply(ViewportState{Lat: math.NaN()}); err == nil {
		t.Fatal("invalid state applied")
	}
	if v.Ready() {
		t.Fatal("viewport ready after rejected Apply")
	}
}

func TestViewportDerivedBoundsProjectCenterToMiddle(t *testing.T) {
	v := NewViewport()
	s := paris()
	s.Left, s.Top = 100, 50
	if err := v.Apply(s); err != nil {
		t.Fatal(err)
	}
	b, _ := v.Bounds()
	if !geo.Contains(b, s.Center()) {
		t.Fatalf("bounds %v do not contain center", b)
	}
	pt, ok := projection.Project(v, s.Center())
	if !ok {
		t.Fatal("projection unavailable")
	}
	if math.Abs(pt.X-500) > 1e-6 || math.Abs(pt.Y-350) > 1e-6 {
		t.Fatalf("center projects to %+v, want (500,350)", pt)
	}
}

func TestViewportReportedBoundsWin(t *testing.T) {
	v := NewViewport()
	s := paris()
	s.North, s.South, s.East, s.West = 49, 48, 3, 2
	if err := v.Apply(s); err != nil {
		t.Fatal(err)
	}
	b, _ := v.Bounds()
	if b.Max.Lat() != 49 || b.Min.Lon() != 2 {
		t.Fatalf("bounds=%v", b)
	}
}

func TestViewportQueuesCommands(t *testing.T) {
	v := NewViewport()
	v.Apply(paris())

	h := v.AddMarker(LayerDiscovery, markers.Marker{ID: "a", Kind: markers.KindAttraction, Position: geo.LatLng(1, 2)})
	v.SetMarkerState(LayerDiscovery, h, markers.Hovered)
	v.RemoveMarker(LayerDiscovery, h)
	v.PanTo(geo.LatLng(10, 20))
	v.SetZoom(14)

	select {
	case <-v.Changed():
	default:
		t.Fatal("changed not signalled")
	}

	cmds := v.Drain()
	ops := make([]string, len(cmds))
	for i, c := range cmds {
		ops[i] = c.Op
	}
	want := []string{OpAddMarker, OpMarkerState, OpRemove, OpPan, OpZoom}
	if len(ops) != len(want) {
		t.Fatalf("ops=%v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("ops=%v, want %v", ops, want)
		}
	}
	if cmds[0].Lat != 1 || cmds[0].Lng != 2 || cmds[1].State != "hovered" {
		t.Fatalf("cmds=%+v", cmds)
	}
	if c, _ := v.Center(); c != geo.LatLng(10, 20) {
		t.Fatalf("center=%v after PanTo", c)
	}
	if z, _ := v.Zoom(); z != 14 {
		t.Fatalf("zoom=%v after SetZoom", z)
	}
	if len(v.Drain()) != 0 {
		t.Fatal("drain did not clear the queue")
	}
}

func TestViewportQueueIsBounded(t *testing.T) {
	v := NewViewport()
	v.Apply(paris())

	total := maxPending*3 + 7
	for i := 0; i < total; i++ {
		v.PanTo(geo.LatLng(float64(i%80), 0))
	}
	cmds := v.Drain()
	if len(cmds) == 0 || len(cmds) > maxPending {
		t.Fatalf("queued=%d, want 1..%d", len(cmds), maxPending)
	}
	if last := cmds[len(cmds)-1]; last.Lat != float64((total-1)%80) {
		t.Fatalf("last pan lat=%v, want newest command kept", last.Lat)
	}
}

func TestViewportAcceptsUnwrappedBounds(t *testing.T) {
	v := NewViewport()
	s := ViewportState{Lat: 10, Lng: 0, Zoom: 0.5, Width: 800, Height: 600,
		North: 80, South: -80, East: 250, West: -250}
	if err := v.Apply(s); err != nil {
		t.Fatalf("zoomed out report rejected: %v", err)
	}
	if !v.Ready() {
		t.Fatal("viewport not ready")
	}
	if _, ok := projection.Project(v, geo.LatLng(10, 120)); !ok {
		t.Fatal("projection unavailable with unwrapped bounds")
	}
}
