package pan

import (
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-trip/internal/geo"
)

func TestEvaluateSingleCenter(t *testing.T) {
	origin := geo.LatLng(0, 0)
	tests := []struct {
		meters float64
		want   bool
	}{
		{1900, false},
		{2100, true},
	}
	for _, tt := range tests {
		dec := Evaluate(Input{
			Centers:   []orb.Point{origin},
			Center:    geo.Offset(origin, 0, tt.meters),
			Threshold: 2000,
		})
		if dec.Show != tt.want {
			t.Errorf("%.0fm: show=%v, want %v (min=%.1f)", tt.meters, dec.Show, tt.want, dec.MinDistance)
		}
	}
}

func TestEvaluateUsesNearestCenter(t *testing.T) {
	a := geo.LatLng(0, 0)
	b := geo.LatLng(0, 1)
	centers := []orb.Point{a, b}

	far := Evaluate(Input{Centers: centers, Center: geo.Offset(a, 0, 2100), Threshold: 2000})
	if !far.Show {
		t.Fatalf("2.1km from a and ~109km from b: show=false, min=%.1f", far.MinDistance)
	}

	// Far from a, but still close to b: must stay hidden.
	nearB := Evaluate(Input{Centers: centers, Center: geo.Offset(b, 0, -1500), Threshold: 2000})
	if nearB.Show {
		t.Fatalf("1.5km from b: show=true, min=%.1f", nearB.MinDistance)
	}
	if nearB.MinDistance > 1501 || nearB.MinDistance < 1499 {
		t.Fatalf("min=%.1f, want ~1500", nearB.MinDistance)
	}
}

func TestEvaluateFallback(t *testing.T) {
	hub := geo.LatLng(48.85, 2.35)
	dec := Evaluate(Input{Center: geo.Offset(hub, 3000, 0), Fallback: &hub, Threshold: 2000})
	if !dec.Show || !dec.Reference {
		t.Fatalf("fallback decision=%+v, want show", dec)
	}

	// Search centers win over the fallback.
	dec = Evaluate(Input{
		Centers:   []orb.Point{geo.Offset(hub, 3000, 0)},
		Center:    geo.Offset(hub, 3000, 0),
		Fallback:  &hub,
		Threshold: 2000,
	})
	if dec.Show {
		t.Fatalf("decision=%+v, want hidden", dec)
	}
}

func TestEvaluateNoReference(t *testing.T) {
	dec := Evaluate(Input{Center: geo.LatLng(1, 1), Threshold: 2000})
	if !dec.Show || dec.Reference {
		t.Fatalf("decision=%+v, want shown without a reference", dec)
	}
	if dec := Evaluate(Input{Center: geo.LatLng(math.NaN(), 1), Threshold: 2000}); dec.Show {
		t.Fatalf("decision=%+v, invalid center must not show", dec)
	}
}

func TestDetectorDebounces(t *testing.T) {
	origin := geo.LatLng(0, 0)
	center := origin
	calls := 0
	d := NewDetector(time.Hour, func() Input {
		return Input{Centers: []orb.Point{origin}, Center: center, Threshold: 2000}
	}, func(Decision) { calls++ })

	for i := 1; i <= 10; i++ {
		center = geo.Offset(origin, 0, float64(i)*500)
		d.Notify()
	}
	d.Flush()

	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
	if !d.Last().Show {
		t.Fatalf("last=%+v, want show", d.Last())
	}

	d.Reset()
	if d.Last().Show {
		t.Fatal("reset should hide the affordance")
	}
}
