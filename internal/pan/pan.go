// Package pan decides when the map has been panned far enough away from
// previous searches to offer a "search this area" affordance.
package pan

import (
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-trip/internal/debounce"
	"github.com/joeblew999/plat-trip/internal/geo"
)

// DefaultThreshold is the distance in metres the viewport center must be
// from every prior search before the affordance is shown.
const DefaultThreshold = 2000.0

// DefaultDelay is the quiet period before a recomputation runs.
const DefaultDelay = 100 * time.Millisecond

// Decision is the outcome of one evaluation.
type Decision struct {
	Show        bool    `json:"show"`
	MinDistance float64 `json:"minDistance"`
	// Reference is false when neither search centers nor a fallback point
	// existed; MinDistance is then meaningless.
	Reference bool `json:"reference"`
}

// Input is a snapshot of what Evaluate needs.
type Input struct {
	Centers   []orb.Point
	Center    orb.Point
	Fallback  *orb.Point
	Threshold float64
}

// Evaluate compares the viewport center against every recorded search
// center and shows the affordance only when the nearest one is farther than
// the threshold. Without search centers the fallback point is used. With
// neither, nothing has been searched near here yet and the affordance shows.
func Evaluate(in Input) Decision {
	if !geo.Valid(in.Center) {
		return Decision{}
	}

	refs := in.Centers
	if len(refs) == 0 {
		if in.Fallback == nil {
			return Decision{Show: true}
		}
		refs = []orb.Point{*in.Fallback}
	}

	min := math.Inf(1)
	for _, c := range refs {
		if !geo.Valid(c) {
			continue
		}
		if d := geo.DistanceMeters(in.Center, c); d < min {
			min = d
		}
	}
	if math.IsInf(min, 1) {
		return Decision{}
	}
	return Decision{Show: min > in.Threshold, MinDistance: min, Reference: true}
}

// Detector runs Evaluate after viewport changes settle. Source is read at
// recomputation time so the decision reflects the latest store state.
type Detector struct {
	source   func() Input
	onChange func(Decision)
	deb      *debounce.Debouncer

	mu   sync.Mutex
	last Decision
}

// NewDetector builds a detector. onChange is called with every recomputed
// decision, changed or not; it may be nil.
func NewDetector(delay time.Duration, source func() Input, onChange func(Decision)) *Detector {
	d := &Detector{source: source, onChange: onChange}
	d.deb = debounce.New(delay, d.recompute)
	return d
}

// Notify records that the viewport moved. Rapid calls coalesce.
func (d *Detector) Notify() {
	d.deb.Trigger()
}

// Flush forces a pending recomputation to run now.
func (d *Detector) Flush() {
	d.deb.Flush()
}

// Stop drops any pending recomputation.
func (d *Detector) Stop() {
	d.deb.Cancel()
}

// Last returns the most recent decision.
func (d *Detector) Last() Decision {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Reset hides the affordance without waiting for the next viewport change,
// e.g. right after a search has been issued from the current center.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.last = Decision{}
	d.mu.Unlock()
}

func (d *Detector) recompute() {
	dec := Evaluate(d.source())

	d.mu.Lock()
	d.last = dec
	d.mu.Unlock()

	if d.onChange != nil {
		d.onChange(dec)
	}
}
