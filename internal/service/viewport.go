package service

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-trip/internal/geo"
	"github.com/joeblew999/plat-trip/internal/layout"
	"github.com/joeblew999/plat-trip/internal/markers"
	"github.com/joeblew999/plat-trip/internal/projection"
)

// MaxZoom is the deepest zoom level the map page supports.
const MaxZoom = 22

// ErrInvalidViewport is returned for a reported viewport with non-finite or
// out of range values.
var ErrInvalidViewport = errors.New("invalid viewport")

// ViewportState is what the map page reports once a pan or zoom settles.
// Bounds are optional; when all four are zero they are derived from the
// center, zoom and container size.
type ViewportState struct {
	Lat   float64 `json:"lat" doc:"Viewport center latitude"`
	Lng   float64 `json:"lng" doc:"Viewport center longitude"`
	Zoom  float64 `json:"zoom" doc:"Map zoom level"`
	North float64 `json:"north,omitempty" doc:"Northern edge latitude"`
	South float64 `json:"south,omitempty" doc:"Southern edge latitude"`
	East  float64 `json:"east,omitempty" doc:"Eastern edge longitude"`
	West  float64 `json:"west,omitempty" doc:"Western edge longitude"`
	// Container rect of the map on the page, in CSS pixels.
	Left   float64 `json:"left" doc:"Map container left edge on the page"`
	Top    float64 `json:"top" doc:"Map container top edge on the page"`
	Width  float64 `json:"width" doc:"Map container width"`
	Height float64 `json:"height" doc:"Map container height"`
}

// Center returns the viewport center.
func (s ViewportState) Center() orb.Point {
	return geo.LatLng(s.Lat, s.Lng)
}

func (s ViewportState) hasBounds() bool {
	return s.North != 0 || s.South != 0 || s.East != 0 || s.West != 0
}

// Validate rejects non-finite values, an out of range center and an empty
// container. Bounds only need to be finite.
func (s ViewportState) Validate() error {
	if !geo.Valid(s.Center()) {
		return fmt.Errorf("center %v,%v: %w", s.Lat, s.Lng, ErrInvalidViewport)
	}
	for _, v := range []float64{s.Zoom, s.Left, s.Top, s.Width, s.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value: %w", ErrInvalidViewport)
		}
	}
	if s.Zoom < 0 || s.Zoom > MaxZoom {
		return fmt.Errorf("zoom %v: %w", s.Zoom, ErrInvalidViewport)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("container %vx%v: %w", s.Width, s.Height, ErrInvalidViewport)
	}
	if s.hasBounds() && !geo.FiniteBound(s.bound()) {
		return fmt.Errorf("bounds: %w", ErrInvalidViewport)
	}
	return nil
}

func (s ViewportState) bound() orb.Bound {
	return orb.Bound{Min: geo.LatLng(s.South, s.West), Max: geo.LatLng(s.North, s.East)}
}

// Command ops sent to the map page.
const (
	OpAddMarker   = "add"
	OpRemove      = "remove"
	OpMarkerState = "state"
	OpPan         = "pan"
	OpZoom        = "zoom"
)

// Command is one instruction for the map page.
type Command struct {
	Op     string         `json:"op"`
	Layer  string         `json:"layer,omitempty"`
	Handle markers.Handle `json:"handle,omitempty"`
	ID     string         `json:"id,omitempty"`
	Kind   markers.Kind   `json:"kind,omitempty"`
	Label  string         `json:"label,omitempty"`
	Lat    float64        `json:"lat,omitempty"`
	Lng    float64        `json:"lng,omitempty"`
	State  string         `json:"state,omitempty"`
	Zoom   float64        `json:"zoom,omitempty"`
}

// Viewport mirrors the browser map on the server. Marker and camera calls
// are queued as commands for the SSE stream; the page reports back through
// Apply when the map settles.
type Viewport struct {
	mu     sync.Mutex
	ready  bool
	center orb.Point
	zoom   float64
	bounds orb.Bound
	rect   layout.Rect

	next    markers.Handle
	pending []Command
	changed chan struct{}
}

var (
	_ projection.Surface = (*Viewport)(nil)
	_ markers.Surface    = (*Viewport)(nil)
)

// NewViewport creates a viewport that is not ready until the first Apply.
func NewViewport() *Viewport {
	return &Viewport{changed: make(chan struct{}, 1)}
}

// Apply replaces the mirrored state with a settled viewport report.
func (v *Viewport) Apply(s ViewportState) error {
	if err := s.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ready = true
	v.center = s.Center()
	v.zoom = s.Zoom
	v.rect = layout.Rect{X: s.Left, Y: s.Top, W: s.Width, H: s.Height}
	if s.hasBounds() {
		v.bounds = s.bound()
	} else {
		v.bounds = v.derive()
	}
	return nil
}

// derive computes bounds from center, zoom and container size. Callers
// hold v.mu.
func (v *Viewport) derive() orb.Bound {
	scale := math.Pow(2, v.zoom)
	c := projection.Mercator(v.center)
	halfW := v.rect.W / 2 / scale
	halfH := v.rect.H / 2 / scale
	nw := projection.Unmercator(layout.Point{X: c.X - halfW, Y: math.Max(0, c.Y-halfH)})
	se := projection.Unmercator(layout.Point{X: c.X + halfW, Y: math.Min(projection.TileSize, c.Y+halfH)})
	return orb.Bound{Min: geo.LatLng(se.Lat(), nw.Lon()), Max: geo.LatLng(nw.Lat(), se.Lon())}
}

// Ready reports whether the page has reported a viewport yet.
func (v *Viewport) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready
}

// Center returns the mirrored center.
func (v *Viewport) Center() (orb.Point, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.center, v.ready
}

// Zoom implements projection.Surface and selection.Camera.
func (v *Viewport) Zoom() (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom, v.ready
}

// Bounds implements projection.Surface.
func (v *Viewport) Bounds() (orb.Bound, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bounds, v.ready
}

// WorldPoint implements projection.Surface.
func (v *Viewport) WorldPoint(p orb.Point) (layout.Point, bool) {
	if !geo.Valid(p) {
		return layout.Point{}, false
	}
	return projection.Mercator(p), true
}

// ContainerRect implements projection.Surface.
func (v *Viewport) ContainerRect() (layout.Rect, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rect, v.ready && !v.rect.Empty()
}

// PanTo implements selection.Camera. The mirror moves immediately so later
// projections agree with where the page is heading.
func (v *Viewport) PanTo(p orb.Point) {
	v.mu.Lock()
	v.center = p
	if v.ready {
		v.bounds = v.derive()
	}
	v.queue(Command{Op: OpPan, Lat: p.Lat(), Lng: p.Lon()})
	v.mu.Unlock()
}

// SetZoom implements selection.Camera.
func (v *Viewport) SetZoom(z float64) {
	v.mu.Lock()
	v.zoom = z
	if v.ready {
		v.bounds = v.derive()
	}
	v.queue(Command{Op: OpZoom, Zoom: z})
	v.mu.Unlock()
}

// AddMarker implements markers.Surface.
func (v *Viewport) AddMarker(layer string, m markers.Marker) markers.Handle {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.next++
	v.queue(Command{
		Op: OpAddMarker, Layer: layer, Handle: v.next,
		ID: m.ID, Kind: m.Kind, Label: m.Label,
		Lat: m.Position.Lat(), Lng: m.Position.Lon(),
	})
	return v.next
}

// RemoveMarker implements markers.Surface.
func (v *Viewport) RemoveMarker(layer string, h markers.Handle) {
	v.mu.Lock()
	v.queue(Command{Op: OpRemove, Layer: layer, Handle: h})
	v.mu.Unlock()
}

// SetMarkerState implements markers.Surface.
func (v *Viewport) SetMarkerState(layer string, h markers.Handle, s markers.State) {
	v.mu.Lock()
	v.queue(Command{Op: OpMarkerState, Layer: layer, Handle: h, State: s.String()})
	v.mu.Unlock()
}

// maxPending bounds the command queue while no stream drains it. A stream
// resyncs every marker when it connects, so dropped commands are redrawn.
const maxPending = 512

// queue appends a command and wakes the stream. Once maxPending commands
// are waiting the oldest half is dropped. Callers hold v.mu.
func (v *Viewport) queue(c Command) {
	if len(v.pending) >= maxPending {
		n := copy(v.pending, v.pending[maxPending/2:])
		clear(v.pending[n:])
		v.pending = v.pending[:n]
	}
	v.pending = append(v.pending, c)
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

// Drain returns and clears the queued commands.
func (v *Viewport) Drain() []Command {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.pending
	v.pending = nil
	return out
}

// Changed is signalled whenever commands are queued.
func (v *Viewport) Changed() <-chan struct{} {
	return v.changed
}
