// Package selection resolves hovered and expanded ids into renderable card
// views and keeps the camera and the cards consistent: recentering when a
// card opens or a hub is selected, closing a card whose marker scrolled out
// of view, and holding hover open while the pointer travels to the card.
package selection

import (
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trip/internal/debounce"
	"github.com/joeblew999/plat-trip/internal/projection"
	"github.com/joeblew999/plat-trip/internal/store"
)

// Camera is the part of the rendering surface that moves the view.
type Camera interface {
	Zoom() (float64, bool)
	PanTo(p orb.Point)
	SetZoom(z float64)
}

// Config tunes the controller.
type Config struct {
	// HubZoomFloor is the minimum zoom after selecting a hub place.
	HubZoomFloor float64
	// POIZoomFloor is the minimum zoom after expanding a POI card.
	POIZoomFloor float64
	// HoverGrace delays clearing hover so the pointer can reach the card.
	HoverGrace time.Duration
	// AutoClose closes the expanded card when its marker leaves the view.
	// Layouts that show the expanded card full-screen turn it off.
	AutoClose bool
}

// DefaultConfig returns the desktop tuning.
func DefaultConfig() Config {
	return Config{
		HubZoomFloor: 12,
		POIZoomFloor: 15,
		HoverGrace:   150 * time.Millisecond,
		AutoClose:    true,
	}
}

// Resolve looks id up in the universe the active mode refers to: discovery
// results in discover and AI modes, planned POIs in plan mode.
func Resolve(s *store.Store, id string) (store.ScoredView, bool) {
	if id == "" {
		return store.ScoredView{}, false
	}
	var idx store.Index
	if s.Mode().UsesDiscovery() {
		idx = s.DiscoveryIndex()
	} else {
		idx = s.PlannedIndex()
	}
	v, ok := idx[id]
	if ok && !v.Planned {
		v.Planned = s.IsPlanned(id)
	}
	return v, ok
}

// Controller reacts to store cursor changes and viewport changes.
type Controller struct {
	store   *store.Store
	camera  Camera
	surface projection.Surface
	log     *zap.Logger

	mu  sync.Mutex
	cfg Config

	hoverClear *debounce.Debouncer
	unwatch    func()
}

// NewController wires a controller to a store and the rendering surface.
// Call Start to begin reacting to store changes.
func NewController(s *store.Store, camera Camera, surface projection.Surface, cfg Config, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		store:   s,
		camera:  camera,
		surface: surface,
		cfg:     cfg,
		log:     log.Named("selection"),
	}
	c.hoverClear = debounce.New(cfg.HoverGrace, func() { s.SetHovered("") })
	return c
}

// Start subscribes to store changes.
func (c *Controller) Start() {
	c.unwatch = c.store.Watch(c.onEvent)
}

// Stop unsubscribes and drops a pending hover clear.
func (c *Controller) Stop() {
	if c.unwatch != nil {
		c.unwatch()
	}
	c.hoverClear.Cancel()
}

// SetAutoClose toggles auto-close, e.g. when the layout switches between
// desktop and mobile.
func (c *Controller) SetAutoClose(on bool) {
	c.mu.Lock()
	c.cfg.AutoClose = on
	c.mu.Unlock()
}

func (c *Controller) config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) onEvent(e store.Event) {
	if e.Resource != store.ResourceCursor || e.ID == "" {
		return
	}
	switch e.Action {
	case "expanded":
		if v, ok := Resolve(c.store, e.ID); ok {
			c.focus(v.POI.Point(), c.config().POIZoomFloor)
		}
	case "selected":
		if hub, ok := c.store.Place(e.ID); ok {
			c.focus(hub.Point(), c.config().HubZoomFloor)
		}
	}
}

// focus pans to p and zooms in to floor, never out.
func (c *Controller) focus(p orb.Point, floor float64) {
	if c.camera == nil {
		return
	}
	c.camera.PanTo(p)
	if z, ok := c.camera.Zoom(); !ok || z < floor {
		c.camera.SetZoom(floor)
	}
}

// Hovered resolves the hovered id.
func (c *Controller) Hovered() (store.ScoredView, bool) {
	h, _ := c.store.Cursor()
	return Resolve(c.store, h)
}

// Expanded resolves the expanded id.
func (c *Controller) Expanded() (store.ScoredView, bool) {
	_, e := c.store.Cursor()
	return Resolve(c.store, e)
}

// HoverMarker shows the hover card for id right away.
func (c *Controller) HoverMarker(id string) {
	c.hoverClear.Cancel()
	c.store.SetHovered(id)
}

// LeaveMarker starts the grace period after which hover clears.
func (c *Controller) LeaveMarker() {
	c.hoverClear.Trigger()
}

// EnterCard keeps the hover card open while the pointer is on it.
func (c *Controller) EnterCard() {
	c.hoverClear.Cancel()
}

// LeaveCard starts the grace period again.
func (c *Controller) LeaveCard() {
	c.hoverClear.Trigger()
}

// FlushHover runs a pending hover clear now.
func (c *Controller) FlushHover() {
	c.hoverClear.Flush()
}

// Expand opens the card for id; the camera follows through the store watcher.
func (c *Controller) Expand(id string) {
	c.store.SetExpanded(id)
}

// Close closes the expanded card.
func (c *Controller) Close() {
	c.store.SetExpanded("")
}

// ViewportChanged closes the expanded card when its marker no longer
// projects inside the map container. It reports whether the card closed.
func (c *Controller) ViewportChanged() bool {
	if !c.config().AutoClose {
		return false
	}
	v, ok := c.Expanded()
	if !ok {
		return false
	}
	pt, ok := projection.Project(c.surface, v.POI.Point())
	if !ok {
		return false
	}
	rect, ok := c.surface.ContainerRect()
	if !ok {
		return false
	}
	local := projection.Local(pt, rect)
	if local.X >= 0 && local.Y >= 0 && local.X <= rect.W && local.Y <= rect.H {
		return false
	}
	c.log.Debug("closing card scrolled out of view", zap.String("id", v.POI.ID))
	c.store.SetExpanded("")
	return true
}
