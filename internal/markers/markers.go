// Package markers keeps a map layer's markers in sync with an entity list.
//
// Markers are keyed by entity id. Reconcile only creates markers for ids
// that appeared and removes markers for ids that disappeared; an unchanged
// id keeps its marker. Highlighting is a separate pass that never creates
// or removes markers.
package markers

import (
	"sync"

	"github.com/paulmach/orb"
)

// Kind selects the marker style.
type Kind string

const (
	KindHub        Kind = "hub"
	KindAttraction Kind = "attraction"
	KindRestaurant Kind = "restaurant"
)

// State is the visual emphasis of a marker.
type State int

const (
	Normal State = iota
	Hovered
	Expanded
)

func (s State) String() string {
	switch s {
	case Hovered:
		return "hovered"
	case Expanded:
		return "expanded"
	default:
		return "normal"
	}
}

// Marker describes one entity on the map.
type Marker struct {
	ID       string
	Kind     Kind
	Label    string
	Position orb.Point
}

// Handle is an opaque marker reference issued by a Surface.
type Handle uint64

// Surface is the part of the rendering surface that owns marker objects.
type Surface interface {
	AddMarker(layer string, m Marker) Handle
	RemoveMarker(layer string, h Handle)
	SetMarkerState(layer string, h Handle, s State)
}

type entry struct {
	handle Handle
	marker Marker
	state  State
}

// Layer is one reconciled set of markers, such as discovery results or
// planned POIs.
type Layer struct {
	name    string
	surface Surface

	mu      sync.Mutex
	entries map[string]*entry
}

// NewLayer creates an empty layer drawing on s.
func NewLayer(name string, s Surface) *Layer {
	return &Layer{name: name, surface: s, entries: make(map[string]*entry)}
}

// Diff counts the surface calls made by Reconcile.
type Diff struct {
	Added   int
	Removed int
}

// Reconcile brings the layer in line with list. A marker whose id is kept
// but whose position or kind changed is recreated; duplicate ids keep the
// last occurrence.
func (l *Layer) Reconcile(list []Marker) Diff {
	next := make(map[string]Marker, len(list))
	order := make([]string, 0, len(list))
	for _, m := range list {
		if _, dup := next[m.ID]; !dup {
			order = append(order, m.ID)
		}
		next[m.ID] = m
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var d Diff
	for id, e := range l.entries {
		m, keep := next[id]
		if keep && m.Position == e.marker.Position && m.Kind == e.marker.Kind {
			continue
		}
		l.surface.RemoveMarker(l.name, e.handle)
		delete(l.entries, id)
		d.Removed++
	}
	for _, id := range order {
		if _, ok := l.entries[id]; ok {
			continue
		}
		m := next[id]
		l.entries[id] = &entry{handle: l.surface.AddMarker(l.name, m), marker: m}
		d.Added++
	}
	return d
}

// Highlight marks the hovered and expanded ids; every other marker goes
// back to normal. Expanded wins when both name the same id.
func (l *Layer) Highlight(hovered, expanded string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for id, e := range l.entries {
		want := Normal
		switch id {
		case expanded:
			want = Expanded
		case hovered:
			want = Hovered
		}
		if want == e.state {
			continue
		}
		l.surface.SetMarkerState(l.name, e.handle, want)
		e.state = want
		changed++
	}
	return changed
}

// Clear removes every marker.
func (l *Layer) Clear() int {
	return l.Reconcile(nil).Removed
}

// Len returns the number of live markers.
func (l *Layer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
