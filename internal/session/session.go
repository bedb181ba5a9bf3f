// Package session holds per-conversation dashboard state: active filters,
// map viewport, overlay toggles, and a bounded history of recent tool calls.
//
// Sessions live in memory. Each session serializes its own mutations, so two
// concurrent tool calls against the same session never interleave partial
// updates. Different sessions do not contend with each other.
package session

import (
	"slices"
	"time"
)

// Default viewport centered over the monitored boroughs.
const (
	DefaultLat  = 51.445
	DefaultLon  = -0.22
	DefaultZoom = 11.3
)

// Overlay names recognized by toggle operations.
const (
	OverlaySensorLabels      = "sensor_labels"
	OverlayBoroughBoundaries = "borough_boundaries"
	OverlayHeatmap           = "heatmap"
	OverlayDataTable         = "data_table"
)

// KnownOverlays lists every overlay a session tracks, in display order.
var KnownOverlays = []string{
	OverlaySensorLabels,
	OverlayBoroughBoundaries,
	OverlayHeatmap,
	OverlayDataTable,
}

// Filters is the active data selection. Nil pointer fields and empty slices
// mean "no restriction" on that dimension.
type Filters struct {
	Boroughs    []string `json:"boroughs,omitempty"`
	Pollutant   string   `json:"pollutant,omitempty"`
	SensorTypes []string `json:"sensor_types,omitempty"`
	Year        *int     `json:"year,omitempty"`
	Month       *int     `json:"month,omitempty"`
	Averaging   string   `json:"averaging,omitempty"`
}

// Viewport is the map camera position.
type Viewport struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom float64 `json:"zoom"`
}

// Turn records one completed tool call in a session's history.
type Turn struct {
	Tool       string    `json:"tool"`
	Params     string    `json:"params"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Context is the full conversational state of one session.
type Context struct {
	ID         string          `json:"id"`
	Filters    Filters         `json:"filters"`
	Viewport   Viewport        `json:"viewport"`
	Overlays   map[string]bool `json:"overlays"`
	History    []Turn          `json:"history"`
	CreatedAt  time.Time       `json:"created_at"`
	LastActive time.Time       `json:"last_active"`
}

// NewContext returns a blank context with the default viewport, every overlay
// hidden, and no filters.
func NewContext(id string, now time.Time) *Context {
	overlays := make(map[string]bool, len(KnownOverlays))
	for _, name := range KnownOverlays {
		overlays[name] = false
	}
	return &Context{
		ID:         id,
		Viewport:   Viewport{Lat: DefaultLat, Lon: DefaultLon, Zoom: DefaultZoom},
		Overlays:   overlays,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Clone returns a deep copy so callers can read a snapshot without holding
// the session lock.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Filters.Boroughs = slices.Clone(c.Filters.Boroughs)
	cp.Filters.SensorTypes = slices.Clone(c.Filters.SensorTypes)
	if c.Filters.Year != nil {
		y := *c.Filters.Year
		cp.Filters.Year = &y
	}
	if c.Filters.Month != nil {
		m := *c.Filters.Month
		cp.Filters.Month = &m
	}
	cp.Overlays = make(map[string]bool, len(c.Overlays))
	for k, v := range c.Overlays {
		cp.Overlays[k] = v
	}
	cp.History = slices.Clone(c.History)
	return &cp
}
