package dispatch

import (
	"fmt"

	"github.com/cityair/conductor/internal/schema"
	"github.com/cityair/conductor/internal/session"
)

// Tool names.
const (
	ToolUpdateFilters  = "update_filters"
	ToolClearFilters   = "clear_filters"
	ToolSetViewport    = "set_viewport"
	ToolToggleOverlay  = "toggle_overlay"
	ToolSummaryStats   = "summary_statistics"
	ToolListOptions    = "list_filter_options"
	ToolDocumentSearch = "document_search"
	ToolPassageResolve = "document_passage_resolve"
	ToolExportView     = "export_current_view"
	ToolRefreshData    = "refresh_data"
)

// Allowed filter values, matching the monitored deployment.
var (
	boroughValues   = []string{"Wandsworth", "Richmond", "Merton"}
	pollutantValues = []string{"NO2", "PM2.5", "PM10", "O3"}
	sensorValues    = []string{"Clarity", "DT", "Automatic"}
	averagingValues = []string{"Annual", "Month"}
	listableValues  = []string{"borough", "pollutant", "sensor_type", "year", "averaging"}
)

// BuildRegistry assembles the full tool catalogue. Called once at startup;
// the resulting registry is read-only afterwards.
func BuildRegistry() (*schema.Registry, error) {
	r := schema.NewRegistry()

	defs := []schema.Definition{
		{
			Name:        ToolUpdateFilters,
			Description: "Set one or more data filters. Unset filters keep their current value.",
			Effect:      schema.EffectStateMutating,
			Params: []schema.ParamSpec{
				{Name: "boroughs", Type: schema.TypeStringArray, Enum: boroughValues,
					Description: "Boroughs to include."},
				{Name: "pollutant", Type: schema.TypeString, Enum: pollutantValues,
					Description: "Pollutant to display."},
				{Name: "sensor_types", Type: schema.TypeStringArray, Enum: sensorValues,
					Description: "Sensor networks to include."},
				{Name: "year", Type: schema.TypeInteger, Min: schema.Float(2000), Max: schema.Float(2100),
					Description: "Measurement year."},
				{Name: "month", Type: schema.TypeInteger, Min: schema.Float(1), Max: schema.Float(12),
					Description: "Measurement month (1-12)."},
				{Name: "averaging", Type: schema.TypeString, Enum: averagingValues,
					Description: "Averaging period for displayed values."},
			},
		},
		{
			Name:        ToolClearFilters,
			Description: "Reset every filter to its unset state.",
			Effect:      schema.EffectStateMutating,
		},
		{
			Name:        ToolSetViewport,
			Description: "Move the map camera.",
			Effect:      schema.EffectStateMutating,
			Params: []schema.ParamSpec{
				{Name: "lat", Type: schema.TypeNumber, Required: true, Min: schema.Float(-90), Max: schema.Float(90),
					Description: "Center latitude."},
				{Name: "lon", Type: schema.TypeNumber, Required: true, Min: schema.Float(-180), Max: schema.Float(180),
					Description: "Center longitude."},
				{Name: "zoom", Type: schema.TypeNumber, Min: schema.Float(1), Max: schema.Float(20),
					Description: "Zoom level."},
			},
		},
		{
			Name:        ToolToggleOverlay,
			Description: "Show or hide a map overlay. Without an explicit visibility, flips the current state.",
			Effect:      schema.EffectStateMutating,
			Params: []schema.ParamSpec{
				{Name: "overlay", Type: schema.TypeString, Required: true, Enum: session.KnownOverlays,
					Description: "Overlay name."},
				{Name: "visible", Type: schema.TypeBoolean,
					Description: "Explicit visibility. Omit to toggle."},
			},
		},
		{
			Name:        ToolSummaryStats,
			Description: "Aggregate statistics for the readings matching the session's current filters.",
			Effect:      schema.EffectReadOnly,
		},
		{
			Name:        ToolListOptions,
			Description: "List the distinct values available for one filter field.",
			Effect:      schema.EffectReadOnly,
			Params: []schema.ParamSpec{
				{Name: "field", Type: schema.TypeString, Required: true, Enum: listableValues,
					Description: "Filter field to enumerate."},
			},
		},
		{
			Name:        ToolDocumentSearch,
			Description: "Semantic search over indexed monitoring reports and documentation.",
			Effect:      schema.EffectReadOnly,
			Params: []schema.ParamSpec{
				{Name: "query", Type: schema.TypeString, Required: true,
					Description: "Natural-language search query."},
				{Name: "top_k", Type: schema.TypeInteger, Min: schema.Float(1), Max: schema.Float(20),
					Description: "Maximum passages to return (default 5)."},
			},
		},
		{
			Name:        ToolPassageResolve,
			Description: "Fetch the exact text and provenance for a previously returned passage.",
			Effect:      schema.EffectReadOnly,
			Params: []schema.ParamSpec{
				{Name: "chunk_id", Type: schema.TypeString, Required: true,
					Description: "Chunk identifier from an earlier document_search result."},
			},
		},
		{
			Name:        ToolExportView,
			Description: "Export the readings matching the current filters as a CSV download.",
			Effect:      schema.EffectExport,
			Params: []schema.ParamSpec{
				{Name: "limit", Type: schema.TypeInteger, Min: schema.Float(1), Max: schema.Float(100000),
					Description: "Maximum rows to export (default from server config)."},
			},
		},
		{
			Name:        ToolRefreshData,
			Description: "Signal that new data has landed and cached aggregates must be recomputed.",
			Role:        schema.RoleAdmin,
			Effect:      schema.EffectReadOnly,
		},
	}

	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, fmt.Errorf("registering %s: %w", def.Name, err)
		}
	}
	return r, nil
}
