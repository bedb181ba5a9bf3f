package dispatch

import (
	"fmt"
	"slices"

	"github.com/cityair/conductor/internal/session"
)

// executeMutation computes a delta under the session lock, applies it, and
// records the turn. The delta names only fields whose value actually
// changes, so re-applying it to the resulting context is a no-op.
func (d *Dispatcher) executeMutation(call Call, normalized map[string]any) (Result, error) {
	delta, snap, err := d.deps.Sessions.Mutate(call.SessionID, turnFor(call, normalized),
		func(sc *session.Context) (*session.Delta, error) {
			return computeDelta(call.Tool, sc, normalized)
		})
	if err != nil {
		return Result{}, err
	}

	var payload any
	switch call.Tool {
	case ToolUpdateFilters, ToolClearFilters:
		payload = map[string]any{"filters": snap.Filters}
	case ToolSetViewport:
		payload = map[string]any{"viewport": snap.Viewport}
	case ToolToggleOverlay:
		payload = map[string]any{"overlays": snap.Overlays}
	}

	return ok(payload, delta, snap), nil
}

// computeDelta builds the minimal delta for a state-mutating tool against
// the session's current context. Runs under the session lock; must not
// perform IO.
func computeDelta(tool string, sc *session.Context, args map[string]any) (*session.Delta, error) {
	switch tool {
	case ToolUpdateFilters:
		return deltaUpdateFilters(sc, args), nil
	case ToolClearFilters:
		return deltaClearFilters(sc), nil
	case ToolSetViewport:
		return deltaSetViewport(sc, args), nil
	case ToolToggleOverlay:
		return deltaToggleOverlay(sc, args), nil
	default:
		return nil, fmt.Errorf("no mutation handler for tool %q", tool)
	}
}

func deltaUpdateFilters(sc *session.Context, args map[string]any) *session.Delta {
	patch := &session.FiltersPatch{}
	changed := false

	if v, ok := args["boroughs"].([]string); ok && !slices.Equal(v, sc.Filters.Boroughs) {
		patch.Boroughs = v
		changed = true
	}
	if v, ok := args["pollutant"].(string); ok && v != sc.Filters.Pollutant {
		patch.Pollutant = &v
		changed = true
	}
	if v, ok := args["sensor_types"].([]string); ok && !slices.Equal(v, sc.Filters.SensorTypes) {
		patch.SensorTypes = v
		changed = true
	}
	if v, ok := args["year"].(int); ok && (sc.Filters.Year == nil || *sc.Filters.Year != v) {
		patch.Year = &v
		changed = true
	}
	if v, ok := args["month"].(int); ok && (sc.Filters.Month == nil || *sc.Filters.Month != v) {
		patch.Month = &v
		changed = true
	}
	if v, ok := args["averaging"].(string); ok && v != sc.Filters.Averaging {
		patch.Averaging = &v
		changed = true
	}

	if !changed {
		return &session.Delta{}
	}
	return &session.Delta{Filters: patch}
}

func deltaClearFilters(sc *session.Context) *session.Delta {
	if filtersEmpty(sc.Filters) {
		return &session.Delta{}
	}
	return &session.Delta{ClearFilters: true}
}

func filtersEmpty(f session.Filters) bool {
	return len(f.Boroughs) == 0 && f.Pollutant == "" && len(f.SensorTypes) == 0 &&
		f.Year == nil && f.Month == nil && f.Averaging == ""
}

func deltaSetViewport(sc *session.Context, args map[string]any) *session.Delta {
	patch := &session.ViewportPatch{}
	changed := false

	if v, ok := args["lat"].(float64); ok && v != sc.Viewport.Lat {
		patch.Lat = &v
		changed = true
	}
	if v, ok := args["lon"].(float64); ok && v != sc.Viewport.Lon {
		patch.Lon = &v
		changed = true
	}
	if v, ok := args["zoom"].(float64); ok && v != sc.Viewport.Zoom {
		patch.Zoom = &v
		changed = true
	}

	if !changed {
		return &session.Delta{}
	}
	return &session.Delta{Viewport: patch}
}

func deltaToggleOverlay(sc *session.Context, args map[string]any) *session.Delta {
	name := args["overlay"].(string)

	target := !sc.Overlays[name]
	if v, ok := args["visible"].(bool); ok {
		target = v
	}

	if sc.Overlays[name] == target {
		return &session.Delta{}
	}
	return &session.Delta{Overlays: map[string]bool{name: target}}
}
