package session

// FiltersPatch carries the filter fields a delta sets. Nil fields are left
// untouched, so a patch only ever names what the caller actually changed.
type FiltersPatch struct {
	Boroughs    []string `json:"boroughs,omitempty"`
	Pollutant   *string  `json:"pollutant,omitempty"`
	SensorTypes []string `json:"sensor_types,omitempty"`
	Year        *int     `json:"year,omitempty"`
	Month       *int     `json:"month,omitempty"`
	Averaging   *string  `json:"averaging,omitempty"`
}

// ViewportPatch carries viewport fields a delta sets.
type ViewportPatch struct {
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
	Zoom *float64 `json:"zoom,omitempty"`
}

// Delta is the minimal description of one state mutation. Applying the same
// delta twice yields the same context as applying it once.
type Delta struct {
	Filters      *FiltersPatch   `json:"filters,omitempty"`
	ClearFilters bool            `json:"clear_filters,omitempty"`
	Viewport     *ViewportPatch  `json:"viewport,omitempty"`
	Overlays     map[string]bool `json:"overlays,omitempty"`
}

// IsZero reports whether the delta changes nothing.
func (d *Delta) IsZero() bool {
	return d == nil ||
		(d.Filters == nil && !d.ClearFilters && d.Viewport == nil && len(d.Overlays) == 0)
}

// Apply mutates ctx in place according to the delta. ClearFilters runs before
// the filter patch, so a delta can reset and re-seed in one step.
func (d *Delta) Apply(ctx *Context) {
	if d == nil {
		return
	}
	if d.ClearFilters {
		ctx.Filters = Filters{}
	}
	if p := d.Filters; p != nil {
		if p.Boroughs != nil {
			ctx.Filters.Boroughs = p.Boroughs
		}
		if p.Pollutant != nil {
			ctx.Filters.Pollutant = *p.Pollutant
		}
		if p.SensorTypes != nil {
			ctx.Filters.SensorTypes = p.SensorTypes
		}
		if p.Year != nil {
			y := *p.Year
			ctx.Filters.Year = &y
		}
		if p.Month != nil {
			m := *p.Month
			ctx.Filters.Month = &m
		}
		if p.Averaging != nil {
			ctx.Filters.Averaging = *p.Averaging
		}
	}
	if p := d.Viewport; p != nil {
		if p.Lat != nil {
			ctx.Viewport.Lat = *p.Lat
		}
		if p.Lon != nil {
			ctx.Viewport.Lon = *p.Lon
		}
		if p.Zoom != nil {
			ctx.Viewport.Zoom = *p.Zoom
		}
	}
	for name, on := range d.Overlays {
		ctx.Overlays[name] = on
	}
}
