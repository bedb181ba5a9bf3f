package dispatch

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/cityair/conductor/internal/sensordata"
)

var exportHeader = []string{
	"site_code", "site_name", "borough", "lat", "lon",
	"sensor_type", "pollutant", "year", "month", "value", "averaging_period",
}

// executeExport streams the readings matching the session's current filters
// to a spool file and returns a download handle. Rows pass through one at a
// time; the full extract is never held in memory.
func (d *Dispatcher) executeExport(ctx context.Context, call Call, normalized map[string]any) (Result, error) {
	snap := d.deps.Sessions.Snapshot(call.SessionID)
	q := queryFromFilters(snap.Filters)

	limit := d.opts.MaxExportRows
	if v, ok := normalized["limit"].(int); ok && v < limit {
		limit = v
	}

	w, err := d.deps.Exports.Create("air_quality_readings.csv")
	if err != nil {
		return Result{}, fmt.Errorf("creating export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		_ = w.Abort()
		return Result{}, fmt.Errorf("writing export header: %w", err)
	}

	rows := 0
	err = d.deps.Sensors.StreamRows(ctx, q, limit, func(r sensordata.Row) error {
		rows++
		return cw.Write([]string{
			r.SiteCode, r.SiteName, r.Borough,
			strconv.FormatFloat(r.Lat, 'f', -1, 64),
			strconv.FormatFloat(r.Lon, 'f', -1, 64),
			r.SensorType, r.Pollutant,
			strconv.Itoa(r.Year), strconv.Itoa(r.Month),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			r.AveragingPeriod,
		})
	})
	if err != nil {
		_ = w.Abort()
		return Result{}, fmt.Errorf("streaming export rows: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = w.Abort()
		return Result{}, fmt.Errorf("flushing export: %w", err)
	}

	handle, err := w.Commit(rows)
	if err != nil {
		return Result{}, fmt.Errorf("committing export: %w", err)
	}

	d.deps.Sessions.AppendTurn(call.SessionID, turnFor(call, normalized))
	payload := map[string]any{"export": handle, "filters": snap.Filters}
	return ok(payload, nil, d.deps.Sessions.Snapshot(call.SessionID)), nil
}
