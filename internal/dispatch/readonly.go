package dispatch

import (
	"context"
	"fmt"

	"github.com/cityair/conductor/internal/cache"
	"github.com/cityair/conductor/internal/sensordata"
	"github.com/cityair/conductor/internal/session"
)

// executeRead runs a read-only tool. The backing call happens outside the
// session lock: the handler snapshots first, performs its IO, and only then
// touches the session to record the turn.
func (d *Dispatcher) executeRead(ctx context.Context, call Call, normalized map[string]any) (Result, error) {
	snap := d.deps.Sessions.Snapshot(call.SessionID)

	var payload any
	var err error
	switch call.Tool {
	case ToolSummaryStats:
		payload, err = d.summaryStatistics(ctx, snap)
	case ToolListOptions:
		payload, err = d.listFilterOptions(ctx, normalized)
	case ToolDocumentSearch:
		payload, err = d.documentSearch(ctx, normalized)
	case ToolPassageResolve:
		payload, err = d.resolvePassage(ctx, normalized)
	case ToolRefreshData:
		payload = d.refreshData()
	default:
		err = fmt.Errorf("no read handler for tool %q", call.Tool)
	}
	if err != nil {
		return Result{}, err
	}

	d.deps.Sessions.AppendTurn(call.SessionID, turnFor(call, normalized))
	return ok(payload, nil, d.deps.Sessions.Snapshot(call.SessionID)), nil
}

// summaryStatistics aggregates readings scoped to the session's current
// filters, through the cache.
func (d *Dispatcher) summaryStatistics(ctx context.Context, snap *session.Context) (any, error) {
	q := queryFromFilters(snap.Filters)
	key := cache.Key(ToolSummaryStats, queryParams(q))

	value, err := d.deps.Cache.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return d.deps.Sensors.Aggregate(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"filters":   snap.Filters,
		"summaries": value,
	}, nil
}

func (d *Dispatcher) listFilterOptions(ctx context.Context, args map[string]any) (any, error) {
	field := args["field"].(string)
	key := cache.Key(ToolListOptions, map[string]any{"field": field})

	value, err := d.deps.Cache.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return d.deps.Sensors.ListUniqueValues(ctx, field)
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"field": field, "values": value}, nil
}

func (d *Dispatcher) documentSearch(ctx context.Context, args map[string]any) (any, error) {
	query := args["query"].(string)
	topK := 0
	if v, ok := args["top_k"].(int); ok {
		topK = v
	}

	passages, err := d.deps.Documents.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return map[string]any{"query": query, "passages": passages}, nil
}

func (d *Dispatcher) resolvePassage(ctx context.Context, args map[string]any) (any, error) {
	passage, err := d.deps.Documents.Resolve(ctx, args["chunk_id"].(string))
	if err != nil {
		return nil, err
	}
	return map[string]any{"passage": passage}, nil
}

// refreshData drops every cached aggregate so the next read recomputes
// against freshly landed data.
func (d *Dispatcher) refreshData() any {
	d.deps.Cache.InvalidateAll()
	return map[string]any{"cache_invalidated": true}
}

// queryFromFilters translates session filters into a sensor data query.
func queryFromFilters(f session.Filters) sensordata.Query {
	return sensordata.Query{
		Boroughs:    f.Boroughs,
		Pollutant:   f.Pollutant,
		SensorTypes: f.SensorTypes,
		Year:        f.Year,
		Month:       f.Month,
		Averaging:   f.Averaging,
	}
}

// queryParams renders a query as the canonical parameter map used for cache
// keys. Unset dimensions are omitted so equivalent queries share an entry.
func queryParams(q sensordata.Query) map[string]any {
	params := make(map[string]any)
	if len(q.Boroughs) > 0 {
		params["boroughs"] = q.Boroughs
	}
	if q.Pollutant != "" {
		params["pollutant"] = q.Pollutant
	}
	if len(q.SensorTypes) > 0 {
		params["sensor_types"] = q.SensorTypes
	}
	if q.Year != nil {
		params["year"] = *q.Year
	}
	if q.Month != nil {
		params["month"] = *q.Month
	}
	if q.Averaging != "" {
		params["averaging"] = q.Averaging
	}
	return params
}
