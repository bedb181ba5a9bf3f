package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cityair/conductor/internal/cache"
	"github.com/cityair/conductor/internal/docsearch"
	"github.com/cityair/conductor/internal/export"
	"github.com/cityair/conductor/internal/gate"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/sensordata"
	"github.com/cityair/conductor/internal/session"
)

// mockSensors serves canned data and records what it was asked.
type mockSensors struct {
	aggregateCalls atomic.Int32
	lastQuery      sensordata.Query
	summaries      []sensordata.Summary
	values         []string
	rows           []sensordata.Row
	blockUntilDone bool
}

func (m *mockSensors) Aggregate(ctx context.Context, q sensordata.Query) ([]sensordata.Summary, error) {
	m.aggregateCalls.Add(1)
	m.lastQuery = q
	if m.blockUntilDone {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.summaries, nil
}

func (m *mockSensors) ListUniqueValues(ctx context.Context, field string) ([]string, error) {
	return m.values, nil
}

func (m *mockSensors) StreamRows(ctx context.Context, q sensordata.Query, limit int, fn func(sensordata.Row) error) error {
	m.lastQuery = q
	for i, r := range m.rows {
		if i >= limit {
			break
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// mockDocs serves canned passages.
type mockDocs struct {
	passages  []docsearch.Passage
	searchErr error
}

func (m *mockDocs) Search(ctx context.Context, query string, topK int) ([]docsearch.Passage, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if m.passages == nil {
		return []docsearch.Passage{}, nil
	}
	return m.passages, nil
}

func (m *mockDocs) Resolve(ctx context.Context, chunkID string) (docsearch.Passage, error) {
	for _, p := range m.passages {
		if p.ChunkID == chunkID {
			return p, nil
		}
	}
	return docsearch.Passage{}, fmt.Errorf("chunk %q: %w", chunkID, docsearch.ErrUnknownChunk)
}

type testEnv struct {
	dispatcher *Dispatcher
	sensors    *mockSensors
	docs       *mockDocs
	sessions   *session.Store
	spool      *export.Spool
}

func newTestEnv(t *testing.T, quota int, timeout time.Duration) *testEnv {
	t.Helper()

	registry, err := BuildRegistry()
	if err != nil {
		t.Fatalf("BuildRegistry() = %v", err)
	}

	spool, err := export.NewSpool(t.TempDir(), time.Hour, log.NewNop())
	if err != nil {
		t.Fatalf("NewSpool() = %v", err)
	}

	sensors := &mockSensors{}
	docs := &mockDocs{}
	sessions := session.NewStore(10, 30*time.Minute, log.NewNop())

	d, err := New(Deps{
		Registry:  registry,
		Sessions:  sessions,
		Gate:      gate.New(quota, []string{"ops"}, log.NewNop()),
		Cache:     cache.New(5*time.Minute, log.NewNop()),
		Sensors:   sensors,
		Documents: docs,
		Exports:   spool,
	}, Options{Timeout: timeout, MaxExportRows: 1000}, log.NewNop())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	return &testEnv{dispatcher: d, sensors: sensors, docs: docs, sessions: sessions, spool: spool}
}

func call(tool string, args map[string]any) Call {
	return Call{SessionID: "s1", CallerID: "alice", Tool: tool, Arguments: args}
}

func TestDispatch_FilterAccumulation(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	ctx := context.Background()

	res := env.dispatcher.Dispatch(ctx, call(ToolUpdateFilters, map[string]any{
		"pollutant": "NO2", "year": float64(2022),
	}))
	if res.Status != "ok" {
		t.Fatalf("first call failed: %+v", res.Error)
	}

	res = env.dispatcher.Dispatch(ctx, call(ToolUpdateFilters, map[string]any{
		"boroughs": []any{"Richmond"},
	}))
	if res.Status != "ok" {
		t.Fatalf("second call failed: %+v", res.Error)
	}

	f := res.ContextSnapshot.Filters
	if f.Pollutant != "NO2" {
		t.Errorf("Pollutant = %q, want NO2", f.Pollutant)
	}
	if f.Year == nil || *f.Year != 2022 {
		t.Errorf("Year = %v, want 2022", f.Year)
	}
	if len(f.Boroughs) != 1 || f.Boroughs[0] != "Richmond" {
		t.Errorf("Boroughs = %v, want [Richmond]", f.Boroughs)
	}

	// The second delta names only the field that changed.
	if res.ContextDelta == nil || res.ContextDelta.Filters == nil {
		t.Fatal("second call returned no filter delta")
	}
	if res.ContextDelta.Filters.Pollutant != nil || res.ContextDelta.Filters.Year != nil {
		t.Errorf("delta includes unchanged fields: %+v", res.ContextDelta.Filters)
	}
}

func TestDispatch_DeltaIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)

	res := env.dispatcher.Dispatch(context.Background(), call(ToolSetViewport, map[string]any{
		"lat": 51.41, "lon": -0.19, "zoom": 13.0,
	}))
	if res.Status != "ok" {
		t.Fatalf("Dispatch() failed: %+v", res.Error)
	}

	before := res.ContextSnapshot.Clone()
	res.ContextDelta.Apply(before)
	if before.Viewport != res.ContextSnapshot.Viewport {
		t.Errorf("re-applying delta changed viewport: %+v vs %+v",
			before.Viewport, res.ContextSnapshot.Viewport)
	}
}

func TestDispatch_UnknownTool_NoSideEffects(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)

	res := env.dispatcher.Dispatch(context.Background(), call("does_not_exist", nil))

	if res.Status != "error" {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.Error.Kind != KindUnknownTool {
		t.Errorf("kind = %s, want UnknownTool", res.Error.Kind)
	}
	if res.ContextDelta != nil {
		t.Error("failed call carried a delta")
	}
	if len(res.ContextSnapshot.History) != 0 {
		t.Errorf("failed call recorded history: %v", res.ContextSnapshot.History)
	}
}

func TestDispatch_ValidationFailure_NoSideEffects(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	ctx := context.Background()

	env.dispatcher.Dispatch(ctx, call(ToolUpdateFilters, map[string]any{"pollutant": "NO2"}))

	res := env.dispatcher.Dispatch(ctx, call(ToolSetViewport, map[string]any{"lat": 51.0}))
	if res.Error == nil || res.Error.Kind != KindMissingRequiredParameter {
		t.Fatalf("error = %+v, want MissingRequiredParameter", res.Error)
	}

	snap := env.sessions.Snapshot("s1")
	if snap.Viewport.Lat != session.DefaultLat {
		t.Errorf("failed call moved the viewport: %+v", snap.Viewport)
	}
	if len(snap.History) != 1 {
		t.Errorf("history = %v, want only the successful call", snap.History)
	}
}

func TestDispatch_RateLimited_On21stCall(t *testing.T) {
	env := newTestEnv(t, 20, time.Second)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		res := env.dispatcher.Dispatch(ctx, call(ToolClearFilters, nil))
		if res.Status != "ok" {
			t.Fatalf("call %d failed: %+v", i+1, res.Error)
		}
	}

	res := env.dispatcher.Dispatch(ctx, call(ToolClearFilters, nil))
	if res.Error == nil || res.Error.Kind != KindRateLimited {
		t.Fatalf("call 21 error = %+v, want RateLimited", res.Error)
	}
}

func TestDispatch_AdminTool(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	ctx := context.Background()

	res := env.dispatcher.Dispatch(ctx, call(ToolRefreshData, nil))
	if res.Error == nil || res.Error.Kind != KindForbidden {
		t.Fatalf("error = %+v, want Forbidden", res.Error)
	}

	adminCall := Call{SessionID: "s1", CallerID: "ops", Tool: ToolRefreshData}
	res = env.dispatcher.Dispatch(ctx, adminCall)
	if res.Status != "ok" {
		t.Fatalf("admin call failed: %+v", res.Error)
	}
}

func TestDispatch_SummaryStatistics_Cached(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	env.sensors.summaries = []sensordata.Summary{
		{Borough: "Richmond", Pollutant: "NO2", Readings: 120, Mean: 31.4},
	}
	ctx := context.Background()

	env.dispatcher.Dispatch(ctx, call(ToolUpdateFilters, map[string]any{"pollutant": "NO2"}))

	for i := 0; i < 3; i++ {
		res := env.dispatcher.Dispatch(ctx, call(ToolSummaryStats, nil))
		if res.Status != "ok" {
			t.Fatalf("call %d failed: %+v", i+1, res.Error)
		}
	}

	if n := env.sensors.aggregateCalls.Load(); n != 1 {
		t.Errorf("Aggregate ran %d times for identical queries, want 1", n)
	}
	if env.sensors.lastQuery.Pollutant != "NO2" {
		t.Errorf("query pollutant = %q, want NO2", env.sensors.lastQuery.Pollutant)
	}

	// Changing the filters changes the cache key.
	env.dispatcher.Dispatch(ctx, call(ToolUpdateFilters, map[string]any{"year": float64(2022)}))
	env.dispatcher.Dispatch(ctx, call(ToolSummaryStats, nil))
	if n := env.sensors.aggregateCalls.Load(); n != 2 {
		t.Errorf("Aggregate ran %d times after filter change, want 2", n)
	}
}

func TestDispatch_RefreshData_InvalidatesCache(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	ctx := context.Background()

	env.dispatcher.Dispatch(ctx, call(ToolSummaryStats, nil))
	env.dispatcher.Dispatch(ctx, Call{SessionID: "s1", CallerID: "ops", Tool: ToolRefreshData})
	env.dispatcher.Dispatch(ctx, call(ToolSummaryStats, nil))

	if n := env.sensors.aggregateCalls.Load(); n != 2 {
		t.Errorf("Aggregate ran %d times across a refresh, want 2", n)
	}
}

func TestDispatch_DocumentSearch_EmptyIsOK(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)

	res := env.dispatcher.Dispatch(context.Background(), call(ToolDocumentSearch, map[string]any{
		"query": "ulez impact",
	}))
	if res.Status != "ok" {
		t.Fatalf("Dispatch() failed: %+v", res.Error)
	}

	payload := res.Result.(map[string]any)
	passages := payload["passages"].([]docsearch.Passage)
	if len(passages) != 0 {
		t.Errorf("passages = %v, want empty", passages)
	}
}

func TestDispatch_PassageResolve_UnknownChunk(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)

	res := env.dispatcher.Dispatch(context.Background(), call(ToolPassageResolve, map[string]any{
		"chunk_id": uuid.NewString(),
	}))
	if res.Error == nil || res.Error.Kind != KindUnknownChunk {
		t.Fatalf("error = %+v, want UnknownChunk", res.Error)
	}
}

func TestDispatch_ToggleOverlay(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	ctx := context.Background()

	res := env.dispatcher.Dispatch(ctx, call(ToolToggleOverlay, map[string]any{
		"overlay": session.OverlayHeatmap,
	}))
	if res.Status != "ok" {
		t.Fatalf("Dispatch() failed: %+v", res.Error)
	}
	if !res.ContextSnapshot.Overlays[session.OverlayHeatmap] {
		t.Error("heatmap should be visible after toggle from hidden")
	}

	// Explicit visibility matching current state yields an empty delta.
	res = env.dispatcher.Dispatch(ctx, call(ToolToggleOverlay, map[string]any{
		"overlay": session.OverlayHeatmap, "visible": true,
	}))
	if res.Status != "ok" {
		t.Fatalf("Dispatch() failed: %+v", res.Error)
	}
	if !res.ContextDelta.IsZero() {
		t.Errorf("no-op toggle produced delta %+v", res.ContextDelta)
	}
}

func TestDispatch_ClearFilters(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	ctx := context.Background()

	env.dispatcher.Dispatch(ctx, call(ToolUpdateFilters, map[string]any{
		"pollutant": "PM2.5", "boroughs": []any{"Merton"},
	}))
	res := env.dispatcher.Dispatch(ctx, call(ToolClearFilters, nil))
	if res.Status != "ok" {
		t.Fatalf("Dispatch() failed: %+v", res.Error)
	}

	f := res.ContextSnapshot.Filters
	if f.Pollutant != "" || len(f.Boroughs) != 0 {
		t.Errorf("filters not cleared: %+v", f)
	}
	if !res.ContextDelta.ClearFilters {
		t.Error("delta should carry clear_filters")
	}
}

func TestDispatch_Export_StreamsCSV(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	env.sensors.rows = []sensordata.Row{
		{SiteCode: "WA001", SiteName: "Putney High St", Borough: "Wandsworth",
			Lat: 51.46, Lon: -0.21, SensorType: "Automatic", Pollutant: "NO2",
			Year: 2022, Month: 6, Value: 38.2, AveragingPeriod: "Month"},
		{SiteCode: "RI002", SiteName: "Kew Rd", Borough: "Richmond",
			Lat: 51.48, Lon: -0.29, SensorType: "Clarity", Pollutant: "NO2",
			Year: 2022, Month: 6, Value: 24.7, AveragingPeriod: "Month"},
	}
	ctx := context.Background()

	env.dispatcher.Dispatch(ctx, call(ToolUpdateFilters, map[string]any{"pollutant": "NO2"}))
	res := env.dispatcher.Dispatch(ctx, call(ToolExportView, nil))
	if res.Status != "ok" {
		t.Fatalf("export failed: %+v", res.Error)
	}

	payload := res.Result.(map[string]any)
	handle := payload["export"].(export.Handle)
	if handle.Rows != 2 {
		t.Errorf("handle rows = %d, want 2", handle.Rows)
	}
	if env.sensors.lastQuery.Pollutant != "NO2" {
		t.Errorf("export ignored current filters: %+v", env.sensors.lastQuery)
	}

	r, _, err := env.spool.Open(handle.ID)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("export has %d lines, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[1], "WA001,Putney High St,Wandsworth") {
		t.Errorf("unexpected first row: %q", lines[1])
	}
}

func TestDispatch_Export_HonorsLimit(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	for i := 0; i < 10; i++ {
		env.sensors.rows = append(env.sensors.rows, sensordata.Row{
			SiteCode: fmt.Sprintf("WA%03d", i), Borough: "Wandsworth",
			Pollutant: "NO2", Year: 2022, Month: 1, Value: float64(i),
		})
	}

	res := env.dispatcher.Dispatch(context.Background(), call(ToolExportView, map[string]any{
		"limit": float64(3),
	}))
	if res.Status != "ok" {
		t.Fatalf("export failed: %+v", res.Error)
	}

	handle := res.Result.(map[string]any)["export"].(export.Handle)
	if handle.Rows != 3 {
		t.Errorf("handle rows = %d, want 3", handle.Rows)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	env := newTestEnv(t, 100, 50*time.Millisecond)
	env.sensors.blockUntilDone = true

	res := env.dispatcher.Dispatch(context.Background(), call(ToolSummaryStats, nil))
	if res.Error == nil || res.Error.Kind != KindTimeout {
		t.Fatalf("error = %+v, want Timeout", res.Error)
	}
}

func TestDispatch_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, 100, time.Second)
	env.docs.searchErr = errors.New("index unreachable")

	res := env.dispatcher.Dispatch(context.Background(), call(ToolDocumentSearch, map[string]any{
		"query": "no2 trends",
	}))
	if res.Error == nil || res.Error.Kind != KindUpstreamUnavailable {
		t.Fatalf("error = %+v, want UpstreamUnavailable", res.Error)
	}
}

func TestClassify_Unrecognized(t *testing.T) {
	e := classify(errors.New("connection refused"))
	if e.Kind != KindUpstreamUnavailable {
		t.Errorf("kind = %s, want UpstreamUnavailable", e.Kind)
	}
}
