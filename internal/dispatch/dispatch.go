// Package dispatch executes tool calls. Every call walks the same state
// machine: validation against the schema registry, then the rate and access
// gate, then execution routed by the tool's side-effect classification.
// Failures at any stage leave the session untouched.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cityair/conductor/internal/cache"
	"github.com/cityair/conductor/internal/docsearch"
	"github.com/cityair/conductor/internal/export"
	"github.com/cityair/conductor/internal/gate"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
	"github.com/cityair/conductor/internal/sensordata"
	"github.com/cityair/conductor/internal/session"
)

// SensorReader is the slice of the sensor data client the dispatcher uses.
type SensorReader interface {
	Aggregate(ctx context.Context, q sensordata.Query) ([]sensordata.Summary, error)
	ListUniqueValues(ctx context.Context, field string) ([]string, error)
	StreamRows(ctx context.Context, q sensordata.Query, limit int, fn func(sensordata.Row) error) error
}

// DocumentSearcher is the slice of the document search adapter the
// dispatcher uses.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]docsearch.Passage, error)
	Resolve(ctx context.Context, chunkID string) (docsearch.Passage, error)
}

// Call is one inbound tool invocation.
type Call struct {
	SessionID string         `json:"session_id"`
	CallerID  string         `json:"caller_id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the outbound envelope for one tool invocation.
type Result struct {
	Status          string           `json:"status"`
	Result          any              `json:"result"`
	Error           *Error           `json:"error"`
	ContextDelta    *session.Delta   `json:"context_delta"`
	ContextSnapshot *session.Context `json:"context_snapshot"`
}

// Deps are the backing components a dispatcher executes against.
type Deps struct {
	Registry  *schema.Registry
	Sessions  *session.Store
	Gate      *gate.Gate
	Cache     *cache.Cache
	Sensors   SensorReader
	Documents DocumentSearcher
	Exports   *export.Spool
}

// Options tune per-call behavior.
type Options struct {
	// Timeout bounds each execution step.
	Timeout time.Duration
	// MaxExportRows caps an export when the call does not request a limit.
	MaxExportRows int
}

// Dispatcher routes validated, authorized tool calls to their handlers.
// Safe for concurrent use; per-session ordering is enforced by the session
// store's locks.
type Dispatcher struct {
	deps   Deps
	opts   Options
	logger log.Logger
}

// New creates a dispatcher.
func New(deps Deps, opts Options, logger log.Logger) (*Dispatcher, error) {
	if deps.Registry == nil || deps.Sessions == nil || deps.Gate == nil {
		return nil, fmt.Errorf("registry, sessions, and gate are required")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if opts.MaxExportRows <= 0 {
		return nil, fmt.Errorf("max export rows must be positive")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Dispatcher{deps: deps, opts: opts, logger: logger}, nil
}

// Dispatch runs one tool call through validation, authorization, and
// execution. It always returns a complete envelope; errors surface in the
// envelope's error field, never as a Go error to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) Result {
	started := time.Now()

	normalized, err := d.deps.Registry.Validate(call.Tool, call.Arguments)
	if err != nil {
		return d.fail(call, err, started)
	}

	def := d.deps.Registry.Get(call.Tool)
	if err := d.deps.Gate.Check(call.CallerID, def); err != nil {
		return d.fail(call, err, started)
	}

	execCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	var res Result
	var execErr error
	switch def.Effect {
	case schema.EffectStateMutating:
		res, execErr = d.executeMutation(call, normalized)
	case schema.EffectReadOnly:
		res, execErr = d.executeRead(execCtx, call, normalized)
	case schema.EffectExport:
		res, execErr = d.executeExport(execCtx, call, normalized)
	default:
		execErr = fmt.Errorf("tool %q has no effect classification", call.Tool)
	}
	if execErr != nil {
		return d.fail(call, execErr, started)
	}

	d.logger.Info("tool call succeeded",
		"tool", call.Tool,
		"session_id", call.SessionID,
		"caller", call.CallerID,
		"duration", time.Since(started),
	)
	return res
}

// fail builds an error envelope. The session's state and history are exactly
// as they were before the call.
func (d *Dispatcher) fail(call Call, err error, started time.Time) Result {
	werr := classify(err)
	d.logger.Warn("tool call failed",
		"tool", call.Tool,
		"session_id", call.SessionID,
		"caller", call.CallerID,
		"kind", werr.Kind,
		"error", err,
		"duration", time.Since(started),
	)
	return Result{
		Status:          "error",
		Error:           werr,
		ContextSnapshot: d.deps.Sessions.Snapshot(call.SessionID),
	}
}

// ok builds a success envelope.
func ok(payload any, delta *session.Delta, snap *session.Context) Result {
	return Result{
		Status:          "ok",
		Result:          payload,
		ContextDelta:    delta,
		ContextSnapshot: snap,
	}
}

// turnFor records the call in the session history.
func turnFor(call Call, normalized map[string]any) session.Turn {
	params := ""
	if len(normalized) > 0 {
		if encoded, err := json.Marshal(normalized); err == nil {
			params = string(encoded)
		}
	}
	return session.Turn{Tool: call.Tool, Params: params, OccurredAt: time.Now()}
}
