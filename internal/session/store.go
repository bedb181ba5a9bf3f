package session

import (
	"sync"
	"time"

	"github.com/cityair/conductor/internal/log"
)

// Store keeps all live session contexts in memory.
//
// The store-level mutex only guards the session map. Each session carries its
// own lock, so mutations on one session never block work on another.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry

	historySize int
	idleAfter   time.Duration
	now         func() time.Time
	logger      log.Logger
}

type entry struct {
	mu  sync.Mutex
	ctx *Context
}

// NewStore creates a store. historySize bounds the per-session turn history;
// idleAfter is how long a session may sit untouched before Expire drops it.
func NewStore(historySize int, idleAfter time.Duration, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		sessions:    make(map[string]*entry),
		historySize: historySize,
		idleAfter:   idleAfter,
		now:         time.Now,
		logger:      logger,
	}
}

// get returns the entry for id, creating a blank context on first use.
func (s *Store) get(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		e = &entry{ctx: NewContext(id, s.now())}
		s.sessions[id] = e
		s.logger.Debug("session created", "session_id", id)
	}
	return e
}

// Snapshot returns a deep copy of the session's context, creating a blank
// context if the session is new. Reading a snapshot never blocks on another
// session's mutation.
func (s *Store) Snapshot(id string) *Context {
	e := s.get(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx.LastActive = s.now()
	return e.ctx.Clone()
}

// Mutate runs fn against the session's live context under the session lock,
// applies the returned delta, records the turn, and returns the delta along
// with a snapshot of the resulting context. If fn fails, nothing changes and
// no turn is recorded.
func (s *Store) Mutate(id string, turn Turn, fn func(*Context) (*Delta, error)) (*Delta, *Context, error) {
	e := s.get(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	delta, err := fn(e.ctx)
	if err != nil {
		return nil, nil, err
	}

	delta.Apply(e.ctx)
	s.appendLocked(e.ctx, turn)
	e.ctx.LastActive = s.now()
	return delta, e.ctx.Clone(), nil
}

// AppendTurn records a completed read-only call in the session history.
func (s *Store) AppendTurn(id string, turn Turn) {
	e := s.get(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.appendLocked(e.ctx, turn)
	e.ctx.LastActive = s.now()
}

func (s *Store) appendLocked(ctx *Context, turn Turn) {
	ctx.History = append(ctx.History, turn)
	if over := len(ctx.History) - s.historySize; over > 0 {
		ctx.History = ctx.History[over:]
	}
}

// Expire drops every session idle longer than the configured threshold and
// returns how many were removed. A later call for an expired ID starts from
// a blank context.
func (s *Store) Expire(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		idle := now.Sub(e.ctx.LastActive)
		e.mu.Unlock()
		if idle >= s.idleAfter {
			delete(s.sessions, id)
			removed++
			s.logger.Debug("session expired", "session_id", id, "idle", idle)
		}
	}
	return removed
}

// Sweep runs Expire on a fixed interval until stop is closed.
func (s *Store) Sweep(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := s.Expire(s.now()); n > 0 {
				s.logger.Info("expired idle sessions", "count", n)
			}
		}
	}
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
