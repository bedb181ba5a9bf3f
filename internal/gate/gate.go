// Package gate enforces per-caller rate limits and role-based access to
// tools before any tool work begins.
package gate

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
)

var (
	// ErrRateLimited indicates the caller has exhausted its quota.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrForbidden indicates the caller lacks the role a tool requires.
	ErrForbidden = errors.New("caller is not allowed to invoke this tool")
)

const (
	cleanupInterval = 5 * time.Minute
	staleThreshold  = 10 * time.Minute
)

// Gate checks rate and access for every tool call. Rate limiting uses a
// token bucket per caller: a full burst of quota tokens, refilled at
// quota-per-minute. Role checks compare the tool's required role against a
// static admin allowlist.
type Gate struct {
	mu          sync.Mutex
	callers     map[string]*caller
	limit       rate.Limit
	burst       int
	lastCleanup time.Time

	admins map[string]bool
	now    func() time.Time
	logger log.Logger
}

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a gate allowing quotaPerMinute calls per caller. Callers named
// in admins may invoke admin-only tools.
func New(quotaPerMinute int, admins []string, logger log.Logger) *Gate {
	if logger == nil {
		logger = log.NewNop()
	}
	adminSet := make(map[string]bool, len(admins))
	for _, id := range admins {
		adminSet[id] = true
	}
	return &Gate{
		callers:     make(map[string]*caller),
		limit:       rate.Limit(float64(quotaPerMinute) / 60.0),
		burst:       quotaPerMinute,
		lastCleanup: time.Now(),
		admins:      adminSet,
		now:         time.Now,
		logger:      logger,
	}
}

// Check admits or rejects one call. Access is checked before rate, so a
// forbidden call does not consume quota.
func (g *Gate) Check(callerID string, def *schema.Definition) error {
	if def.Role == schema.RoleAdmin && !g.admins[callerID] {
		g.logger.Warn("access denied", "caller", callerID, "tool", def.Name)
		return ErrForbidden
	}
	if !g.allow(callerID) {
		g.logger.Warn("rate limit exceeded", "caller", callerID, "tool", def.Name)
		return ErrRateLimited
	}
	return nil
}

// allow consumes one token from the caller's bucket, creating the bucket on
// first sight. Stale buckets are cleaned up inline.
func (g *Gate) allow(callerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if now.Sub(g.lastCleanup) > cleanupInterval {
		for k, c := range g.callers {
			if now.Sub(c.lastSeen) > staleThreshold {
				delete(g.callers, k)
			}
		}
		g.lastCleanup = now
	}

	c, exists := g.callers[callerID]
	if !exists {
		limiter := rate.NewLimiter(g.limit, g.burst)
		g.callers[callerID] = &caller{limiter: limiter, lastSeen: now}
		limiter.AllowN(now, 1)
		return true
	}

	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// IsAdmin reports whether a caller is on the admin allowlist.
func (g *Gate) IsAdmin(callerID string) bool {
	return g.admins[callerID]
}
