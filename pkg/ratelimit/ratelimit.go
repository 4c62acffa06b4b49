package ratelimit

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/vuraweg/prepgate/pkg/observability"
)

// GlobalKey is the implicit ledger consulted on every attempt alongside
// the caller's identifier. It throttles bulk abuse (notably scripted
// sign-up) that spreads attempts across many identifiers.
const GlobalKey = "__global__"

// Entry is one attempt ledger record. Cycles and CycleStart form the
// progressive-cooldown layer; they survive lockout expiry so repeat
// offenders earn longer locks.
type Entry struct {
	Count       int       `json:"count"`
	LastAttempt time.Time `json:"last_attempt"`
	LockedUntil time.Time `json:"locked_until"`
	Cycles      int       `json:"cycles"`
	CycleStart  time.Time `json:"cycle_start"`
}

// Policy holds the tunable limits. The zero value is not usable; start
// from DefaultPolicy.
type Policy struct {
	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration

	// GlobalMultiplier scales MaxAttempts for the global ledger so one
	// account's failures never lock the whole portal.
	GlobalMultiplier int

	ProgressiveEnabled bool
	ProgressiveFactor  float64
	ProgressiveWindow  time.Duration

	// MaxLockout caps progressive scaling.
	MaxLockout time.Duration
}

// DefaultPolicy returns the production limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:        5,
		AttemptWindow:      5 * time.Minute,
		LockoutDuration:    15 * time.Minute,
		GlobalMultiplier:   10,
		ProgressiveEnabled: true,
		ProgressiveFactor:  1.5,
		ProgressiveWindow:  30 * time.Minute,
		MaxLockout:         2 * time.Hour,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.AttemptWindow <= 0 {
		p.AttemptWindow = d.AttemptWindow
	}
	if p.LockoutDuration <= 0 {
		p.LockoutDuration = d.LockoutDuration
	}
	if p.GlobalMultiplier <= 0 {
		p.GlobalMultiplier = d.GlobalMultiplier
	}
	if p.ProgressiveFactor < 1 {
		p.ProgressiveFactor = d.ProgressiveFactor
	}
	if p.ProgressiveWindow <= 0 {
		p.ProgressiveWindow = d.ProgressiveWindow
	}
	if p.MaxLockout <= 0 {
		p.MaxLockout = d.MaxLockout
	}
	return p
}

// Limiter gates authentication attempts per identifier plus the global
// key. Every store error fails open: availability of login outranks
// throttling precision, so an unreachable ledger behaves as "allowed".
type Limiter struct {
	store   Store
	policy  Policy
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLimiter creates a limiter over the given store. Metrics may be nil.
func NewLimiter(store Store, policy Policy, logger *observability.Logger, metrics *observability.Metrics) *Limiter {
	return &Limiter{
		store:   store,
		policy:  policy.normalized(),
		logger:  logger.WithComponent("ratelimit"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Policy returns the normalized limits the limiter runs with.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// IsBlocked reports whether a non-expired lockout exists for the
// identifier or for the global key.
func (l *Limiter) IsBlocked(ctx context.Context, identifier string) bool {
	return l.blockedOn(ctx, normalize(identifier)) || l.blockedOn(ctx, GlobalKey)
}

// RecordAttempt registers one authentication attempt against both the
// identifier and global ledgers. It returns false when the caller is
// already locked (without mutating state) or when this attempt exhausts
// either budget.
func (l *Limiter) RecordAttempt(ctx context.Context, identifier string) bool {
	id := normalize(identifier)

	// Locked callers don't consume ledger writes.
	if l.blockedOn(ctx, id) || l.blockedOn(ctx, GlobalKey) {
		return false
	}

	allowedID := l.recordOn(ctx, id, "identifier")
	allowedGlobal := l.recordOn(ctx, GlobalKey, "global")
	return allowedID && allowedGlobal
}

// RemainingAttempts returns how many attempts are left for the
// identifier before lockout, accounting for window and lockout expiry.
func (l *Limiter) RemainingAttempts(ctx context.Context, identifier string) int {
	max := l.policy.MaxAttempts

	entry, err := l.store.Get(ctx, normalize(identifier))
	if err != nil {
		l.failOpen("remaining", err)
		return max
	}
	if entry == nil {
		return max
	}

	now := l.now()
	if !entry.LockedUntil.IsZero() {
		if now.Before(entry.LockedUntil) {
			return 0
		}
		// Expired lockout reads as a fresh ledger.
		return max
	}
	if now.Sub(entry.LastAttempt) > l.policy.AttemptWindow {
		return max
	}

	remaining := max - entry.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeUntilUnblock returns how long until the identifier may attempt
// again, the maximum over its own lockout and the global one. Zero means
// not blocked.
func (l *Limiter) TimeUntilUnblock(ctx context.Context, identifier string) time.Duration {
	now := l.now()

	var longest time.Duration
	for _, key := range []string{normalize(identifier), GlobalKey} {
		entry, err := l.store.Get(ctx, key)
		if err != nil {
			l.failOpen("unblock", err)
			continue
		}
		if entry == nil || entry.LockedUntil.IsZero() {
			continue
		}
		if wait := entry.LockedUntil.Sub(now); wait > longest {
			longest = wait
		}
	}
	return longest
}

// Reset clears the identifier's ledger after successful authentication.
// The global ledger is never reset by one caller's success.
func (l *Limiter) Reset(ctx context.Context, identifier string) {
	if err := l.store.Delete(ctx, normalize(identifier)); err != nil {
		l.logger.WithError(err).Warn("Failed to reset attempt ledger")
	}
}

func (l *Limiter) blockedOn(ctx context.Context, key string) bool {
	entry, err := l.store.Get(ctx, key)
	if err != nil {
		l.failOpen("blocked", err)
		return false
	}
	if entry == nil {
		return false
	}
	return l.now().Before(entry.LockedUntil)
}

func (l *Limiter) recordOn(ctx context.Context, key, scope string) bool {
	max := l.policy.MaxAttempts
	if key == GlobalKey {
		max *= l.policy.GlobalMultiplier
	}

	var allowed, locked bool
	_, err := l.store.Update(ctx, key, l.entryTTL(), func(cur *Entry) *Entry {
		now := l.now()
		var e Entry
		if cur != nil {
			e = *cur
		}

		// Lazy expiry: a lapsed lockout reads as a fresh window.
		if !e.LockedUntil.IsZero() && !now.Before(e.LockedUntil) {
			e.Count = 0
			e.LockedUntil = time.Time{}
		}
		if e.Count > 0 && now.Sub(e.LastAttempt) > l.policy.AttemptWindow {
			e.Count = 0
		}

		e.Count++
		e.LastAttempt = now

		locked = e.Count >= max
		if locked {
			e.LockedUntil = now.Add(l.lockoutFor(&e, now))
		}
		allowed = e.Count < max
		return &e
	})
	if err != nil {
		l.failOpen("record", err)
		return true
	}

	if locked {
		l.logger.WithFields(map[string]interface{}{
			"scope":   scope,
			"retries": max,
		}).Warn("Attempt budget exhausted, lockout set")
		if l.metrics != nil {
			l.metrics.LockoutsTotal.WithLabelValues(scope).Inc()
		}
	}
	return allowed
}

// lockoutFor computes the lockout duration and advances the progressive
// cycle counter on e.
func (l *Limiter) lockoutFor(e *Entry, now time.Time) time.Duration {
	d := l.policy.LockoutDuration
	if !l.policy.ProgressiveEnabled {
		return d
	}

	if e.Cycles > 0 && now.Sub(e.CycleStart) > l.policy.ProgressiveWindow {
		e.Cycles = 0
	}
	if e.Cycles == 0 {
		e.CycleStart = now
	}

	scaled := time.Duration(float64(d) * math.Pow(l.policy.ProgressiveFactor, float64(e.Cycles)))
	if scaled > l.policy.MaxLockout {
		scaled = l.policy.MaxLockout
	}
	e.Cycles++
	return scaled
}

// entryTTL is how long stored entries stay meaningful: the longest of
// the attempt window, the lockout cap, and the progressive window, plus
// slack. Stores refresh it on every write.
func (l *Limiter) entryTTL() time.Duration {
	ttl := l.policy.AttemptWindow
	if l.policy.MaxLockout > ttl {
		ttl = l.policy.MaxLockout
	}
	if l.policy.ProgressiveWindow > ttl {
		ttl = l.policy.ProgressiveWindow
	}
	return ttl + 5*time.Minute
}

func (l *Limiter) failOpen(op string, err error) {
	l.logger.WithError(err).WithField("op", op).Warn("Attempt ledger unavailable, failing open")
	if l.metrics != nil {
		l.metrics.LedgerFailOpen.WithLabelValues(op).Inc()
	}
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
