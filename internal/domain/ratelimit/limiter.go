// Package ratelimit implements the sliding-window limiter the Policy Engine
// consults before a rule with a rate_limit clause is allowed to match.
//
// Unlike the GCRA-style limiters used elsewhere in this lineage, the gate
// limiter keeps the raw arrival timestamps per bucket: the spec's
// Rate-limit-monotonicity property (P4) and its exact deny reason
// ("N calls in window") both require counting actual events in the window,
// not an amortized token rate.
package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// maxBucketAge bounds memory: timestamps older than this are pruned on every
// access regardless of the window being checked, per spec 4.A.
const maxBucketAge = 24 * time.Hour

// Limiter tracks a sliding-window timestamp list per bucket key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[uint64][]time.Time
	names   map[uint64]string // for debugging/inspection only
	now     func() time.Time
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[uint64][]time.Time),
		names:   make(map[uint64]string),
		now:     time.Now,
	}
}

func bucketKey(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Count returns how many calls for name fall within [now-window, now], after
// pruning entries older than 24h. It does not record a call and does not
// mutate the window count itself (only the 24h prune is applied), matching
// the spec's "check... without recording the call" rate-limit deny path.
func (l *Limiter) Count(name string, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := bucketKey(name)
	entries := l.pruneLocked(key, now)

	cutoff := now.Add(-window)
	count := 0
	for _, t := range entries {
		if t.After(cutoff) || t.Equal(cutoff) {
			count++
		}
	}
	return count
}

// Record appends a call timestamp to name's bucket.
func (l *Limiter) Record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := bucketKey(name)
	l.pruneLocked(key, now)
	l.buckets[key] = append(l.buckets[key], now)
	l.names[key] = name
}

// pruneLocked discards entries older than maxBucketAge for key and returns
// the surviving slice. Caller must hold l.mu.
func (l *Limiter) pruneLocked(key uint64, now time.Time) []time.Time {
	entries := l.buckets[key]
	if len(entries) == 0 {
		return entries
	}
	cutoff := now.Add(-maxBucketAge)
	kept := entries[:0:0]
	for _, t := range entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.buckets, key)
		delete(l.names, key)
		return nil
	}
	l.buckets[key] = kept
	return kept
}
