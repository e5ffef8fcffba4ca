package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// HostApprovalCache remembers which HTTP hosts a human has already
// approved, so the Consent Gate can skip re-prompting for the cache TTL.
// Owned exclusively by the Consent Gate (spec §3 Ownership).
type HostApprovalCache struct {
	mu      sync.RWMutex
	entries map[uint64]time.Time
	now     func() time.Time
}

// NewHostApprovalCache creates an empty cache.
func NewHostApprovalCache() *HostApprovalCache {
	return &HostApprovalCache{
		entries: make(map[uint64]time.Time),
		now:     time.Now,
	}
}

// NormalizeHost lowercases and strips a trailing dot, matching the
// normalization the Consent Gate applies before caching or looking up a
// host approval.
func NormalizeHost(host string) string {
	host = strings.ToLower(host)
	return strings.TrimSuffix(host, ".")
}

// Insert records host (and its "www twin", per spec §4.D step 3c) as
// approved until now()+ttl.
func (c *HostApprovalCache) Insert(host string, ttl time.Duration) {
	host = NormalizeHost(host)
	expiry := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[hostKey(host)] = expiry
	if twin := wwwTwin(host); twin != "" {
		c.entries[hostKey(twin)] = expiry
	}
}

// Approved reports whether host has an unexpired cache entry.
func (c *HostApprovalCache) Approved(host string) bool {
	host = NormalizeHost(host)
	key := hostKey(host)

	c.mu.RLock()
	expiry, ok := c.entries[key]
	c.mu.RUnlock()

	return ok && c.now().Before(expiry)
}

// wwwTwin returns the counterpart host to also cache: stripping "www."
// if present, or prefixing it if the host looks like a bare domain.
func wwwTwin(host string) string {
	if strings.HasPrefix(host, "www.") {
		return strings.TrimPrefix(host, "www.")
	}
	if strings.Contains(host, ".") {
		return "www." + host
	}
	return ""
}

func hostKey(host string) uint64 {
	return xxhash.Sum64String(host)
}
