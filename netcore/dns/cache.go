// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import (
	"strings"
	"sync"
	"time"
)

// cacheKey identifies a cached answer by canonical (lowercased,
// trailing-dot-stripped) name and query type.
type cacheKey struct {
	name  string
	qtype uint16
}

// cacheEntry is one cached answer, with an absolute expiry timestamp —
// the Go transcription of the original resolver's `rfc1035::record.ttl`
// field (an absolute time, not a relative duration).
type cacheEntry struct {
	expiry  time.Time
	answer  *Answer
	isError bool
}

// Cache is a process-wide, TTL-bounded DNS answer cache. It corresponds to
// spec.md's "DNS Cache Entry" model object (§3) and the original
// resolver's `cache_A`/`cache_SRV` maps.
//
// A zero Cache is not usable; construct with [NewCache].
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	minTTL  time.Duration
	nxTTL   time.Duration
	now     func() time.Time
}

// NewCache returns a new, empty [*Cache]. minTTL floors the expiry
// computed from a successful answer's records; nxTTL is the expiry
// applied to a cached NXDOMAIN.
func NewCache(minTTL, nxTTL time.Duration, now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[cacheKey]cacheEntry),
		minTTL:  minTTL,
		nxTTL:   nxTTL,
		now:     now,
	}
}

// Get returns the cached answer for (name, qtype), if present and not yet
// expired. The second return value reports an NXDOMAIN hit (the caller
// still must honor opts.NXDomainExceptions to decide whether that is an
// error or a prompt to fall back).
func (c *Cache) Get(name string, qtype uint16) (answer *Answer, isNXDomain bool, ok bool) {
	key := canonicalKey(name, qtype)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[key]
	if !found {
		return nil, false, false
	}
	if c.now().After(entry.expiry) {
		delete(c.entries, key)
		return nil, false, false
	}
	if entry.isError {
		return nil, true, true
	}
	return entry.answer, false, true
}

// Put stores a successful answer, with its expiry floored at minTTL.
func (c *Cache) Put(name string, qtype uint16, answer *Answer) {
	ttl := answer.TTL
	if ttl < c.minTTL {
		ttl = c.minTTL
	}
	key := canonicalKey(name, qtype)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		expiry: c.now().Add(ttl),
		answer: answer,
	}
}

// PutNXDomain caches an NXDOMAIN result for nxTTL.
func (c *Cache) PutNXDomain(name string, qtype uint16) {
	key := canonicalKey(name, qtype)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		expiry:  c.now().Add(c.nxTTL),
		isError: true,
	}
}

// Evict removes every expired entry, for callers that want to bound the
// cache's memory footprint proactively rather than relying on Get's
// lazy eviction.
func (c *Cache) Evict() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func canonicalKey(name string, qtype uint16) cacheKey {
	return cacheKey{
		name:  strings.ToLower(strings.TrimSuffix(name, ".")),
		qtype: qtype,
	}
}
