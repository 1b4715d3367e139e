// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGetRoundtrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCache(900*time.Second, 12*time.Hour, clock)

	answer := &Answer{A: []net.IP{net.ParseIP("1.2.3.4")}, TTL: 300 * time.Second}
	c.Put("Example.COM.", dns.TypeA, answer)

	got, isNX, ok := c.Get("example.com", dns.TypeA)
	require.True(t, ok)
	assert.False(t, isNX)
	assert.Equal(t, answer, got)
}

func TestCachePutFloorsTTLAtMinTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCache(900*time.Second, 12*time.Hour, clock)

	c.Put("example.com", dns.TypeA, &Answer{TTL: 5 * time.Second})

	key := canonicalKey("example.com", dns.TypeA)
	entry := c.entries[key]
	assert.Equal(t, now.Add(900*time.Second), entry.expiry)
}

func TestCacheGetExpiresLazily(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCache(0, time.Hour, clock)

	c.Put("example.com", dns.TypeA, &Answer{TTL: 10 * time.Second})
	now = now.Add(20 * time.Second)

	_, _, ok := c.Get("example.com", dns.TypeA)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCachePutNXDomainAndGet(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCache(time.Second, time.Hour, clock)

	c.PutNXDomain("nonexistent.example", dns.TypeA)

	answer, isNX, ok := c.Get("nonexistent.example", dns.TypeA)
	require.True(t, ok)
	assert.True(t, isNX)
	assert.Nil(t, answer)
}

func TestCacheGetMissReturnsFalse(t *testing.T) {
	c := NewCache(time.Second, time.Second, time.Now)
	_, _, ok := c.Get("never-put.example", dns.TypeA)
	assert.False(t, ok)
}

func TestCacheEvictRemovesOnlyExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCache(0, 0, clock)

	c.Put("expired.example", dns.TypeA, &Answer{TTL: 5 * time.Second})
	c.Put("fresh.example", dns.TypeA, &Answer{TTL: 500 * time.Second})
	now = now.Add(10 * time.Second)

	c.Evict()
	assert.Equal(t, 1, c.Len())
	_, _, ok := c.Get("fresh.example", dns.TypeA)
	assert.True(t, ok)
}

func TestCanonicalKeyLowercasesAndStripsTrailingDot(t *testing.T) {
	assert.Equal(t, canonicalKey("Example.com", dns.TypeA), canonicalKey("example.com.", dns.TypeA))
}
