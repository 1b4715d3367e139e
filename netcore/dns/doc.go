// SPDX-License-Identifier: GPL-3.0-or-later

// Package dns implements the DNS resolver described in spec.md §4.2: a
// round-robin UDP (with TCP fallback on truncation) resolver for A, AAAA,
// and SRV records, backed by a TTL-bounded cache.
//
// The wire codec is provided directly by github.com/miekg/dns rather than
// a hand-rolled RFC 1035 encoder/decoder; this package's own contribution
// is the resolver's send-pacing, retry, round-robin server selection, and
// caching policy on top of that codec.
package dns
