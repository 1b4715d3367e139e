// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import "errors"

var (
	// ErrNXDomain is returned when the reply received (or a cached negative
	// entry) is NXDOMAIN (RcodeNameError) and opts.NXDomainExceptions is
	// set, so the caller wants the error surfaced rather than swallowed.
	// The first reply decides; other servers are not asked.
	ErrNXDomain = errors.New("dns: name does not exist")

	// ErrMalformedReply is returned when a reply fails to unpack as a
	// well-formed DNS message.
	ErrMalformedReply = errors.New("dns: malformed reply")

	// ErrServerFailure is returned when the reply received carries a
	// non-success, non-NXDOMAIN Rcode (e.g. SERVFAIL, REFUSED); other
	// servers are not asked.
	ErrServerFailure = errors.New("dns: server failure")

	// ErrExhaustedRetries is returned, wrapping the last attempt's error,
	// once the first send and all retry_max retries across the round-robin
	// server list have failed. If the resolution deadline (opts.Timeout)
	// expires first, the context's error is returned instead.
	ErrExhaustedRetries = errors.New("dns: exhausted retries without a reply")

	// ErrNoServers is returned when ResolverOptions.Servers is empty.
	ErrNoServers = errors.New("dns: no servers configured")

	// ErrNoRecords is returned when a reply is well-formed, Rcode success,
	// but carries none of the requested record type (empty answer).
	ErrNoRecords = errors.New("dns: no records of the requested type")
)
