// SPDX-License-Identifier: GPL-3.0-or-later

package dns

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// SRVTarget is one SRV record: a weighted/prioritized target host and
// port, per RFC 2782.
type SRVTarget struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// Answer is the decoded, protocol-agnostic result of a DNS query: the
// requested record type's values plus the minimum TTL across them (the
// value [Cache.Put] uses to compute absolute expiry).
type Answer struct {
	// A holds decoded A records' addresses, if qtype was [dns.TypeA].
	A []net.IP

	// AAAA holds decoded AAAA records' addresses, if qtype was
	// [dns.TypeAAAA].
	AAAA []net.IP

	// SRV holds decoded SRV records, if qtype was [dns.TypeSRV].
	SRV []SRVTarget

	// TTL is the minimum TTL across every record in the answer section.
	TTL time.Duration
}

// normalizeName converts name to its ASCII (Punycode) form via IDNA, then
// to the FQDN (trailing-dot) form the wire format expects.
func normalizeName(name string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("dns: invalid hostname %q: %w", name, err)
	}
	return dns.Fqdn(ascii), nil
}

// buildQuery returns a new query message for (name, qtype) with a random
// 16-bit id and recursion-desired set, per spec.md §4.2's "DNS over UDP...
// 16-bit random ids, standard query opcode, recursion desired."
func buildQuery(name string, qtype uint16) (*dns.Msg, error) {
	fqdn, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.Id = dns.Id()
	msg.RecursionDesired = true
	return msg, nil
}

// parseReply unpacks raw into a [*dns.Msg], failing with
// [ErrMalformedReply] on any decode error.
func parseReply(raw []byte) (*dns.Msg, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return msg, nil
}

// decodeAnswer extracts the records matching qtype from reply's answer
// section into an [*Answer], computing the minimum TTL across them.
func decodeAnswer(reply *dns.Msg, qtype uint16) *Answer {
	answer := &Answer{}
	var minTTL uint32
	haveTTL := false

	observe := func(ttl uint32) {
		if !haveTTL || ttl < minTTL {
			minTTL = ttl
			haveTTL = true
		}
	}

	for _, rr := range reply.Answer {
		switch qtype {
		case dns.TypeA:
			if a, ok := rr.(*dns.A); ok {
				answer.A = append(answer.A, a.A)
				observe(a.Hdr.Ttl)
			}
		case dns.TypeAAAA:
			if aaaa, ok := rr.(*dns.AAAA); ok {
				answer.AAAA = append(answer.AAAA, aaaa.AAAA)
				observe(aaaa.Hdr.Ttl)
			}
		case dns.TypeSRV:
			if srv, ok := rr.(*dns.SRV); ok {
				answer.SRV = append(answer.SRV, SRVTarget{
					Priority: srv.Priority,
					Weight:   srv.Weight,
					Port:     srv.Port,
					Target:   srv.Target,
				})
				observe(srv.Hdr.Ttl)
			}
		}
	}

	answer.TTL = time.Duration(minTTL) * time.Second
	return answer
}
