// SPDX-License-Identifier: GPL-3.0-or-later

// Package httppipe implements the HTTP/1.1 client pipeliner described in
// spec.md §4.3: a per-destination [Peer] owning a bounded set of [Link]s,
// each link a FIFO pipeline of tags, each carrying one request/response
// exchange over a shared TCP+TLS connection from [netcore].
//
// The pipeliner never uses net/http as its request/response engine —
// head and chunked-body framing are parsed directly off the wire by
// this package (see httpparse.go) — so that committed, in-flight
// requests can be canceled without disturbing sibling requests already
// queued on the same connection (cancel.go).
package httppipe
