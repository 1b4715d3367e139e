// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import "errors"

// ErrUnavailable is returned when a peer has a latched error and its
// cool-down has not yet elapsed; the submission is refused without
// touching the network, per spec.md §4.3's peer error latch.
var ErrUnavailable = errors.New("httppipe: peer is unavailable (error latched, cool-down active)")

// ErrCanceled is delivered to a request's future when it is abandoned
// before commitment, or (internally) attached to the sentinel request a
// canceled committed tag continues draining with.
var ErrCanceled = errors.New("httppipe: request canceled")

// ErrMalformedHead is returned by the head parser when the response
// status line or headers cannot be parsed as HTTP/1.1.
var ErrMalformedHead = errors.New("httppipe: malformed response head")

// ErrUnsupportedTransferEncoding is returned when a response's
// Transfer-Encoding is neither absent nor "chunked".
var ErrUnsupportedTransferEncoding = errors.New("httppipe: unsupported transfer encoding")

// ErrContentTooLarge is returned when a response's declared content
// length exceeds the user's buffer and the request's TruncateContent
// option is false.
var ErrContentTooLarge = errors.New("httppipe: content length exceeds buffer")

// ErrLinkClosed is delivered to a committed tag's future when its link
// closes (transport error or EOF) before the tag's response completes.
var ErrLinkClosed = errors.New("httppipe: link closed before response completed")

// ErrHTTPStatus is wrapped around a response whose status is >= 300 when
// the request's HTTPExceptions option is set.
var ErrHTTPStatus = errors.New("httppipe: response status indicates failure")
