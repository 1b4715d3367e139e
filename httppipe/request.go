// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"net/http"

	"github.com/federationcore/fedcore/taskengine"
)

// Request is one user-submitted HTTP/1.1 request, the Go transcription
// of spec.md §4.3's `request` object (its `out`/`in`/`opt` members
// flattened into named fields).
type Request struct {
	// Method is the HTTP method, e.g. "GET".
	Method string

	// Target is the request-URI (path plus optional query).
	Target string

	// Header carries the request's header fields. Host is set
	// automatically from the peer's hostname if absent.
	Header http.Header

	// Body is the request body to send (out-content). Nil for a
	// bodyless request.
	Body []byte

	// Progress, if set, is invoked after each partial write of Body
	// with the bytes just consumed and the cumulative bytes sent so far.
	Progress func(consumed, cumulative []byte)

	// Opts configures response handling for this request.
	Opts RequestOptions
}

// RequestOptions configures how a [Request]'s response is buffered and
// whether non-2xx/3xx statuses are treated as errors, per spec.md
// §4.3's chunked-encoding modes and §7's status-exception policy.
type RequestOptions struct {
	// Content, if non-nil, is the pre-sized buffer the response body is
	// written into (contiguous mode, spec.md §4.3's mode 1). If nil, the
	// dynamic mode is used: each chunk (or, for a fixed-length response,
	// the whole body) is delivered as one element of the response's
	// Chunks field.
	Content []byte

	// ContiguousContent, meaningful only in dynamic mode (Content nil),
	// requests that the accumulated chunks be concatenated into a single
	// buffer on completion, replacing Chunks with a one-element result
	// surfaced via Response.Content.
	ContiguousContent bool

	// TruncateContent, when true, silently truncates a response body
	// that would overflow Content instead of failing with
	// [ErrContentTooLarge].
	TruncateContent bool

	// HTTPExceptions, when true, makes a response status >= 300 resolve
	// the future with [ErrHTTPStatus] instead of delivering the response
	// normally.
	HTTPExceptions bool
}

// Response is the parsed HTTP/1.1 response delivered to a request's
// future on completion.
type Response struct {
	// Status is the parsed status code.
	Status int

	// Header carries the response's header fields.
	Header http.Header

	// Content is the response body. In contiguous mode this is the
	// caller-supplied buffer (trimmed to the bytes actually received);
	// in dynamic mode with ContiguousContent set, a newly allocated
	// buffer holding the concatenated chunk bodies.
	Content []byte

	// Chunks holds the response body as a sequence of per-chunk buffers,
	// populated only in dynamic mode when ContiguousContent is false.
	Chunks [][]byte
}

// RequestHandle is returned by [Peer.Submit]. The caller awaits the
// response via Future and may call Cancel to abandon interest in it.
type RequestHandle struct {
	future *taskengine.Future[*Response]
	tag    *tag
}

// Future returns the handle's future, the Go transcription of
// spec.md §4.3's `request.future`.
func (h *RequestHandle) Future() *taskengine.Future[*Response] {
	return h.future
}

// Cancel abandons the user's interest in the response, per spec.md
// §4.3's `request.cancel()`: if the tag has not yet committed (written
// any bytes), it is simply removed from its link's FIFO and the future
// resolves with [ErrCanceled]. If already committed, the tag is
// switched to a cancellation scratch buffer (cancel.go) and continues
// draining internally so sibling requests on the same link are
// unaffected; the future still resolves with [ErrCanceled] immediately.
func (h *RequestHandle) Cancel() {
	h.tag.cancel()
}
