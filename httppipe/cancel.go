// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

// cancelScratch marks a tag as switched to internally-owned buffers
// after [RequestHandle.Cancel] on a committed tag, per spec.md §4.3's
// cancellation design: the pipeline keeps draining the tag coherently
// without touching the user's original request/response buffers, which
// the caller is free to discard or reuse the instant Cancel returns.
//
// Unlike the source's fixed-size scratch buffer (sized up front to
// cover every outstanding offset), this implementation copies the
// request body into a freshly owned slice (the head is already owned by
// the tag), keeps the write offset so the tag stays committed, and simply
// discards response bytes as they arrive (appendContent is a no-op
// once canceledFlag is set) — the response is never delivered to
// anyone, so there is nothing to preserve it for.
type cancelScratch struct {
	outBody []byte
}

// cancelInternal switches t to drain using only internally-owned
// memory: the body is copied so writing can continue even if the
// caller discards req.Body, and response bytes are discarded as they
// arrive.
func (t *tag) cancelInternal() {
	if t.canceledFlag {
		return
	}
	owned := append([]byte(nil), t.outBody...)
	t.outBody = owned
	t.canceledFlag = true
	t.scratch = &cancelScratch{outBody: owned}
}
