// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/federationcore/fedcore/taskengine"
)

// bodyPhase is the read-side sub-state of a [tag] once its response
// head has been parsed, the Go transcription of spec.md §4.3's
// chunk_length sentinel-driven state machine.
type bodyPhase int

const (
	phaseFixedBody bodyPhase = iota
	phaseChunkSize
	phaseChunkBody
	phaseChunkTrailer
	phaseFinalTrailer
	phaseDone
)

// tag is one in-flight request/response exchange on a [Link], the Go
// transcription of spec.md §4.3's "Tag" entity.
type tag struct {
	id      uint64
	link    *Link
	req     *Request
	promise *taskengine.Promise[*Response]

	// write side
	outHead []byte
	outBody []byte
	written int

	// read side
	headBuf   bytes.Buffer
	headParsed bool
	status    int
	header    http.Header

	contentLength int64 // -1 until known for a non-chunked response
	contentRead   int64
	chunked       bool
	chunkLength   int64 // chunkMaxPending until a chunk-size line is parsed
	chunkRead     int64
	phase         bodyPhase
	lineScratch   []byte // partial chunk-size-line / trailer bytes
	trailerNeed   int    // remaining trailer bytes to discard

	contentBuf   []byte   // contiguous destination, nil in dynamic mode
	chunks       [][]byte // dynamic-mode accumulated chunk buffers
	currentChunk []byte

	canceledFlag bool
	removed      bool
	scratch      *cancelScratch
}

func newTag(id uint64, link *Link, req *Request, promise *taskengine.Promise[*Response]) *tag {
	t := &tag{
		id:            id,
		link:          link,
		req:           req,
		promise:       promise,
		contentLength: -1,
		chunkLength:   chunkMaxPending,
	}
	t.outHead = buildRequestHead(link.peer.hostname, req)
	t.outBody = req.Body
	if req.Opts.Content != nil {
		t.contentBuf = req.Opts.Content
	}
	return t
}

// committed reports whether any byte of this tag's request has been
// written to the wire yet.
func (t *tag) committed() bool { return t.written > 0 }

// canceled reports whether the user abandoned this tag after commitment.
func (t *tag) canceled() bool { return t.canceledFlag }

// outstandingWrite returns the number of out bytes not yet written.
func (t *tag) outstandingWrite() int {
	return len(t.outHead) + len(t.outBody) - t.written
}

// makeWriteBuffer returns the next unsent slice of this tag's request
// (head bytes first, then body bytes).
func (t *tag) makeWriteBuffer() []byte {
	if t.written < len(t.outHead) {
		return t.outHead[t.written:]
	}
	off := t.written - len(t.outHead)
	if off < len(t.outBody) {
		return t.outBody[off:]
	}
	return nil
}

// onWritten advances the tag's write progress by n bytes, invoking the
// request's Progress callback for body bytes as they are confirmed sent.
func (t *tag) onWritten(n int) {
	writtenBefore := t.written
	t.written += n
	if t.req.Progress == nil {
		return
	}
	bodyBefore := max(0, writtenBefore-len(t.outHead))
	bodyAfter := max(0, min(t.written, len(t.outHead)+len(t.outBody))-len(t.outHead))
	if bodyAfter > bodyBefore {
		t.req.Progress(t.outBody[bodyBefore:bodyAfter], t.outBody[:bodyAfter])
	}
}

// writeComplete reports whether every out byte has been written.
func (t *tag) writeComplete() bool {
	return t.written >= len(t.outHead)+len(t.outBody)
}

// consume feeds newly-received bytes into the tag's read-side state
// machine. It returns any bytes at the end of data that belong to the
// *next* tag in the link's pipeline (spec.md §4.3's "overrun"), and
// whether this tag's response is now fully received.
func (t *tag) consume(data []byte) (overrun []byte, completed bool, err error) {
	if !t.headParsed {
		data, err = t.consumeHead(data)
		if err != nil || !t.headParsed {
			return nil, false, err
		}
	}
	return t.consumeBody(data)
}

// consumeHead accumulates data into the head buffer and, once the
// blank-line terminator is seen, parses it. It returns the bytes
// following the terminator (spec.md §4.3's `head_rem` scratch) for the
// caller to feed into consumeBody; until the terminator arrives it
// returns (nil, nil) with t.headParsed still false.
func (t *tag) consumeHead(data []byte) (rest []byte, err error) {
	t.headBuf.Write(data)
	buf := t.headBuf.Bytes()
	end := findHeadEnd(buf)
	if end < 0 {
		return nil, nil
	}
	parsed, err := parseHead(buf[:end])
	if err != nil {
		return nil, err
	}
	t.status = parsed.Status
	t.header = parsed.Header
	t.contentLength = parsed.ContentLength
	t.chunked = parsed.Chunked
	t.headParsed = true
	if !t.chunked && t.contentLength < 0 && (t.status < 200 || t.status == 204 || t.status == 304) {
		// 1xx, 204 and 304 responses carry no body.
		t.contentLength = 0
	}
	if t.chunked {
		t.phase = phaseChunkSize
	}

	rest = append([]byte(nil), buf[end:]...)
	t.headBuf.Reset()
	return rest, nil
}

func (t *tag) consumeBody(data []byte) (overrun []byte, completed bool, err error) {
	if !t.chunked {
		return t.consumeFixedBody(data)
	}
	return t.consumeChunkedBody(data)
}

func (t *tag) consumeFixedBody(data []byte) (overrun []byte, completed bool, err error) {
	if t.contentLength < 0 {
		return nil, false, ErrMalformedHead
	}
	need := t.contentLength - t.contentRead
	n := int64(len(data))
	if n > need {
		n = need
	}
	if err := t.appendContent(data[:n]); err != nil {
		return nil, false, err
	}
	t.contentRead += n
	data = data[n:]
	if t.contentRead >= t.contentLength {
		t.finishDynamicContent()
		return data, true, nil
	}
	return nil, false, nil
}

func (t *tag) consumeChunkedBody(data []byte) (overrun []byte, completed bool, err error) {
	for len(data) > 0 {
		switch t.phase {
		case phaseChunkSize:
			combined := data
			if len(t.lineScratch) > 0 {
				combined = append(append([]byte(nil), t.lineScratch...), data...)
			}
			size, consumed, perr := parseChunkSizeLine(combined)
			if perr != nil {
				return nil, false, perr
			}
			if consumed == 0 {
				t.lineScratch = append(t.lineScratch[:0], combined...)
				return nil, false, nil
			}
			usedFromData := consumed - len(t.lineScratch)
			t.lineScratch = nil
			data = data[usedFromData:]
			t.chunkLength = size
			t.chunkRead = 0
			t.contentLength = max(t.contentLength, 0) + size
			if size == 0 {
				t.phase = phaseFinalTrailer
				t.trailerNeed = chunkTrailerLen
			} else {
				t.phase = phaseChunkBody
			}

		case phaseChunkBody:
			need := t.chunkLength - t.chunkRead
			n := int64(len(data))
			if n > need {
				n = need
			}
			if err := t.appendContent(data[:n]); err != nil {
				return nil, false, err
			}
			t.chunkRead += n
			t.contentRead += n
			data = data[n:]
			if t.chunkRead >= t.chunkLength {
				if t.contentBuf == nil {
					t.chunks = append(t.chunks, t.currentChunk)
					t.currentChunk = nil
				}
				t.phase = phaseChunkTrailer
				t.trailerNeed = chunkTrailerLen
			}

		case phaseChunkTrailer:
			n := len(data)
			if n > t.trailerNeed {
				n = t.trailerNeed
			}
			t.trailerNeed -= n
			data = data[n:]
			if t.trailerNeed == 0 {
				t.phase = phaseChunkSize
				t.chunkLength = chunkMaxPending
			}

		case phaseFinalTrailer:
			n := len(data)
			if n > t.trailerNeed {
				n = t.trailerNeed
			}
			t.trailerNeed -= n
			data = data[n:]
			if t.trailerNeed == 0 {
				t.phase = phaseDone
				t.finishDynamicContent()
				return data, true, nil
			}

		default:
			return data, true, nil
		}
	}
	return nil, false, nil
}

// appendContent delivers n bytes of response body either into the
// user's contiguous buffer or into a fresh dynamic-mode chunk buffer,
// per spec.md §4.3's two chunked-encoding modes.
func (t *tag) appendContent(b []byte) error {
	if len(b) == 0 || t.canceledFlag {
		return nil
	}
	if t.contentBuf != nil {
		if t.contentRead+int64(len(b)) > int64(len(t.contentBuf)) {
			if !t.req.Opts.TruncateContent {
				return ErrContentTooLarge
			}
			room := int64(len(t.contentBuf)) - t.contentRead
			if room <= 0 {
				return nil
			}
			b = b[:room]
		}
		copy(t.contentBuf[t.contentRead:], b)
		return nil
	}
	t.currentChunk = append(t.currentChunk, b...)
	return nil
}

// finishDynamicContent flushes any content not already chunked into
// t.chunks (consumeChunkedBody flushes per chunk as each completes;
// consumeFixedBody never does, so a fixed-length dynamic-mode response
// arrives here as one pending chunk) and, if requested, concatenates
// every chunk into a single contiguous buffer.
func (t *tag) finishDynamicContent() {
	if t.contentBuf != nil {
		t.contentBuf = t.contentBuf[:min(t.contentRead, int64(len(t.contentBuf)))]
		return
	}
	if len(t.currentChunk) > 0 {
		t.chunks = append(t.chunks, t.currentChunk)
		t.currentChunk = nil
	}
	if t.req.Opts.ContiguousContent {
		var total int
		for _, c := range t.chunks {
			total += len(c)
		}
		joined := make([]byte, 0, total)
		for _, c := range t.chunks {
			joined = append(joined, c...)
		}
		t.contentBuf = joined
		t.chunks = nil
	}
}

// response builds this tag's [*Response] once its body has completed.
func (t *tag) response() *Response {
	return &Response{
		Status:  t.status,
		Header:  t.header,
		Content: t.contentBuf,
		Chunks:  t.chunks,
	}
}

// cancel implements [RequestHandle.Cancel]. An uncommitted tag is
// simply removed from its link's FIFO; a committed tag switches to a
// cancellation scratch buffer and keeps draining internally, per
// spec.md §4.3's cancellation design (see cancel.go).
func (t *tag) cancel() {
	t.link.cancelTag(t)
}

func buildRequestHead(hostname string, req *Request) []byte {
	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Host") == "" {
		header.Set("Host", hostname)
	}
	if len(req.Body) > 0 && header.Get("Content-Length") == "" {
		header.Set("Content-Length", fmt.Sprintf("%d", len(req.Body)))
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", req.Method, req.Target)
	for key, values := range header {
		for _, v := range values {
			fmt.Fprintf(&buf, "%s: %s\r\n", key, v)
		}
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}
