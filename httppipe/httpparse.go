// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"bufio"
	"bytes"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// headTerminator is the blank line ending an HTTP/1.1 response head.
var headTerminator = []byte("\r\n\r\n")

// parsedHead is the result of parsing a complete response head.
type parsedHead struct {
	Status        int
	Header        http.Header
	ContentLength int64 // -1 when absent and not chunked
	Chunked       bool
}

// findHeadEnd reports the offset just past the blank line terminating
// the response head in buf, or -1 if the head is not yet complete.
func findHeadEnd(buf []byte) int {
	if idx := bytes.Index(buf, headTerminator); idx >= 0 {
		return idx + len(headTerminator)
	}
	return -1
}

// parseHead parses a complete response head (status line plus header
// fields, terminated by a blank line) out of head.
func parseHead(head []byte) (*parsedHead, error) {
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(head)))

	statusLine, err := reader.ReadLine()
	if err != nil {
		return nil, ErrMalformedHead
	}
	status, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	mimeHeader, err := reader.ReadMIMEHeader()
	if err != nil && len(mimeHeader) == 0 {
		return nil, ErrMalformedHead
	}
	header := http.Header(mimeHeader)

	result := &parsedHead{Status: status, Header: header, ContentLength: -1}

	if strings.EqualFold(header.Get("Transfer-Encoding"), "chunked") {
		result.Chunked = true
		return result, nil
	}
	if te := header.Get("Transfer-Encoding"); te != "" {
		return nil, ErrUnsupportedTransferEncoding
	}
	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, ErrMalformedHead
		}
		result.ContentLength = n
	}
	return result, nil
}

// parseStatusLine parses "HTTP/1.1 200 OK" into its status code.
func parseStatusLine(line string) (int, error) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, ErrMalformedHead
	}
	status, err := strconv.Atoi(fields[1])
	if err != nil || status < 100 || status > 999 {
		return 0, ErrMalformedHead
	}
	return status, nil
}

// chunkMaxPending is the sentinel "not yet parsed" value for a tag's
// current chunk length, the Go transcription of spec.md §4.3's
// `size_t::MAX` convention.
const chunkMaxPending = int64(-1)

// parseChunkSizeLine extracts the chunk size from a single CRLF-terminated
// "<hex-size>[;ext]\r\n" line at the start of buf. consumed is 0 if buf
// does not yet contain a full line.
func parseChunkSizeLine(buf []byte) (size int64, consumed int, err error) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		return 0, 0, nil
	}
	line := buf[:idx]
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	line = bytes.TrimSpace(line)
	n, err := strconv.ParseInt(string(line), 16, 64)
	if err != nil || n < 0 {
		return 0, 0, ErrMalformedHead
	}
	return n, idx + 2, nil
}

// chunkTrailerLen is the length of the CRLF following a chunk's body and
// the CRLF following the terminal "0" chunk size line's (empty) trailer
// section, i.e. the bytes every chunk body (zero-length final chunk
// included) is followed by before the next chunk-size line or EOF.
const chunkTrailerLen = 2
