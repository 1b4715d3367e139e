// SPDX-License-Identifier: GPL-3.0-or-later

package httppipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindHeadEndLocatesTerminator(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi")
	end := findHeadEnd(buf)
	require.Equal(t, len(buf)-len("hi"), end)
}

func TestFindHeadEndReturnsMinusOneWhenIncomplete(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n")
	require.Equal(t, -1, findHeadEnd(buf))
}

func TestParseHeadFixedLength(t *testing.T) {
	head := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nServer: x\r\n\r\n")
	parsed, err := parseHead(head)
	require.NoError(t, err)
	assert.Equal(t, 200, parsed.Status)
	assert.Equal(t, int64(5), parsed.ContentLength)
	assert.False(t, parsed.Chunked)
	assert.Equal(t, "x", parsed.Header.Get("Server"))
}

func TestParseHeadChunked(t *testing.T) {
	head := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n")
	parsed, err := parseHead(head)
	require.NoError(t, err)
	assert.True(t, parsed.Chunked)
	assert.Equal(t, int64(-1), parsed.ContentLength)
}

func TestParseHeadRejectsUnsupportedTransferEncoding(t *testing.T) {
	head := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: gzip\r\n\r\n")
	_, err := parseHead(head)
	require.ErrorIs(t, err, ErrUnsupportedTransferEncoding)
}

func TestParseHeadRejectsMalformedStatusLine(t *testing.T) {
	head := []byte("not a status line\r\n\r\n")
	_, err := parseHead(head)
	require.ErrorIs(t, err, ErrMalformedHead)
}

func TestParseHeadRejectsNegativeContentLength(t *testing.T) {
	head := []byte("HTTP/1.1 200 OK\r\nContent-Length: -1\r\n\r\n")
	_, err := parseHead(head)
	require.ErrorIs(t, err, ErrMalformedHead)
}

func TestParseStatusLineAcceptsStandardForm(t *testing.T) {
	status, err := parseStatusLine("HTTP/1.1 404 Not Found")
	require.NoError(t, err)
	assert.Equal(t, 404, status)
}

func TestParseStatusLineRejectsGarbage(t *testing.T) {
	_, err := parseStatusLine("garbage")
	require.ErrorIs(t, err, ErrMalformedHead)
}

func TestParseChunkSizeLineParsesHex(t *testing.T) {
	size, consumed, err := parseChunkSizeLine([]byte("1a\r\nrest"))
	require.NoError(t, err)
	assert.Equal(t, int64(0x1a), size)
	assert.Equal(t, 4, consumed)
}

func TestParseChunkSizeLineStripsExtension(t *testing.T) {
	size, consumed, err := parseChunkSizeLine([]byte("4;ext=1\r\ndata"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	assert.Equal(t, len("4;ext=1\r\n"), consumed)
}

func TestParseChunkSizeLineIncompleteReturnsZeroConsumed(t *testing.T) {
	size, consumed, err := parseChunkSizeLine([]byte("4"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
	assert.Equal(t, 0, consumed)
}

func TestParseChunkSizeLineRejectsNonHex(t *testing.T) {
	_, _, err := parseChunkSizeLine([]byte("zz\r\n"))
	require.ErrorIs(t, err, ErrMalformedHead)
}
