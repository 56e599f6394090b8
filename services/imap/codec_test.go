package imap

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagGenerator(t *testing.T) {
	// Arrange
	g := tagGenerator{}

	// Act & Assert
	assert.Equal(t, "A0001", g.next())
	assert.Equal(t, "A0002", g.next())
	for i := 0; i < 7; i++ {
		g.next()
	}
	assert.Equal(t, "A0010", g.next())
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, `"INBOX"`, quoteString("INBOX"))
	assert.Equal(t, `"a\"b"`, quoteString(`a"b`))
	assert.Equal(t, `"a\\b"`, quoteString(`a\b`))
	assert.Equal(t, `""`, quoteString(""))
}

func TestUnquoteString(t *testing.T) {
	assert.Equal(t, "INBOX", unquoteString(`"INBOX"`))
	assert.Equal(t, `a"b`, unquoteString(`"a\"b"`))
	assert.Equal(t, `a\b`, unquoteString(`"a\\b"`))
	// atoms pass through untouched
	assert.Equal(t, "INBOX", unquoteString("INBOX"))
}

func TestLiteralLength(t *testing.T) {
	tests := []struct {
		segment string
		want    int
		ok      bool
	}{
		{"* 1 FETCH (BODY[] {0}", 0, true},
		{"* 1 FETCH (BODY[] {1}", 1, true},
		{"* 1 FETCH (BODY[] {4096}", 4096, true},
		{"* 1 FETCH (BODY[] {10000000}", 10000000, true},
		{"A0001 OK done", 0, false},
		{"* 1 FETCH (BODY[] {12a}", 0, false},
		{"* 1 FETCH (BODY[] {}", 0, false},
		{"{5} trailing", 0, false},
	}
	for _, tt := range tests {
		n, ok := literalLength([]byte(tt.segment))
		assert.Equal(t, tt.ok, ok, tt.segment)
		if tt.ok {
			assert.Equal(t, tt.want, n, tt.segment)
		}
	}
}

func TestResponseReaderPlainLines(t *testing.T) {
	// Arrange
	input := "* OK ready\r\nA0001 OK LOGIN completed\r\n"
	rr := newResponseReader(strings.NewReader(input))

	// Act
	first, err := rr.next()
	require.NoError(t, err)
	second, err := rr.next()
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "* OK ready", first.String())
	assert.True(t, first.isUntagged())
	assert.Equal(t, "A0001 OK LOGIN completed", second.String())
	assert.False(t, second.isUntagged())
}

func TestResponseReaderLiteralFraming(t *testing.T) {
	// Arrange
	body := "HELLO"
	input := "* 1 FETCH (UID 10 BODY[] {5}\r\n" + body + ")\r\nA0002 OK FETCH completed\r\n"
	rr := newResponseReader(strings.NewReader(input))

	// Act
	line, err := rr.next()
	require.NoError(t, err)
	done, err := rr.next()
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "* 1 FETCH (UID 10 BODY[] {5})", line.String())
	require.Len(t, line.literals, 1)
	assert.Equal(t, []byte(body), line.literals[0])
	assert.Equal(t, "A0002 OK FETCH completed", done.String())
}

func TestResponseReaderBinaryLiteral(t *testing.T) {
	// A literal may contain any octet, including bytes that look like
	// framing: CR, LF, NUL, braces. None of them may re-enter line mode.
	payload := []byte("{3}\r\nX\x00Y\r\n}{")
	sizes := []int{0, 1, 4096}

	for _, extra := range sizes {
		padded := append(bytes.Repeat([]byte{0xAB}, extra), payload...)
		var input bytes.Buffer
		input.WriteString("* 1 FETCH (UID 7 BODY[] {")
		input.WriteString(strconv.Itoa(len(padded)))
		input.WriteString("}\r\n")
		input.Write(padded)
		input.WriteString(")\r\nA0001 OK done\r\n")

		rr := newResponseReader(&input)

		line, err := rr.next()
		require.NoError(t, err)
		require.Len(t, line.literals, 1)
		assert.Equal(t, padded, line.literals[0])

		done, err := rr.next()
		require.NoError(t, err)
		assert.Equal(t, "A0001 OK done", done.String())
	}
}

func TestResponseReaderZeroLengthLiteral(t *testing.T) {
	input := "* 1 FETCH (UID 9 BODY[] {0}\r\n)\r\nA0001 OK done\r\n"
	rr := newResponseReader(strings.NewReader(input))

	line, err := rr.next()
	require.NoError(t, err)

	require.Len(t, line.literals, 1)
	assert.Empty(t, line.literals[0])
	assert.Equal(t, "* 1 FETCH (UID 9 BODY[] {0})", line.String())
}

func TestResponseReaderMultipleLiteralsOneLine(t *testing.T) {
	input := "* 1 FETCH (BODY[HEADER] {2}\r\nAB BODY[TEXT] {3}\r\nCDE)\r\nA0001 OK done\r\n"
	rr := newResponseReader(strings.NewReader(input))

	line, err := rr.next()
	require.NoError(t, err)

	require.Len(t, line.literals, 2)
	assert.Equal(t, []byte("AB"), line.literals[0])
	assert.Equal(t, []byte("CDE"), line.literals[1])
}

func TestResponseReaderStreamsLiteralToSink(t *testing.T) {
	// Arrange
	body := bytes.Repeat([]byte("stream"), 1000)
	var input bytes.Buffer
	input.WriteString("* 1 FETCH (UID 3 BODY[] {")
	input.WriteString(strconv.Itoa(len(body)))
	input.WriteString("}\r\n")
	input.Write(body)
	input.WriteString(")\r\nA0001 OK done\r\n")

	rr := newResponseReader(&input)
	var sink bytes.Buffer
	rr.setSink(&sink)

	// Act
	line, err := rr.next()
	require.NoError(t, err)
	rr.clearSink()

	// Assert
	require.Len(t, line.literals, 1)
	assert.Nil(t, line.literals[0])
	assert.Equal(t, body, sink.Bytes())
	assert.Equal(t, int64(len(body)), rr.sinkBytes)
}

func TestTaggedStatus(t *testing.T) {
	ok := &responseLine{text: []byte("A0003 OK FETCH completed")}
	status, text, matched := taggedStatus(ok, "A0003")
	assert.True(t, matched)
	assert.Equal(t, "OK", status)
	assert.Equal(t, "FETCH completed", text)

	no := &responseLine{text: []byte("A0004 NO [THROTTLED] try later")}
	status, text, matched = taggedStatus(no, "A0004")
	assert.True(t, matched)
	assert.Equal(t, "NO", status)
	assert.Equal(t, "[THROTTLED] try later", text)

	bad := &responseLine{text: []byte("A0005 BAD syntax")}
	status, _, matched = taggedStatus(bad, "A0005")
	assert.True(t, matched)
	assert.Equal(t, "BAD", status)

	otherTag := &responseLine{text: []byte("A0006 OK fine")}
	_, _, matched = taggedStatus(otherTag, "A0007")
	assert.False(t, matched)

	untagged := &responseLine{text: []byte("* OK untagged")}
	_, _, matched = taggedStatus(untagged, "A0001")
	assert.False(t, matched)
}
