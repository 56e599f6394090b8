package imap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// tagGenerator produces the per-session command tags A0001, A0002, ...
type tagGenerator struct {
	n int
}

func (g *tagGenerator) next() string {
	g.n++
	return fmt.Sprintf("A%04d", g.n)
}

// quoteString serialises s as an IMAP quoted string, escaping backslash and
// double quote.
func quoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' || c == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// unquoteString undoes quoteString. Inputs without surrounding quotes are
// returned unchanged (atoms).
func unquoteString(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	body := s[1 : len(s)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
		}
		b.WriteByte(body[i])
	}
	return b.String()
}

// responseLine is one logical server response. Text keeps the literal length
// markers `{n}` in place; Literals carries the payloads in marker order. A
// nil literal entry means the payload was routed to the streaming sink
// instead of being buffered.
type responseLine struct {
	text     []byte
	literals [][]byte
}

func (l *responseLine) String() string {
	return string(l.text)
}

// isUntagged reports whether the line is a `* ` server response.
func (l *responseLine) isUntagged() bool {
	return bytes.HasPrefix(l.text, []byte("* "))
}

// isContinuation reports whether the line is a `+ ` SASL/literal prompt.
func (l *responseLine) isContinuation() bool {
	return bytes.HasPrefix(l.text, []byte("+ ")) || bytes.Equal(l.text, []byte("+"))
}

// responseReader scans the server byte stream. The scanner alternates
// between line mode (CRLF-terminated) and literal mode (exactly n verbatim
// octets after a `{n}` marker); literal bytes are never inspected for CRLF
// or markers.
type responseReader struct {
	r *bufio.Reader

	// sink, when set, receives literal payloads instead of the in-memory
	// buffer. sinkBytes counts what was copied.
	sink      io.Writer
	sinkBytes int64
}

func newResponseReader(r io.Reader) *responseReader {
	return &responseReader{r: bufio.NewReaderSize(r, 64*1024)}
}

func (rr *responseReader) setSink(w io.Writer) {
	rr.sink = w
	rr.sinkBytes = 0
}

func (rr *responseReader) clearSink() {
	rr.sink = nil
}

// next returns the following complete logical line. A line whose segment
// ends in a literal marker absorbs the literal and keeps reading the same
// logical line afterwards.
func (rr *responseReader) next() (*responseLine, error) {
	line := &responseLine{}
	for {
		segment, err := rr.r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		segment = trimCRLF(segment)
		line.text = append(line.text, segment...)

		n, ok := literalLength(segment)
		if !ok {
			return line, nil
		}

		if rr.sink != nil {
			copied, err := io.CopyN(rr.sink, rr.r, int64(n))
			rr.sinkBytes += copied
			if err != nil {
				return nil, err
			}
			line.literals = append(line.literals, nil)
		} else {
			payload := make([]byte, n)
			if _, err := io.ReadFull(rr.r, payload); err != nil {
				return nil, err
			}
			line.literals = append(line.literals, payload)
		}
	}
}

func trimCRLF(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	b = bytes.TrimSuffix(b, []byte("\r"))
	return b
}

// literalLength recognises a `{n}` literal marker at the end of a line
// segment and returns n.
func literalLength(segment []byte) (int, bool) {
	if len(segment) < 3 || segment[len(segment)-1] != '}' {
		return 0, false
	}
	open := bytes.LastIndexByte(segment, '{')
	if open < 0 {
		return 0, false
	}
	digits := segment[open+1 : len(segment)-1]
	if len(digits) == 0 {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// taggedStatus parses `<tag> OK|NO|BAD <text>` completions for the given
// tag. ok is false for untagged and continuation lines and for other tags.
func taggedStatus(line *responseLine, tag string) (status, text string, ok bool) {
	raw := string(line.text)
	if !strings.HasPrefix(raw, tag+" ") {
		return "", "", false
	}
	rest := raw[len(tag)+1:]
	for _, s := range []string{"OK", "NO", "BAD"} {
		if rest == s {
			return s, "", true
		}
		if strings.HasPrefix(rest, s+" ") {
			return s, rest[len(s)+1:], true
		}
	}
	return "", "", false
}
