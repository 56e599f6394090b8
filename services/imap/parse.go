package imap

import (
	"strconv"
	"strings"

	"github.com/customeros/mailvault/interfaces"
)

// parseListLine decodes `* LIST (<flags>) "<delim>" <name>` where the name
// may arrive as a quoted string, an atom, or a literal.
func parseListLine(line *responseLine) (flags []string, delim, name string, ok bool) {
	text := string(line.text)
	if !strings.HasPrefix(text, "* LIST ") {
		return nil, "", "", false
	}
	rest := text[len("* LIST "):]

	if !strings.HasPrefix(rest, "(") {
		return nil, "", "", false
	}
	closing := strings.IndexByte(rest, ')')
	if closing < 0 {
		return nil, "", "", false
	}
	if flagsPart := strings.TrimSpace(rest[1:closing]); flagsPart != "" {
		flags = strings.Fields(flagsPart)
	}
	rest = strings.TrimLeft(rest[closing+1:], " ")

	switch {
	case strings.HasPrefix(rest, "NIL"):
		delim = ""
		rest = strings.TrimLeft(rest[3:], " ")
	case strings.HasPrefix(rest, `"`):
		end := findClosingQuote(rest)
		if end < 0 {
			return nil, "", "", false
		}
		delim = unquoteString(rest[:end+1])
		rest = strings.TrimLeft(rest[end+1:], " ")
	default:
		return nil, "", "", false
	}

	if _, isLiteral := literalLength([]byte(rest)); isLiteral {
		payload, found := firstLiteral(line)
		if !found {
			return nil, "", "", false
		}
		name = string(payload)
	} else if strings.HasPrefix(rest, `"`) {
		end := findClosingQuote(rest)
		if end < 0 {
			return nil, "", "", false
		}
		name = unquoteString(rest[:end+1])
	} else {
		name = rest
	}

	return flags, delim, name, true
}

func findClosingQuote(s string) int {
	if len(s) == 0 || s[0] != '"' {
		return -1
	}
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

// applySelectLine folds one untagged SELECT response into the status
// snapshot: `* <n> EXISTS`, `* <n> RECENT`, and the bracketed UIDNEXT and
// UIDVALIDITY response codes.
func applySelectLine(status *interfaces.FolderStatus, line *responseLine) {
	text := string(line.text)
	fields := strings.Fields(text)
	if len(fields) >= 3 && fields[0] == "*" {
		if n, err := strconv.ParseUint(fields[1], 10, 32); err == nil {
			switch fields[2] {
			case "EXISTS":
				status.Exists = uint32(n)
				return
			case "RECENT":
				status.Recent = uint32(n)
				return
			}
		}
	}
	if v, ok := responseCode(text, "UIDNEXT"); ok {
		status.UIDNext = v
	}
	if v, ok := responseCode(text, "UIDVALIDITY"); ok {
		status.UIDValidity = v
	}
}

// responseCode extracts the numeric argument of a bracketed response code
// such as `[UIDNEXT 4392]`.
func responseCode(text, code string) (uint32, bool) {
	marker := "[" + code + " "
	i := strings.Index(text, marker)
	if i < 0 {
		return 0, false
	}
	rest := text[i+len(marker):]
	j := strings.IndexByte(rest, ']')
	if j < 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(rest[:j]), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// parseSearchLine decodes `* SEARCH <uid> <uid> ...`. An empty result line
// is valid and yields no UIDs.
func parseSearchLine(line *responseLine) ([]uint32, bool) {
	text := string(line.text)
	if text != "* SEARCH" && !strings.HasPrefix(text, "* SEARCH ") {
		return nil, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(text, "* SEARCH"))
	if rest == "" {
		return nil, true
	}
	fields := strings.Fields(rest)
	uids := make([]uint32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			continue
		}
		uids = append(uids, uint32(n))
	}
	return uids, true
}

func isFetchLine(line *responseLine) bool {
	fields := strings.Fields(string(line.text))
	return len(fields) >= 3 && fields[0] == "*" && fields[2] == "FETCH"
}

// fetchItemNumber finds the numeric value following a FETCH item name, e.g.
// UID or RFC822.SIZE, ignoring parenthesis nesting.
func fetchItemNumber(line *responseLine, item string) (uint32, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '(' || r == ')' {
			return ' '
		}
		return r
	}, string(line.text))
	fields := strings.Fields(cleaned)
	for i := 0; i+1 < len(fields); i++ {
		if strings.EqualFold(fields[i], item) {
			n, err := strconv.ParseUint(fields[i+1], 10, 32)
			if err != nil {
				return 0, false
			}
			return uint32(n), true
		}
	}
	return 0, false
}

// firstLiteral returns the first buffered literal payload of the line.
func firstLiteral(line *responseLine) ([]byte, bool) {
	for _, lit := range line.literals {
		if lit != nil {
			return lit, true
		}
	}
	return nil, false
}

// parseCapabilityLine decodes `* CAPABILITY tok tok ...` into an upper-cased
// set.
func parseCapabilityLine(line *responseLine) (map[string]bool, bool) {
	text := string(line.text)
	if text != "* CAPABILITY" && !strings.HasPrefix(text, "* CAPABILITY ") {
		return nil, false
	}
	caps := make(map[string]bool)
	for _, f := range strings.Fields(text)[2:] {
		caps[strings.ToUpper(f)] = true
	}
	return caps, true
}
