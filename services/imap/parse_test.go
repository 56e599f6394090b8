package imap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailvault/interfaces"
)

func TestParseListLineQuotedName(t *testing.T) {
	line := &responseLine{text: []byte(`* LIST (\HasNoChildren) "/" "INBOX/Receipts 2024"`)}

	flags, delim, name, ok := parseListLine(line)

	require.True(t, ok)
	assert.Equal(t, []string{`\HasNoChildren`}, flags)
	assert.Equal(t, "/", delim)
	assert.Equal(t, "INBOX/Receipts 2024", name)
}

func TestParseListLineAtomName(t *testing.T) {
	line := &responseLine{text: []byte(`* LIST () "." INBOX`)}

	flags, delim, name, ok := parseListLine(line)

	require.True(t, ok)
	assert.Empty(t, flags)
	assert.Equal(t, ".", delim)
	assert.Equal(t, "INBOX", name)
}

func TestParseListLineNilDelimiter(t *testing.T) {
	line := &responseLine{text: []byte(`* LIST (\Noselect) NIL Archive`)}

	flags, delim, name, ok := parseListLine(line)

	require.True(t, ok)
	assert.Equal(t, []string{`\Noselect`}, flags)
	assert.Equal(t, "", delim)
	assert.Equal(t, "Archive", name)
}

func TestParseListLineLiteralName(t *testing.T) {
	line := &responseLine{
		text:     []byte(`* LIST (\HasChildren) "/" {13}`),
		literals: [][]byte{[]byte("Odd\r\nFolder13")},
	}

	flags, delim, name, ok := parseListLine(line)

	require.True(t, ok)
	assert.Equal(t, []string{`\HasChildren`}, flags)
	assert.Equal(t, "/", delim)
	assert.Equal(t, "Odd\r\nFolder13", name)
}

func TestParseListLineRejectsOtherResponses(t *testing.T) {
	line := &responseLine{text: []byte(`* 23 EXISTS`)}

	_, _, _, ok := parseListLine(line)

	assert.False(t, ok)
}

func TestApplySelectLine(t *testing.T) {
	status := &interfaces.FolderStatus{}

	applySelectLine(status, &responseLine{text: []byte("* 172 EXISTS")})
	applySelectLine(status, &responseLine{text: []byte("* 1 RECENT")})
	applySelectLine(status, &responseLine{text: []byte("* OK [UIDVALIDITY 3857529045] UIDs valid")})
	applySelectLine(status, &responseLine{text: []byte("* OK [UIDNEXT 4392] Predicted next UID")})
	applySelectLine(status, &responseLine{text: []byte(`* FLAGS (\Answered \Seen)`)})

	assert.Equal(t, uint32(172), status.Exists)
	assert.Equal(t, uint32(1), status.Recent)
	assert.Equal(t, uint32(3857529045), status.UIDValidity)
	assert.Equal(t, uint32(4392), status.UIDNext)
}

func TestParseSearchLine(t *testing.T) {
	uids, ok := parseSearchLine(&responseLine{text: []byte("* SEARCH 10 20 30")})
	require.True(t, ok)
	assert.Equal(t, []uint32{10, 20, 30}, uids)

	empty, ok := parseSearchLine(&responseLine{text: []byte("* SEARCH")})
	require.True(t, ok)
	assert.Empty(t, empty)

	_, ok = parseSearchLine(&responseLine{text: []byte("* SEARCHX 1")})
	assert.False(t, ok)
}

func TestFetchItemNumber(t *testing.T) {
	line := &responseLine{text: []byte("* 12 FETCH (UID 77 RFC822.SIZE 20480)")}

	uid, ok := fetchItemNumber(line, "UID")
	require.True(t, ok)
	assert.Equal(t, uint32(77), uid)

	size, ok := fetchItemNumber(line, "RFC822.SIZE")
	require.True(t, ok)
	assert.Equal(t, uint32(20480), size)

	_, ok = fetchItemNumber(line, "FLAGS")
	assert.False(t, ok)
}

func TestIsFetchLine(t *testing.T) {
	assert.True(t, isFetchLine(&responseLine{text: []byte("* 1 FETCH (UID 10)")}))
	assert.False(t, isFetchLine(&responseLine{text: []byte("* SEARCH 1")}))
	assert.False(t, isFetchLine(&responseLine{text: []byte("A0001 OK done")}))
}

func TestParseCapabilityLine(t *testing.T) {
	caps, ok := parseCapabilityLine(&responseLine{text: []byte("* CAPABILITY IMAP4rev1 AUTH=XOAUTH2 auth=plain IDLE")})

	require.True(t, ok)
	assert.True(t, caps["AUTH=XOAUTH2"])
	assert.True(t, caps["AUTH=PLAIN"])
	assert.True(t, caps["IDLE"])
	assert.False(t, caps["AUTH=LOGIN"])
}

func TestFolderPathDecodesModifiedUTF7(t *testing.T) {
	// "Entw&APw-rfe" is the modified UTF-7 form of the German drafts folder
	assert.Equal(t, "Entwürfe", folderPath("Entw&APw-rfe", "/"))
	// dotted hierarchies map onto path separators
	assert.Equal(t, "INBOX/Sub/Deep", folderPath("INBOX.Sub.Deep", "."))
	// plain names pass through
	assert.Equal(t, "INBOX", folderPath("INBOX", "/"))
}
