package backup

import (
	"bytes"
	"net/mail"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/customeros/mailvault/internal/utils"
)

// messageEnvelope is the header metadata used to name a stored .eml file.
type messageEnvelope struct {
	From       string
	Subject    string
	MessageID  string
	Date       time.Time
	SenderSlug string
}

// parseEnvelope extracts filename metadata from raw message bytes or a bare
// header section. Parsing is best-effort: malformed input yields zero values
// and the store falls back to safe defaults. Encoded words and folded headers
// are decoded by enmime.
func parseEnvelope(raw []byte) messageEnvelope {
	env := messageEnvelope{SenderSlug: "unknown"}

	parsed, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return env
	}

	env.From = parsed.GetHeader("From")
	env.Subject = parsed.GetHeader("Subject")
	env.MessageID = parsed.GetHeader("Message-ID")
	if date, err := mail.ParseDate(parsed.GetHeader("Date")); err == nil {
		env.Date = date.UTC()
	}
	env.SenderSlug = utils.SenderSlug(env.From)
	return env
}
