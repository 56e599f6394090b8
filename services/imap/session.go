package imap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/utf7"
	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/metrics"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/services/ratelimit"
)

type sessionState string

const (
	stateDisconnected  sessionState = "disconnected"
	stateGreeted       sessionState = "greeted"
	stateAuthenticated sessionState = "authenticated"
	stateSelected      sessionState = "selected"
)

const maxReconnectAttempts = 3

// ClientConfig describes one IMAP endpoint with its credentials.
type ClientConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Email    string

	AuthMethod enum.AuthMethod
	Password   string
	// AccessToken supplies a fresh OAuth bearer token. Required for the
	// oauth2 method; called again on every reconnect.
	AccessToken func(ctx context.Context) (string, error)

	SocksProxyURL string
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
}

// Client is one IMAP session implementing interfaces.IMAPClient. Commands
// are strictly serial; the mutex makes concurrent misuse safe rather than
// fast.
type Client struct {
	config   ClientConfig
	tracker  *ratelimit.Tracker
	log      logger.Logger
	recorder metrics.Recorder

	mu             sync.Mutex
	transport      *transport
	reader         *responseReader
	tags           tagGenerator
	state          sessionState
	selectedFolder string
	capabilities   map[string]bool
	// resumable marks a session that was lost rather than closed on purpose;
	// only those are reconnected transparently.
	resumable bool
}

func NewClient(config ClientConfig, tracker *ratelimit.Tracker, log logger.Logger, recorder metrics.Recorder) *Client {
	if recorder == nil {
		recorder = &metrics.NoopRecorder{}
	}
	return &Client{
		config:   config,
		tracker:  tracker,
		log:      log,
		recorder: recorder,
		state:    stateDisconnected,
	}
}

// Connect opens the transport, consumes the greeting and authenticates.
func (c *Client) Connect(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.Connect")
	defer span.Finish()
	tracing.TagComponentImap(span)
	span.SetTag("server", c.config.Host)
	span.SetTag("port", c.config.Port)
	span.SetTag("tls", c.config.TLS)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	c.teardownLocked()

	t, err := openTransport(ctx, transportConfig{
		Host:          c.config.Host,
		Port:          c.config.Port,
		TLS:           c.config.TLS,
		SocksProxyURL: c.config.SocksProxyURL,
		DialTimeout:   c.config.DialTimeout,
		ReadTimeout:   c.config.ReadTimeout,
	})
	if err != nil {
		return err
	}
	c.transport = t
	c.reader = newResponseReader(t)
	c.tags = tagGenerator{}
	c.recorder.SessionOpened(c.config.Host)

	stopGuard := c.guard(ctx)
	line, err := c.reader.next()
	stopGuard()
	if err != nil {
		c.teardownLocked()
		return classifyIOError(ctx, err)
	}

	greeting := string(line.text)
	switch {
	case strings.HasPrefix(greeting, "* OK"):
		c.state = stateGreeted
	case strings.HasPrefix(greeting, "* PREAUTH"):
		c.state = stateAuthenticated
	case strings.HasPrefix(greeting, "* BYE"):
		c.teardownLocked()
		return &AuthError{Reason: "server refused the connection: " + greeting}
	default:
		c.teardownLocked()
		return protocolErrorf("unexpected greeting: %q", greeting)
	}

	log.Printf("[%s] connected to %s:%d", c.config.Email, c.config.Host, c.config.Port)

	if c.state == stateAuthenticated {
		c.resumable = true
		return nil
	}
	if err := c.authenticateLocked(ctx); err != nil {
		c.teardownLocked()
		return err
	}
	c.state = stateAuthenticated
	c.resumable = true
	return nil
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	switch c.config.AuthMethod {
	case enum.AuthOAuth2:
		return c.authenticateXOAuth2Locked(ctx)
	default:
		return c.loginLocked(ctx)
	}
}

func (c *Client) loginLocked(ctx context.Context) error {
	cmd := fmt.Sprintf("LOGIN %s %s", quoteString(c.config.Username), quoteString(c.config.Password))
	if _, err := c.executeLocked(ctx, "LOGIN", cmd, nil, nil); err != nil {
		var statusErr *ServerStatusError
		if errors.As(err, &statusErr) {
			return &AuthError{Reason: statusErr.Text}
		}
		return err
	}
	log.Printf("[%s] logged in as %s", c.config.Email, c.config.Username)
	return nil
}

func (c *Client) authenticateXOAuth2Locked(ctx context.Context) error {
	if c.config.AccessToken == nil {
		return &AuthError{Reason: "no access token provider configured"}
	}

	// XOAUTH2 must be advertised before AUTHENTICATE is attempted.
	caps, err := c.capabilitiesLocked(ctx)
	if err != nil {
		return err
	}
	if !caps["AUTH=XOAUTH2"] {
		return &AuthError{Reason: "server does not advertise AUTH=XOAUTH2"}
	}

	token, err := c.config.AccessToken(ctx)
	if err != nil {
		return &AuthError{Reason: fmt.Sprintf("token refresh failed: %v", err)}
	}

	mech := NewXOAuth2Client(c.config.Email, token)
	name, ir, err := mech.Start()
	if err != nil {
		return &AuthError{Reason: err.Error()}
	}

	cmd := fmt.Sprintf("AUTHENTICATE %s %s", name, base64.StdEncoding.EncodeToString(ir))
	onContinuation := func(challenge []byte) ([]byte, error) {
		return mech.Next(challenge)
	}
	if _, err := c.executeLocked(ctx, "AUTHENTICATE", cmd, nil, onContinuation); err != nil {
		var statusErr *ServerStatusError
		if errors.As(err, &statusErr) {
			return &AuthError{Reason: statusErr.Text}
		}
		return err
	}
	log.Printf("[%s] authenticated via XOAUTH2", c.config.Email)
	return nil
}

func (c *Client) capabilitiesLocked(ctx context.Context) (map[string]bool, error) {
	caps := make(map[string]bool)
	onLine := func(line *responseLine) error {
		if parsed, ok := parseCapabilityLine(line); ok {
			caps = parsed
		}
		return nil
	}
	if _, err := c.executeLocked(ctx, "CAPABILITY", "CAPABILITY", onLine, nil); err != nil {
		return nil, err
	}
	c.capabilities = caps
	return caps, nil
}

// ListFolders runs LIST "" "*" and returns every reported mailbox.
func (c *Client) ListFolders(ctx context.Context) ([]interfaces.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.ListFolders")
	defer span.Finish()
	tracing.TagComponentImap(span)

	c.mu.Lock()
	defer c.mu.Unlock()

	var folders []interfaces.Folder
	err := c.run(ctx, func(ctx context.Context) error {
		if c.state != stateAuthenticated && c.state != stateSelected {
			return mverrors.ErrNotConnected
		}
		var out []interfaces.Folder
		onLine := func(line *responseLine) error {
			flags, delim, name, ok := parseListLine(line)
			if !ok {
				return nil
			}
			out = append(out, interfaces.Folder{
				Name:      name,
				Delimiter: delim,
				Flags:     flags,
				Path:      folderPath(name, delim),
			})
			return nil
		}
		if _, err := c.executeLocked(ctx, "LIST", `LIST "" "*"`, onLine, nil); err != nil {
			return err
		}
		folders = out
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("folders.count", len(folders))
	return folders, nil
}

// SelectFolder opens a mailbox read context and remembers it for reconnects.
func (c *Client) SelectFolder(ctx context.Context, name string) (*interfaces.FolderStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.SelectFolder")
	defer span.Finish()
	tracing.TagComponentImap(span)
	tracing.TagFolder(span, name)

	c.mu.Lock()
	defer c.mu.Unlock()

	var status *interfaces.FolderStatus
	err := c.run(ctx, func(ctx context.Context) error {
		s, err := c.selectLocked(ctx, name)
		if err != nil {
			return err
		}
		status = s
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("exists", status.Exists)
	return status, nil
}

func (c *Client) selectLocked(ctx context.Context, name string) (*interfaces.FolderStatus, error) {
	if c.state != stateAuthenticated && c.state != stateSelected {
		return nil, mverrors.ErrNotConnected
	}
	status := &interfaces.FolderStatus{}
	onLine := func(line *responseLine) error {
		applySelectLine(status, line)
		return nil
	}
	if _, err := c.executeLocked(ctx, "SELECT", "SELECT "+quoteString(name), onLine, nil); err != nil {
		return nil, err
	}
	c.state = stateSelected
	c.selectedFolder = name
	return status, nil
}

// SearchAllUIDs returns every UID in the selected folder, ascending.
func (c *Client) SearchAllUIDs(ctx context.Context) ([]uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.SearchAllUIDs")
	defer span.Finish()
	tracing.TagComponentImap(span)

	c.mu.Lock()
	defer c.mu.Unlock()
	tracing.TagFolder(span, c.selectedFolder)

	var uids []uint32
	err := c.run(ctx, func(ctx context.Context) error {
		found, err := c.searchAllLocked(ctx)
		if err != nil {
			return err
		}
		uids = found
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("uids.count", len(uids))
	return uids, nil
}

func (c *Client) searchAllLocked(ctx context.Context) ([]uint32, error) {
	if err := c.requireSelectedLocked(); err != nil {
		return nil, err
	}
	var uids []uint32
	onLine := func(line *responseLine) error {
		if parsed, ok := parseSearchLine(line); ok {
			uids = append(uids, parsed...)
		}
		return nil
	}
	if _, err := c.executeLocked(ctx, "UID SEARCH", "UID SEARCH ALL", onLine, nil); err != nil {
		return nil, err
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// FetchMessage returns the raw RFC 5322 bytes of one message.
func (c *Client) FetchMessage(ctx context.Context, uid uint32) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.FetchMessage")
	defer span.Finish()
	tracing.TagComponentImap(span)
	span.SetTag(tracing.SpanTagUid, uid)

	c.mu.Lock()
	defer c.mu.Unlock()

	var payload []byte
	err := c.run(ctx, func(ctx context.Context) error {
		body, err := c.fetchBodyLocked(ctx, uid, "BODY.PEEK[]")
		if err != nil {
			return err
		}
		payload = body
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("bytes", len(payload))
	return payload, nil
}

// FetchMessageHeader returns only the header section of one message.
func (c *Client) FetchMessageHeader(ctx context.Context, uid uint32) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.FetchMessageHeader")
	defer span.Finish()
	tracing.TagComponentImap(span)
	span.SetTag(tracing.SpanTagUid, uid)

	c.mu.Lock()
	defer c.mu.Unlock()

	var payload []byte
	err := c.run(ctx, func(ctx context.Context) error {
		body, err := c.fetchBodyLocked(ctx, uid, "BODY.PEEK[HEADER]")
		if err != nil {
			return err
		}
		payload = body
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return payload, nil
}

func (c *Client) fetchBodyLocked(ctx context.Context, uid uint32, item string) ([]byte, error) {
	if err := c.requireSelectedLocked(); err != nil {
		return nil, err
	}
	var payload []byte
	found := false
	onLine := func(line *responseLine) error {
		if !isFetchLine(line) {
			return nil
		}
		if n, ok := fetchItemNumber(line, "UID"); ok && n != uid {
			return nil
		}
		if lit, ok := firstLiteral(line); ok {
			payload = lit
			found = true
		}
		return nil
	}
	cmd := fmt.Sprintf("UID FETCH %d %s", uid, item)
	if _, err := c.executeLocked(ctx, "UID FETCH", cmd, onLine, nil); err != nil {
		return nil, err
	}
	if !found {
		return nil, protocolErrorf("no data returned for UID %d", uid)
	}
	return payload, nil
}

// FetchMessageSize returns the server-reported RFC822.SIZE of one message.
func (c *Client) FetchMessageSize(ctx context.Context, uid uint32) (uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.FetchMessageSize")
	defer span.Finish()
	tracing.TagComponentImap(span)
	span.SetTag(tracing.SpanTagUid, uid)

	c.mu.Lock()
	defer c.mu.Unlock()

	var size uint32
	err := c.run(ctx, func(ctx context.Context) error {
		if err := c.requireSelectedLocked(); err != nil {
			return err
		}
		found := false
		onLine := func(line *responseLine) error {
			if !isFetchLine(line) {
				return nil
			}
			if n, ok := fetchItemNumber(line, "UID"); ok && n != uid {
				return nil
			}
			if n, ok := fetchItemNumber(line, "RFC822.SIZE"); ok {
				size = n
				found = true
			}
			return nil
		}
		cmd := fmt.Sprintf("UID FETCH %d RFC822.SIZE", uid)
		if _, err := c.executeLocked(ctx, "UID FETCH", cmd, onLine, nil); err != nil {
			return err
		}
		if !found {
			return protocolErrorf("no size returned for UID %d", uid)
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return size, nil
}

// StreamMessageTo copies the raw message into w without buffering it whole.
// When the operation is retried the writer is rewound first, so w should be
// a file or an equivalent truncatable sink.
func (c *Client) StreamMessageTo(ctx context.Context, uid uint32, w io.Writer) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.StreamMessageTo")
	defer span.Finish()
	tracing.TagComponentImap(span)
	span.SetTag(tracing.SpanTagUid, uid)

	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	err := c.run(ctx, func(ctx context.Context) error {
		if err := resetWriter(w); err != nil {
			return err
		}
		n, err := c.streamLocked(ctx, uid, w)
		if err != nil {
			return err
		}
		total = n
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	span.SetTag("bytes", total)
	return total, nil
}

func (c *Client) streamLocked(ctx context.Context, uid uint32, w io.Writer) (int64, error) {
	if err := c.requireSelectedLocked(); err != nil {
		return 0, err
	}
	reader := c.reader
	found := false
	onLine := func(line *responseLine) error {
		if !isFetchLine(line) {
			return nil
		}
		if n, ok := fetchItemNumber(line, "UID"); ok && n != uid {
			return nil
		}
		if len(line.literals) > 0 {
			found = true
		}
		return nil
	}

	reader.setSink(w)
	defer reader.clearSink()

	cmd := fmt.Sprintf("UID FETCH %d BODY.PEEK[]", uid)
	if _, err := c.executeLocked(ctx, "UID FETCH", cmd, onLine, nil); err != nil {
		return 0, err
	}
	if !found {
		return 0, protocolErrorf("no data returned for UID %d", uid)
	}
	return reader.sinkBytes, nil
}

func resetWriter(w io.Writer) error {
	type truncater interface {
		Truncate(size int64) error
	}
	seeker, canSeek := w.(io.Seeker)
	trunc, canTruncate := w.(truncater)
	if !canSeek || !canTruncate {
		return nil
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind stream writer: %w", err)
	}
	if err := trunc.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate stream writer: %w", err)
	}
	return nil
}

// Logout sends LOGOUT and closes the transport. NO/BAD replies are ignored;
// the connection is going away either way.
func (c *Client) Logout(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.Logout")
	defer span.Finish()
	tracing.TagComponentImap(span)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resumable = false
	if c.transport == nil {
		return nil
	}
	_, err := c.executeLocked(ctx, "LOGOUT", "LOGOUT", nil, nil)
	c.teardownLocked()
	if err != nil {
		var statusErr *ServerStatusError
		if errors.As(err, &statusErr) {
			return nil
		}
		tracing.TraceErr(span, err)
		return err
	}
	log.Printf("[%s] logged out", c.config.Email)
	return nil
}

// Close drops the connection without the LOGOUT exchange.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumable = false
	c.teardownLocked()
	return nil
}

// SelectedFolder returns the folder remembered for reconnects.
func (c *Client) SelectedFolder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedFolder
}

func (c *Client) teardownLocked() {
	if c.transport != nil {
		c.transport.Close()
		c.recorder.SessionClosed(c.config.Host)
	}
	c.transport = nil
	c.reader = nil
	c.state = stateDisconnected
}

func (c *Client) requireSelectedLocked() error {
	switch c.state {
	case stateSelected:
		return nil
	case stateAuthenticated:
		return mverrors.ErrNoFolderSelected
	default:
		return mverrors.ErrNotConnected
	}
}

// run applies the retry policy around one operation: a throttled command is
// retried once after the raised delay, and a recoverable transport failure
// triggers the bounded reconnect sequence followed by a single retry. The
// original error is surfaced when reconnection fails.
func (c *Client) run(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}

	var statusErr *ServerStatusError
	if errors.As(err, &statusErr) {
		if !ratelimit.IsThrottleIndicator(statusErr.Text) {
			return err
		}
		c.tracker.RecordThrottle()
		c.recorder.ThrottleDetected(c.config.Host)
		c.log.Warnf("[%s] server throttled %s, retrying after %s", c.config.Email, statusErr.Command, c.tracker.Delay())
		err = op(ctx)
		if err == nil {
			return nil
		}
		// a repeat throttle still raises the delay but is not retried again
		if errors.As(err, &statusErr) && ratelimit.IsThrottleIndicator(statusErr.Text) {
			c.tracker.RecordThrottle()
			c.recorder.ThrottleDetected(c.config.Host)
		}
		return err
	}

	if !c.recoverableLocked(err) {
		return err
	}
	if rerr := c.reconnect(ctx); rerr != nil {
		c.log.Errorf("[%s] reconnect failed: %v", c.config.Email, rerr)
		return err
	}
	return op(ctx)
}

func (c *Client) recoverableLocked(err error) bool {
	if errors.Is(err, mverrors.ErrNotConnected) {
		return c.resumable
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Recoverable()
	}
	return false
}

// reconnect re-opens, re-authenticates and re-selects the remembered folder,
// waiting 1s, 2s and 4s before the successive attempts.
func (c *Client) reconnect(ctx context.Context) error {
	b := &backoff.Backoff{Min: time.Second, Max: 4 * time.Second, Factor: 2}
	folder := c.selectedFolder

	var lastErr error
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		wait := b.Duration()
		c.recorder.ReconnectAttempt(c.config.Host)
		c.log.Warnf("[%s] reconnect attempt %d/%d in %s", c.config.Email, attempt, maxReconnectAttempts, wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return &TransportError{Kind: TransportCancelled, Err: ctx.Err()}
		}

		if err := c.connectLocked(ctx); err != nil {
			lastErr = err
			continue
		}
		if folder != "" {
			if _, err := c.selectLocked(ctx, folder); err != nil {
				lastErr = err
				continue
			}
		}
		return nil
	}
	if lastErr == nil {
		lastErr = mverrors.ErrNotConnected
	}
	return lastErr
}

// guard aborts in-flight transport I/O if ctx is cancelled. The returned
// stop function must be called once the protected section is over.
func (c *Client) guard(ctx context.Context) func() {
	t := c.transport
	if t == nil {
		return func() {}
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			t.Abort()
		case <-stop:
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

type commandResult struct {
	status string
	text   string
}

// executeLocked writes one tagged command and reads until its completion.
// Untagged lines are handed to onLine; `+ ` continuations are answered via
// onContinuation, whose reply is base64-encoded on the wire. An absent
// onContinuation answers with an empty line to abort the exchange.
func (c *Client) executeLocked(ctx context.Context, verb, cmd string, onLine func(*responseLine) error, onContinuation func([]byte) ([]byte, error)) (*commandResult, error) {
	if c.transport == nil || c.reader == nil {
		return nil, mverrors.ErrNotConnected
	}
	if c.tracker != nil {
		if err := c.tracker.Wait(ctx); err != nil {
			c.teardownLocked()
			return nil, &TransportError{Kind: TransportCancelled, Err: err}
		}
	}
	c.recorder.CommandSent(verb)

	stopGuard := c.guard(ctx)
	defer stopGuard()

	tag := c.tags.next()
	if _, err := io.WriteString(c.transport, tag+" "+cmd+"\r\n"); err != nil {
		c.teardownLocked()
		return nil, classifyIOError(ctx, err)
	}

	for {
		line, err := c.reader.next()
		if err != nil {
			c.teardownLocked()
			return nil, classifyIOError(ctx, err)
		}

		if status, text, ok := taggedStatus(line, tag); ok {
			if status == "OK" {
				if c.tracker != nil {
					c.tracker.RecordSuccess()
				}
				return &commandResult{status: status, text: text}, nil
			}
			return nil, &ServerStatusError{Command: verb, Status: status, Text: text}
		}

		if line.isContinuation() {
			reply := []byte{}
			if onContinuation != nil {
				reply, err = onContinuation(decodeContinuation(line))
				if err != nil {
					c.teardownLocked()
					return nil, err
				}
			}
			encoded := base64.StdEncoding.EncodeToString(reply)
			if _, err := io.WriteString(c.transport, encoded+"\r\n"); err != nil {
				c.teardownLocked()
				return nil, classifyIOError(ctx, err)
			}
			continue
		}

		if line.isUntagged() && onLine != nil {
			if err := onLine(line); err != nil {
				c.teardownLocked()
				return nil, err
			}
		}
	}
}

func decodeContinuation(line *responseLine) []byte {
	raw := strings.TrimSpace(strings.TrimPrefix(string(line.text), "+"))
	if raw == "" {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}

// folderPath maps a server-encoded mailbox name onto its local path form:
// modified UTF-7 decoded, hierarchy delimiter replaced with '/'.
func folderPath(name, delim string) string {
	decoded, err := utf7.Encoding.NewDecoder().String(name)
	if err != nil || decoded == "" {
		decoded = name
	}
	if delim != "" && delim != "/" {
		decoded = strings.ReplaceAll(decoded, delim, "/")
	}
	return decoded
}
