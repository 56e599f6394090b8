package imap

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailvault/internal/enum"
	"github.com/customeros/mailvault/internal/imaptest"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/metrics"
	"github.com/customeros/mailvault/services/ratelimit"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func fastProfile() ratelimit.Profile {
	return ratelimit.Profile{BaseDelay: time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2.0}
}

func newTestClient(s *imaptest.Server, config ClientConfig, profile ratelimit.Profile) (*Client, *ratelimit.Tracker) {
	config.Host = s.Host()
	config.Port = s.Port()
	if config.Username == "" {
		config.Username = "user@example.com"
	}
	if config.Email == "" {
		config.Email = config.Username
	}
	tracker := ratelimit.NewTracker(profile)
	return NewClient(config, tracker, getLogger(), &metrics.NoopRecorder{}), tracker
}

func passwordConfig() ClientConfig {
	return ClientConfig{AuthMethod: enum.AuthPassword, Password: "secret"}
}

func TestClientConnectAndLogin(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{imaptest.LoginStep()})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()

	// Act
	err := client.Connect(context.Background())

	// Assert
	require.NoError(t, err)
	commands := server.SentCommands()
	require.Len(t, commands, 1)
	assert.Equal(t, `LOGIN "user@example.com" "secret"`, commands[0])
}

func TestClientConnectRejectsByeGreeting(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, nil)
	server.SetGreeting("* BYE too many connections\r\n")
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()

	// Act
	err := client.Connect(context.Background())

	// Assert
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Reason, "BYE")
}

func TestClientConnectBadCredentials(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{
		{Expect: "LOGIN", Reply: "%TAG% NO [AUTHENTICATIONFAILED] invalid credentials\r\n"},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()

	// Act
	err := client.Connect(context.Background())

	// Assert
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Reason, "invalid credentials")
}

func TestClientListFolders(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		{
			Expect: `LIST "" "*"`,
			Reply: "* LIST (\\HasNoChildren) \"/\" \"INBOX\"\r\n" +
				"* LIST (\\Noselect \\HasChildren) \"/\" \"[Gmail]\"\r\n" +
				"* LIST (\\HasNoChildren) \"/\" \"Entw&APw-rfe\"\r\n" +
				"%TAG% OK LIST completed\r\n",
		},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))

	// Act
	folders, err := client.ListFolders(context.Background())

	// Assert
	require.NoError(t, err)
	require.Len(t, folders, 3)
	assert.Equal(t, "INBOX", folders[0].Path)
	assert.True(t, folders[0].Selectable())
	assert.Equal(t, "[Gmail]", folders[1].Path)
	assert.False(t, folders[1].Selectable())
	assert.Equal(t, "Entw&APw-rfe", folders[2].Name)
	assert.Equal(t, "Entwürfe", folders[2].Path)
}

func TestClientSelectFolder(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{imaptest.LoginStep(), imaptest.SelectStep("INBOX")})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))

	// Act
	status, err := client.SelectFolder(context.Background(), "INBOX")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint32(3), status.Exists)
	assert.Equal(t, uint32(0), status.Recent)
	assert.Equal(t, uint32(4392), status.UIDNext)
	assert.Equal(t, uint32(3857529045), status.UIDValidity)
	assert.Equal(t, "INBOX", client.SelectedFolder())
}

func TestClientSearchAllUIDs(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{
			Expect: "UID SEARCH ALL",
			Reply: "* SEARCH 30 10\r\n" +
				"* SEARCH 20\r\n" +
				"%TAG% OK SEARCH completed\r\n",
		},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	// Act
	uids, err := client.SearchAllUIDs(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 20, 30}, uids)
}

func TestClientSearchRequiresSelectedFolder(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{imaptest.LoginStep()})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))

	// Act
	_, err := client.SearchAllUIDs(context.Background())

	// Assert
	require.Error(t, err)
	assert.Zero(t, server.CountCommands("UID SEARCH"))
}

func TestClientFetchMessage(t *testing.T) {
	// Arrange
	body := "From: a@b.example\r\nSubject: hi\r\n\r\nhello world\r\n"
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 10 BODY.PEEK[]", Reply: imaptest.FetchBodyReply(10, body)},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	// Act
	raw, err := client.FetchMessage(context.Background(), 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte(body), raw)
}

func TestClientFetchMessageIgnoresOtherUIDs(t *testing.T) {
	// Arrange: an unsolicited FETCH for a different message precedes the
	// answer for the requested UID.
	body := "From: a@b.example\r\n\r\nwanted\r\n"
	decoy := "From: x@y.example\r\n\r\ndecoy\r\n"
	reply := fmt.Sprintf("* 1 FETCH (UID 9 BODY[] {%d}\r\n%s)\r\n", len(decoy), decoy) +
		fmt.Sprintf("* 2 FETCH (UID 10 BODY[] {%d}\r\n%s)\r\n", len(body), body) +
		"%TAG% OK FETCH completed\r\n"
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 10 BODY.PEEK[]", Reply: reply},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	// Act
	raw, err := client.FetchMessage(context.Background(), 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte(body), raw)
}

func TestClientFetchMessageHeader(t *testing.T) {
	// Arrange
	header := "From: a@b.example\r\nSubject: hi\r\nDate: Mon, 02 Jan 2006 15:04:05 -0700\r\n\r\n"
	reply := fmt.Sprintf("* 1 FETCH (UID 10 BODY[HEADER] {%d}\r\n%s)\r\n", len(header), header) +
		"%TAG% OK FETCH completed\r\n"
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 10 BODY.PEEK[HEADER]", Reply: reply},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	// Act
	raw, err := client.FetchMessageHeader(context.Background(), 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte(header), raw)
}

func TestClientFetchMessageSize(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{
			Expect: "UID FETCH 10 RFC822.SIZE",
			Reply:  "* 1 FETCH (UID 10 RFC822.SIZE 20480)\r\n%TAG% OK FETCH completed\r\n",
		},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	// Act
	size, err := client.FetchMessageSize(context.Background(), 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint32(20480), size)
}

func TestClientStreamMessageTo(t *testing.T) {
	// Arrange: a body large enough to span several reader buffers.
	body := "From: big@example.com\r\n\r\n" + strings.Repeat("0123456789abcdef", 8192) + "\r\n"
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 42 BODY.PEEK[]", Reply: imaptest.FetchBodyReply(42, body)},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	var sink bytes.Buffer

	// Act
	n, err := client.StreamMessageTo(context.Background(), 42, &sink)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, body, sink.String())
}

func TestClientXOAuth2MissingCapability(t *testing.T) {
	// Arrange: server does not advertise AUTH=XOAUTH2, so the client must
	// fail before ever sending AUTHENTICATE.
	server := imaptest.NewServer(t, []imaptest.Step{
		{Expect: "CAPABILITY", Reply: "* CAPABILITY IMAP4rev1 IDLE\r\n%TAG% OK CAPABILITY completed\r\n"},
	})
	config := ClientConfig{
		AuthMethod: enum.AuthOAuth2,
		AccessToken: func(ctx context.Context) (string, error) {
			return "tok-123", nil
		},
	}
	client, _ := newTestClient(server, config, fastProfile())
	defer client.Close()

	// Act
	err := client.Connect(context.Background())

	// Assert
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Reason, "AUTH=XOAUTH2")
	assert.Zero(t, server.CountCommands("AUTHENTICATE"))
}

func TestClientXOAuth2Authenticate(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{
		{Expect: "CAPABILITY", Reply: "* CAPABILITY IMAP4rev1 AUTH=XOAUTH2\r\n%TAG% OK CAPABILITY completed\r\n"},
		{Expect: "AUTHENTICATE XOAUTH2 ", Reply: "%TAG% OK authenticated\r\n"},
	})
	config := ClientConfig{
		AuthMethod: enum.AuthOAuth2,
		AccessToken: func(ctx context.Context) (string, error) {
			return "tok-123", nil
		},
	}
	client, _ := newTestClient(server, config, fastProfile())
	defer client.Close()

	// Act
	err := client.Connect(context.Background())

	// Assert
	require.NoError(t, err)
	commands := server.SentCommands()
	require.Len(t, commands, 2)
	encoded := strings.TrimPrefix(commands[1], "AUTHENTICATE XOAUTH2 ")
	payload, decodeErr := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, decodeErr)
	assert.Equal(t, "user=user@example.com\x01auth=Bearer tok-123\x01\x01", string(payload))
}

func TestClientXOAuth2ServerRejects(t *testing.T) {
	// Arrange: server answers the initial response with an error challenge;
	// the client must abort with an empty line per the SASL exchange.
	server := imaptest.NewServer(t, []imaptest.Step{
		{Expect: "CAPABILITY", Reply: "* CAPABILITY IMAP4rev1 AUTH=XOAUTH2\r\n%TAG% OK CAPABILITY completed\r\n"},
		{
			Expect:             "AUTHENTICATE XOAUTH2 ",
			Reply:              "+ eyJzdGF0dXMiOiI0MDAifQ==\r\n",
			ExpectContinuation: true,
			FinalReply:         "%TAG% NO AUTHENTICATE failed\r\n",
		},
	})
	config := ClientConfig{
		AuthMethod: enum.AuthOAuth2,
		AccessToken: func(ctx context.Context) (string, error) {
			return "tok-bad", nil
		},
	}
	client, _ := newTestClient(server, config, fastProfile())
	defer client.Close()

	// Act
	err := client.Connect(context.Background())

	// Assert
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Contains(t, authErr.Reason, "AUTHENTICATE failed")
	continuations := server.Continuations()
	require.Len(t, continuations, 1)
	assert.Equal(t, "", continuations[0])
}

func TestClientThrottleRetriesOnce(t *testing.T) {
	// Arrange: first FETCH is refused with a throttle keyword, the retry
	// succeeds. The tracker delay must have doubled from its base.
	body := "From: a@b.example\r\n\r\nthrottled then fine\r\n"
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 10 BODY.PEEK[]", Reply: "%TAG% NO [THROTTLED] try again later\r\n"},
		{Expect: "UID FETCH 10 BODY.PEEK[]", Reply: imaptest.FetchBodyReply(10, body)},
	})
	profile := ratelimit.Profile{BaseDelay: 100 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 2.0}
	client, tracker := newTestClient(server, passwordConfig(), profile)
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	// Act
	raw, err := client.FetchMessage(context.Background(), 10)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte(body), raw)
	assert.Equal(t, 2, server.CountCommands("UID FETCH 10"))
	// one retry succeeded, so the streak is consumed but the raised delay stays
	assert.Equal(t, 200*time.Millisecond, tracker.Delay())
	assert.Equal(t, 0, tracker.ConsecutiveThrottles())
}

func TestClientThrottlePersistentFailure(t *testing.T) {
	// Arrange: both attempts are throttled; the operation fails after
	// exactly one retry and the delay has been raised twice.
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 10 BODY.PEEK[]", Reply: "%TAG% NO [OVERQUOTA] mailbox busy\r\n"},
		{Expect: "UID FETCH 10 BODY.PEEK[]", Reply: "%TAG% NO rate limit exceeded\r\n"},
	})
	profile := ratelimit.Profile{BaseDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
	client, tracker := newTestClient(server, passwordConfig(), profile)
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	// Act
	_, err = client.FetchMessage(context.Background(), 10)

	// Assert
	require.Error(t, err)
	var statusErr *ServerStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 2, server.CountCommands("UID FETCH 10"))
	assert.Equal(t, 4*time.Millisecond, tracker.Delay())
	assert.Equal(t, 2, tracker.ConsecutiveThrottles())
}

func TestClientReconnectRetriesOperation(t *testing.T) {
	if testing.Short() {
		t.Skip("reconnect backoff waits a full second")
	}

	// Arrange: the connection dies mid UID FETCH 77. The client must
	// reconnect, re-authenticate, re-select the folder and repeat the fetch
	// exactly once.
	body := "From: survivor@example.com\r\n\r\nstill here\r\n"
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 77 BODY.PEEK[]", Drop: true},
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 77 BODY.PEEK[]", Reply: imaptest.FetchBodyReply(77, body)},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	// Act
	start := time.Now()
	raw, err := client.FetchMessage(context.Background(), 77)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte(body), raw)
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "first reconnect wait is one second")
	assert.Equal(t, 2, server.CountCommands("UID FETCH 77"))
	assert.Equal(t, 2, server.CountCommands("LOGIN"))
	assert.Equal(t, "INBOX", client.SelectedFolder())
}

func TestClientReconnectFailureSurfacesOriginalError(t *testing.T) {
	if testing.Short() {
		t.Skip("exhausting reconnect attempts waits several seconds")
	}

	// Arrange: the server goes away entirely after the drop, so every
	// reconnect attempt fails and the original transport error surfaces.
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 77 BODY.PEEK[]", Drop: true},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)
	require.NoError(t, server.CloseListener())

	// Act
	_, err = client.FetchMessage(context.Background(), 77)

	// Assert
	require.Error(t, err)
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, TransportIO, transportErr.Kind)
	assert.Equal(t, 1, server.CountCommands("UID FETCH 77"))
}

func TestClientCancelledFetchNotRetried(t *testing.T) {
	// Arrange: the server stalls long past the context deadline.
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		imaptest.SelectStep("INBOX"),
		{Expect: "UID FETCH 10 BODY.PEEK[]", Stall: 2 * time.Second, Reply: "%TAG% OK FETCH completed\r\n"},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	defer client.Close()
	require.NoError(t, client.Connect(context.Background()))
	_, err := client.SelectFolder(context.Background(), "INBOX")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	// Act
	start := time.Now()
	_, err = client.FetchMessage(ctx, 10)

	// Assert
	require.Error(t, err)
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, TransportCancelled, transportErr.Kind)
	assert.Less(t, time.Since(start), time.Second, "cancellation must not wait for the server")
	assert.Equal(t, 1, server.CountCommands("UID FETCH 10"))
}

func TestClientLogout(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, []imaptest.Step{
		imaptest.LoginStep(),
		{Expect: "LOGOUT", Reply: "* BYE logging out\r\n%TAG% OK LOGOUT completed\r\n"},
	})
	client, _ := newTestClient(server, passwordConfig(), fastProfile())
	require.NoError(t, client.Connect(context.Background()))

	// Act
	err := client.Logout(context.Background())

	// Assert
	require.NoError(t, err)
	// the session is gone; further commands fail without touching the wire
	_, err = client.ListFolders(context.Background())
	require.Error(t, err)
	assert.Zero(t, server.CountCommands("LIST"))
}

func TestClientCommandsFailWhenDisconnected(t *testing.T) {
	// Arrange
	server := imaptest.NewServer(t, nil)
	client, _ := newTestClient(server, passwordConfig(), fastProfile())

	// Act
	_, err := client.ListFolders(context.Background())

	// Assert
	require.Error(t, err)
	assert.Empty(t, server.SentCommands())
}
