// Package imaptest provides a scripted IMAP endpoint for tests. Scripts are
// exact command/response exchanges, which lets tests pin wire-level details
// a real server implementation would hide: dropped connections mid-command,
// throttle status lines, stalled replies.
package imaptest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// Step scripts one command/response exchange. %TAG% in replies is
// substituted with the tag the client actually sent.
type Step struct {
	Expect string // required command prefix, without the tag
	Reply  string // raw wire bytes, CRLF included

	// continuation exchanges (AUTHENTICATE): send Reply, read one client
	// line, then send FinalReply.
	ExpectContinuation bool
	FinalReply         string

	Drop  bool          // close the connection instead of replying
	Stall time.Duration // delay before acting on the command
}

// Server is a single-goroutine IMAP endpoint that walks a shared step list
// across connections, so dropped-connection scripts continue where the
// previous connection left off.
type Server struct {
	t  *testing.T
	ln net.Listener

	host string
	port int

	mu               sync.Mutex
	greeting         string
	steps            []Step
	index            int
	commands         []string
	continuationData []string
}

func NewServer(t *testing.T, steps []Step) *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &Server{
		t:        t,
		ln:       ln,
		host:     "127.0.0.1",
		port:     ln.Addr().(*net.TCPAddr).Port,
		greeting: "* OK test server ready\r\n",
		steps:    steps,
	}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *Server) Host() string { return s.host }

func (s *Server) Port() int { return s.port }

func (s *Server) SetGreeting(greeting string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeting = greeting
}

// CloseListener stops accepting connections, making every later dial fail.
func (s *Server) CloseListener() error {
	return s.ln.Close()
}

// serve handles connections one at a time; reconnecting clients get the next
// unconsumed steps on their fresh connection.
func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	greeting := s.greeting
	s.mu.Unlock()
	if _, err := io.WriteString(conn, greeting); err != nil {
		return
	}

	reader := bufio.NewReader(conn)
	for {
		raw, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimRight(raw, "\r\n")
		parts := strings.SplitN(line, " ", 2)
		if len(parts) < 2 {
			continue
		}
		tag, command := parts[0], parts[1]

		step := s.take(command)
		if step == nil {
			_, _ = io.WriteString(conn, tag+" BAD unexpected command\r\n")
			continue
		}
		if step.Stall > 0 {
			time.Sleep(step.Stall)
		}
		if step.Drop {
			return
		}
		if _, err := io.WriteString(conn, strings.ReplaceAll(step.Reply, "%TAG%", tag)); err != nil {
			return
		}
		if step.ExpectContinuation {
			contRaw, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			s.mu.Lock()
			s.continuationData = append(s.continuationData, strings.TrimRight(contRaw, "\r\n"))
			s.mu.Unlock()
			if _, err := io.WriteString(conn, strings.ReplaceAll(step.FinalReply, "%TAG%", tag)); err != nil {
				return
			}
		}
	}
}

func (s *Server) take(command string) *Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)
	if s.index >= len(s.steps) {
		return nil
	}
	step := &s.steps[s.index]
	if !strings.HasPrefix(command, step.Expect) {
		s.t.Errorf("step %d: expected command %q, got %q", s.index, step.Expect, command)
		return nil
	}
	s.index++
	return step
}

// SentCommands returns every command line received so far, tags stripped.
func (s *Server) SentCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Continuations returns the client lines sent in reply to "+" challenges.
func (s *Server) Continuations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.continuationData))
	copy(out, s.continuationData)
	return out
}

func (s *Server) CountCommands(prefix string) int {
	count := 0
	for _, command := range s.SentCommands() {
		if strings.HasPrefix(command, prefix) {
			count++
		}
	}
	return count
}

// LoginStep accepts any LOGIN command.
func LoginStep() Step {
	return Step{Expect: "LOGIN", Reply: "%TAG% OK LOGIN completed\r\n"}
}

// SelectStep accepts SELECT for the named folder and reports a small
// mailbox.
func SelectStep(name string) Step {
	return Step{
		Expect: `SELECT "` + name + `"`,
		Reply: "* 3 EXISTS\r\n" +
			"* 0 RECENT\r\n" +
			"* OK [UIDVALIDITY 3857529045] UIDs valid\r\n" +
			"* OK [UIDNEXT 4392] predicted next UID\r\n" +
			"%TAG% OK [READ-WRITE] SELECT completed\r\n",
	}
}

// FetchBodyReply builds the untagged FETCH response carrying body as a
// literal.
func FetchBodyReply(uid uint32, body string) string {
	return fmt.Sprintf("* 1 FETCH (UID %d BODY[] {%d}\r\n", uid, len(body)) +
		body + ")\r\n" +
		"%TAG% OK FETCH completed\r\n"
}
