package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

const (
	defaultDialTimeout = 30 * time.Second
	defaultReadTimeout = 60 * time.Second
)

type transportConfig struct {
	Host          string
	Port          int
	TLS           bool
	SocksProxyURL string
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
}

// transport is one duplex byte stream to the server. Every read and write
// carries the inactivity deadline; Abort delivers cancellation by expiring
// the deadline under an in-flight call.
type transport struct {
	conn        net.Conn
	idleTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func openTransport(ctx context.Context, cfg transportConfig) (*transport, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	var conn net.Conn
	var err error
	if cfg.SocksProxyURL != "" {
		conn, err = dialThroughProxy(ctx, cfg.SocksProxyURL, dialer, addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TransportError{Kind: TransportCancelled, Err: ctx.Err()}
		}
		return nil, &TransportError{Kind: TransportConnect, Err: fmt.Errorf("failed to connect to %s: %w", addr, err)}
	}

	if cfg.TLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: cfg.Host})
		hsCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		err = tlsConn.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return nil, &TransportError{Kind: TransportCancelled, Err: ctx.Err()}
			}
			return nil, &TransportError{Kind: TransportTLS, Err: err}
		}
		conn = tlsConn
	}

	return &transport{conn: conn, idleTimeout: cfg.ReadTimeout}, nil
}

func dialThroughProxy(ctx context.Context, proxyURL string, forward *net.Dialer, addr string) (net.Conn, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	d, err := proxy.FromURL(u, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy dialer: %w", err)
	}
	if contextDialer, ok := d.(proxy.ContextDialer); ok {
		return contextDialer.DialContext(ctx, "tcp", addr)
	}
	return d.Dial("tcp", addr)
}

func (t *transport) Read(p []byte) (int, error) {
	if t.idleTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
	}
	return t.conn.Read(p)
}

func (t *transport) Write(p []byte) (int, error) {
	if t.idleTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.idleTimeout))
	}
	return t.conn.Write(p)
}

// Abort expires the connection deadline so pending reads and writes return
// immediately. The session maps the resulting error to a cancellation.
func (t *transport) Abort() {
	t.conn.SetDeadline(time.Now())
}

func (t *transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// classifyIOError maps a raw read or write failure onto the typed transport
// errors, giving cancellation precedence over whatever the socket reported.
func classifyIOError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &TransportError{Kind: TransportCancelled, Err: ctx.Err()}
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	return &TransportError{Kind: TransportIO, Err: err}
}
