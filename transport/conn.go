// Package transport provides the host-local duplex transport peers use to
// exchange envelopes: Unix domain sockets, one per peer name.
package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"

	"github.com/liiesl/neverliie/envelope"
)

// Errors returned by Conn operations.
var (
	ErrConnNotOpen = errors.New("transport: connection not open")
	ErrInterrupted = errors.New("transport: operation interrupted")
)

// SocketDir returns the directory new peer sockets are created in:
// $XDG_RUNTIME_DIR if set, the OS temp directory otherwise.
func SocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// SocketPath returns the fixed Unix domain socket path for a peer name:
// NeverLiie_<peer-name> inside SocketDir.
func SocketPath(peerName string) string {
	return filepath.Join(SocketDir(), "NeverLiie_"+peerName)
}

// Conn is a single duplex connection carrying envelopes, wrapping a
// net.Conn. Reads and writes are interruptible via context cancellation.
type Conn struct {
	raw net.Conn
}

// NewConn wraps an already-established net.Conn.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// Dial connects to the peer named name's socket. Used for outgoing client
// calls; the singleton check at boot goes through Probe instead.
func Dial(ctx context.Context, peerName string) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "unix", SocketPath(peerName))
	if err != nil {
		return nil, err
	}
	return &Conn{raw: raw}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	if c.raw == nil {
		return ErrConnNotOpen
	}
	err := c.raw.Close()
	c.raw = nil
	return err
}

// Send writes env to the connection. The write runs in a goroutine so a
// cancelled ctx can abandon it rather than block forever on a wedged peer.
func (c *Conn) Send(ctx context.Context, env *envelope.Envelope) error {
	raw := c.raw
	if raw == nil {
		return ErrConnNotOpen
	}
	done := make(chan error, 1)
	go func() {
		done <- envelope.Write(raw, env)
	}()
	select {
	case <-ctx.Done():
		c.Close()
		return ErrInterrupted
	case err := <-done:
		return err
	}
}

type recvResult struct {
	env *envelope.Envelope
	err error
}

// Recv reads the next envelope from the connection, honoring ctx
// cancellation the same way Send does.
func (c *Conn) Recv(ctx context.Context) (*envelope.Envelope, error) {
	raw := c.raw
	if raw == nil {
		return nil, ErrConnNotOpen
	}
	ch := make(chan recvResult, 1)
	go func() {
		env, err := envelope.Read(raw)
		ch <- recvResult{env, err}
	}()
	select {
	case <-ctx.Done():
		c.Close()
		return nil, ErrInterrupted
	case res := <-ch:
		return res.env, res.err
	}
}
