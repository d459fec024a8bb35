package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/bfix/gospel/logger"
)

// ErrAddrInUse is returned by Listen when the socket path is already bound
// by a live listener (the singleton-enforcement signal at boot).
var ErrAddrInUse = errors.New("transport: address already in use")

// Listener accepts incoming peer connections on a single Unix domain
// socket.
type Listener struct {
	path     string
	listener net.Listener
	running  bool
}

// Listen binds the socket for peerName and starts accepting connections,
// delivering each to hdlr. It is the server half of the boot sequence: the
// caller must have already confirmed via Dial that no other peer holds
// this name.
//
// A stale socket file left behind by a crashed peer is removed before
// binding, since Listen on an existing path otherwise fails with
// "address already in use" even though nothing is listening. The removal
// is gated on a dial probe: if something still answers on path, it is not
// stale, and the bind is left to fail so the caller observes ErrAddrInUse
// rather than unlinking a live peer's socket out from under it.
func Listen(ctx context.Context, peerName string, hdlr chan<- *Conn) (*Listener, error) {
	path := SocketPath(peerName)
	if _, err := os.Stat(path); err == nil {
		if !probeSocket(path, 200*time.Millisecond) {
			os.Remove(path)
		}
	}
	var lc net.ListenConfig
	raw, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, ErrAddrInUse
		}
		return nil, err
	}
	l := &Listener{path: path, listener: raw, running: true}
	go l.acceptLoop(hdlr)
	return l, nil
}

func (l *Listener) acceptLoop(hdlr chan<- *Conn) {
	for l.running {
		raw, err := l.listener.Accept()
		if err != nil {
			if l.running {
				logger.Printf(logger.WARN, "[transport] accept failed: %s\n", err.Error())
			}
			break
		}
		hdlr <- &Conn{raw: raw}
	}
	close(hdlr)
}

// Close stops accepting new connections and removes the socket file.
func (l *Listener) Close() error {
	l.running = false
	if l.listener == nil {
		return nil
	}
	err := l.listener.Close()
	l.listener = nil
	os.Remove(l.path)
	return err
}

// Path returns the socket file path this listener is bound to.
func (l *Listener) Path() string {
	return l.path
}
