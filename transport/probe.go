package transport

import (
	"context"
	"net"
	"time"
)

// Probe reports whether a peer named peerName is already listening, by
// attempting a short-lived dial against its socket. This is the first half
// of the singleton boot sequence: a successful dial means another process
// already owns the name and this process must exit cleanly.
func Probe(peerName string) bool {
	return probeSocket(SocketPath(peerName), 500*time.Millisecond)
}

// probeSocket reports whether something answers a dial against the Unix
// domain socket at path within timeout. Shared by Probe (peer-name boot
// check) and Listen (stale-socket-removal gate).
func probeSocket(path string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
