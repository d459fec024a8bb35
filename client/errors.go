// Package client implements the Client Engine: ping, wake, and the unary
// and streaming call paths of a peer proxy.
package client

import "fmt"

// PeerOffline is returned when the target peer is not running and, for
// Wake, could not be launched.
type PeerOffline struct {
	Peer string
}

func (e *PeerOffline) Error() string {
	return fmt.Sprintf("peer %q is offline", e.Peer)
}

// Timeout is returned when a unary call does not receive a reply within
// its _timeout budget.
type Timeout struct {
	Peer   string
	Method string
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("timed out waiting for %s.%s", e.Peer, e.Method)
}

// RemoteExecutionError wraps the message of a server-returned ERROR frame.
type RemoteExecutionError struct {
	Peer    string
	Method  string
	Message string
}

func (e *RemoteExecutionError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Peer, e.Method, e.Message)
}

// ProtocolError signals a malformed envelope or a frame unexpected for the
// current phase. The client treats it as peer-offline-equivalent after
// closing the connection.
type ProtocolError struct {
	Peer string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error talking to %s: %s", e.Peer, e.Err.Error())
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
