// Package server implements the accept loop, per-connection dispatch, and
// task lifecycle of a peer's Server Engine.
package server

import "errors"

// ErrMethodNotFound is returned to a client whose request names an
// operation not present in the Exposed Operation Table.
var ErrMethodNotFound = errors.New("method not found")
