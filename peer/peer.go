// Package peer implements the Facade: the single object per process that
// composes the Envelope Codec, Registry Store, Transport, Server Engine
// and Client Engine into one boot-then-serve-then-signal lifecycle.
package peer

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/bfix/gospel/logger"

	"github.com/liiesl/neverliie/client"
	"github.com/liiesl/neverliie/config"
	"github.com/liiesl/neverliie/launch"
	"github.com/liiesl/neverliie/registry"
	"github.com/liiesl/neverliie/server"
	"github.com/liiesl/neverliie/transport"
)

// ErrDuplicate is returned by New when another process already owns the
// requested peer name. Callers at the process-entry level should treat
// this as a clean exit with status 0, not an application error.
var ErrDuplicate = errors.New("peer: another process already owns this name")

// ErrInvalidName is returned for a peer name that is empty or contains
// non-printable characters.
var ErrInvalidName = errors.New("peer: name must be non-empty and printable")

// Peer is the process-scoped singleton object: simultaneously a server
// (exposing named operations) and a client (calling other peers).
type Peer struct {
	name string

	registry *registry.Store
	engine   *server.Engine
	ops      *server.OperationTable
	cl       *client.Engine

	ctx    context.Context
	cancel context.CancelFunc
}

// logLevelFromString maps a config string to gospel/logger's level
// constants, defaulting to WARN for an unrecognized value.
func logLevelFromString(s string) int {
	switch s {
	case "DBG":
		return logger.DBG
	case "INFO":
		return logger.INFO
	case "WARN":
		return logger.WARN
	case "ERROR":
		return logger.ERROR
	default:
		return logger.WARN
	}
}

func validName(name string) bool {
	if len(name) == 0 {
		return false
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// New performs the boot sequence: dial-probe singleton check, registry
// self-registration, listener bind, and accept loop start. It returns
// ErrDuplicate if another process already answers for name.
func New(name string) (*Peer, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	if err := config.Load(); err != nil {
		logger.Printf(logger.WARN, "[peer] config load failed, using defaults: %s\n", err.Error())
	}
	logger.SetLogLevel(logLevelFromString(config.Cfg.LogLevel))

	if transport.Probe(name) {
		return nil, ErrDuplicate
	}

	regPath := config.Cfg.RegistryPath
	if regPath == "" {
		var err error
		regPath, err = registry.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	reg := registry.New(regPath)

	ops := server.NewOperationTable()
	eng := server.NewEngine(name, ops)

	ctx, cancel := context.WithCancel(context.Background())
	if err := eng.Start(ctx); err != nil {
		cancel()
		if errors.Is(err, transport.ErrAddrInUse) {
			// A race between the probe and the bind: another process won.
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, err
	}

	self, err := launch.DetectSelf()
	if err != nil {
		logger.Printf(logger.WARN, "[peer] self-detection failed, registry entry omitted: %s\n", err.Error())
	} else {
		reg.Put(name, self)
	}

	p := &Peer{
		name:     name,
		registry: reg,
		engine:   eng,
		ops:      ops,
		cl:       client.New(reg),
		ctx:      ctx,
		cancel:   cancel,
	}
	logger.Printf(logger.INFO, "[peer] '%s' listening\n", name)
	return p, nil
}

// Name returns this peer's name.
func (p *Peer) Name() string {
	return p.name
}

// Expose registers handler under name in the Exposed Operation Table.
func (p *Peer) Expose(name string, handler server.Handler) {
	p.ops.Register(name, handler)
}

// Ping probes whether peerName is currently listening.
func (p *Peer) Ping(peerName string) bool {
	return p.cl.Ping(peerName)
}

// Wake launches peerName from the registry if it isn't already running,
// waiting up to timeout for it to answer Ping.
func (p *Peer) Wake(peerName string, timeout time.Duration) error {
	return p.cl.Wake(peerName, timeout)
}

// GetPeer returns a call proxy for peerName. Pure factory, no I/O.
func (p *Peer) GetPeer(peerName string) *client.Proxy {
	return p.cl.GetPeer(peerName)
}

// CallOrWake is a convenience wrapper exposed on the facade for callers
// that opt into implicit peer lifecycle management instead of explicit
// ping/wake/call.
func (p *Peer) CallOrWake(peerName, method string, args []any, kwargs map[string]any, wakeTimeout time.Duration) (any, error) {
	return p.cl.CallOrWake(peerName, method, args, kwargs, wakeTimeout)
}

// List returns a read-only snapshot of the registry.
func (p *Peer) List() map[string]registry.Descriptor {
	return p.registry.List()
}

// Shutdown sets running=false, closes the listener, and joins the accept
// worker. Outstanding connections complete on their own; in-flight
// streams observe the cancelled context via the same pathway the Task
// Table uses for per-task cancellation.
func (p *Peer) Shutdown() {
	logger.Printf(logger.INFO, "[peer] '%s' shutting down\n", p.name)
	p.cancel()
	p.engine.Stop()
	p.registry.Prune(p.name)
}
