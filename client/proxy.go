package client

import (
	"context"
	"time"

	"github.com/bfix/gospel/logger"

	"github.com/liiesl/neverliie/config"
	"github.com/liiesl/neverliie/envelope"
	"github.com/liiesl/neverliie/launch"
	"github.com/liiesl/neverliie/registry"
	"github.com/liiesl/neverliie/transport"
)

// Engine is the Client Engine: it dials peers by name, probes liveness,
// wakes missing peers from the registry, and builds call proxies.
type Engine struct {
	reg *registry.Store
}

// New returns a Client Engine backed by reg.
func New(reg *registry.Store) *Engine {
	return &Engine{reg: reg}
}

// Ping dials peerName, sends __ping__, and waits up to the configured ping
// timeout for PONG. Any error, including no listener at all, returns
// false: ping never surfaces an error type.
func (e *Engine) Ping(peerName string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), config.Cfg.PingTimeout())
	defer cancel()

	conn, err := transport.Dial(ctx, peerName)
	if err != nil {
		return false
	}
	defer conn.Close()

	if err := conn.Send(ctx, envelope.Request(envelope.MethodPing, nil, nil)); err != nil {
		return false
	}
	reply, err := conn.Recv(ctx)
	if err != nil {
		return false
	}
	return reply.Kind == envelope.KindPong
}

// Wake looks up peerName's Launch Descriptor and, if its target still
// exists on disk, spawns it detached and polls Ping until it answers or
// timeout elapses. A missing registry entry, a pruned stale entry, or an
// exhausted timeout all return PeerOffline.
func (e *Engine) Wake(peerName string, timeout time.Duration) error {
	d, ok := e.reg.Get(peerName)
	if !ok {
		return &PeerOffline{Peer: peerName}
	}
	if !launch.TargetExists(d) {
		e.reg.Prune(peerName)
		return &PeerOffline{Peer: peerName}
	}
	if err := launch.Spawn(d); err != nil {
		logger.Printf(logger.WARN, "[client] wake: failed to spawn %s: %s\n", peerName, err.Error())
		return &PeerOffline{Peer: peerName}
	}

	deadline := time.Now().Add(timeout)
	interval := config.Cfg.WakePollInterval()
	for time.Now().Before(deadline) {
		if e.Ping(peerName) {
			return nil
		}
		time.Sleep(interval)
	}
	return &PeerOffline{Peer: peerName}
}

// GetPeer is a pure factory: it performs no I/O and simply returns a Proxy
// bound to peerName.
func (e *Engine) GetPeer(peerName string) *Proxy {
	return &Proxy{engine: e, name: peerName}
}

// CallOrWake is an opt-in convenience that composes Ping/Wake/Call for
// callers that don't want to manage peer lifecycle explicitly. It is
// never used by Proxy itself.
func (e *Engine) CallOrWake(peerName, method string, args []any, kwargs map[string]any, wakeTimeout time.Duration) (any, error) {
	if !e.Ping(peerName) {
		if err := e.Wake(peerName, wakeTimeout); err != nil {
			return nil, err
		}
	}
	return e.GetPeer(peerName).Call(method, args, kwargs)
}

// Proxy is a call surface bound to one peer name. Constructing one
// performs no I/O.
type Proxy struct {
	engine *Engine
	name   string
}

// Name returns the peer name this proxy targets.
func (p *Proxy) Name() string {
	return p.name
}

// Call performs a unary RPC. kwargs may include "_timeout" (seconds,
// default from config.Cfg.CallTimeout, 0 meaning "fail immediately with
// Timeout") which is stripped before the request is sent.
func (p *Proxy) Call(method string, args []any, kwargs map[string]any) (any, error) {
	timeout := callTimeout(kwargs)
	wireKwargs := stripClientKwargs(kwargs)

	if timeout <= 0 {
		return nil, &Timeout{Peer: p.name, Method: method}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := transport.Dial(ctx, p.name)
	if err != nil {
		return nil, &PeerOffline{Peer: p.name}
	}
	defer conn.Close()

	if err := conn.Send(ctx, envelope.Request(method, args, wireKwargs)); err != nil {
		return nil, &Timeout{Peer: p.name, Method: method}
	}
	reply, err := conn.Recv(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Timeout{Peer: p.name, Method: method}
		}
		return nil, &ProtocolError{Peer: p.name, Err: err}
	}

	switch reply.Kind {
	case envelope.KindOK:
		return reply.OK.Data, nil
	case envelope.KindError:
		return nil, &RemoteExecutionError{Peer: p.name, Method: method, Message: reply.Error.Msg}
	default:
		return nil, &ProtocolError{Peer: p.name, Err: envelope.ErrProtocol}
	}
}

// Stream performs a streaming RPC. kwargs follow the same "_timeout"
// convention as Call, applied only to the initial STREAM_START wait.
func (p *Proxy) Stream(method string, args []any, kwargs map[string]any) (*IPCStream, error) {
	timeout := callTimeout(kwargs)
	wireKwargs := stripClientKwargs(kwargs)

	if timeout <= 0 {
		return nil, &Timeout{Peer: p.name, Method: method}
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := transport.Dial(dialCtx, p.name)
	if err != nil {
		return nil, &PeerOffline{Peer: p.name}
	}

	if err := conn.Send(dialCtx, envelope.Request(method, args, wireKwargs)); err != nil {
		conn.Close()
		return nil, &Timeout{Peer: p.name, Method: method}
	}
	reply, err := conn.Recv(dialCtx)
	if err != nil {
		conn.Close()
		if dialCtx.Err() != nil {
			return nil, &Timeout{Peer: p.name, Method: method}
		}
		return nil, &ProtocolError{Peer: p.name, Err: err}
	}
	switch reply.Kind {
	case envelope.KindStreamStart:
		return newIPCStream(p.engine, p.name, reply.StreamStart.TaskID, conn), nil
	case envelope.KindError:
		conn.Close()
		return nil, &RemoteExecutionError{Peer: p.name, Method: method, Message: reply.Error.Msg}
	default:
		conn.Close()
		return nil, &ProtocolError{Peer: p.name, Err: envelope.ErrProtocol}
	}
}

func callTimeout(kwargs map[string]any) time.Duration {
	if kwargs == nil {
		return config.Cfg.CallTimeout()
	}
	v, ok := kwargs["_timeout"]
	if !ok {
		return config.Cfg.CallTimeout()
	}
	switch t := v.(type) {
	case float64:
		return time.Duration(t * float64(time.Second))
	case int:
		return time.Duration(t) * time.Second
	default:
		return config.Cfg.CallTimeout()
	}
}

// stripClientKwargs removes the client-only magic keys before a request
// crosses the wire.
func stripClientKwargs(kwargs map[string]any) map[string]any {
	if kwargs == nil {
		return nil
	}
	out := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		if k == "_timeout" || k == "_stream" {
			continue
		}
		out[k] = v
	}
	return out
}
