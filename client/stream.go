package client

import (
	"context"
	"io"
	"sync"

	"github.com/bfix/gospel/logger"

	"github.com/liiesl/neverliie/config"
	"github.com/liiesl/neverliie/envelope"
	"github.com/liiesl/neverliie/transport"
)

// IPCStream is the client-side handle to a server-side Task: it holds the
// task-id and the connection STREAM_START arrived on, and yields PROGRESS
// items until STREAM_END, an ERROR frame, or transport EOF.
type IPCStream struct {
	engine *Engine
	peer   string
	taskID string

	mu     sync.Mutex
	conn   *transport.Conn
	active bool
}

func newIPCStream(engine *Engine, peer, taskID string, conn *transport.Conn) *IPCStream {
	return &IPCStream{engine: engine, peer: peer, taskID: taskID, conn: conn, active: true}
}

// TaskID returns the server-assigned task identifier this stream tracks.
func (s *IPCStream) TaskID() string {
	return s.taskID
}

// Next blocks for the next item. It returns (value, true, nil) for a
// PROGRESS frame, (nil, false, nil) on clean STREAM_END or transport EOF,
// and a non-nil error for anything else.
func (s *IPCStream) Next(ctx context.Context) (any, bool, error) {
	s.mu.Lock()
	conn := s.conn
	active := s.active
	s.mu.Unlock()
	if !active || conn == nil {
		return nil, false, nil
	}

	env, err := conn.Recv(ctx)
	if err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, &ProtocolError{Peer: s.peer, Err: err}
	}

	switch env.Kind {
	case envelope.KindProgress:
		return env.Progress.Data, true, nil
	case envelope.KindStreamEnd:
		return nil, false, nil
	case envelope.KindError:
		return nil, false, &RemoteExecutionError{Peer: s.peer, Message: env.Error.Msg}
	default:
		return nil, false, &ProtocolError{Peer: s.peer, Err: envelope.ErrProtocol}
	}
}

// Cancel marks the stream inactive, closes its connection, then sends
// __cancel_task__ on a fresh connection to the same peer and discards the
// reply. Cancel is idempotent: calling it more than once has the same
// observable effect as calling it once.
func (s *IPCStream) Cancel() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Cfg.PingTimeout())
	defer cancel()

	cancelConn, err := transport.Dial(ctx, s.peer)
	if err != nil {
		logger.Printf(logger.DBG, "[client] cancel: %s unreachable, task-id %s presumed gone\n", s.peer, s.taskID)
		return
	}
	defer cancelConn.Close()

	req := envelope.Request(envelope.MethodCancelTask, nil, map[string]any{"task_id": s.taskID})
	if err := cancelConn.Send(ctx, req); err != nil {
		return
	}
	// discard the reply; cancellation is fire-and-forget from here.
	cancelConn.Recv(ctx)
}

// Drain reads every remaining item into a slice, stopping at STREAM_END,
// EOF, or error. A convenience used by tests and simple callers that don't
// need incremental delivery.
func (s *IPCStream) Drain(ctx context.Context) ([]any, error) {
	var values []any
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return values, err
		}
		if !ok {
			return values, nil
		}
		values = append(values, v)
	}
}
