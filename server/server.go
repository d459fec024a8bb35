package server

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bfix/gospel/logger"

	"github.com/liiesl/neverliie/envelope"
	"github.com/liiesl/neverliie/transport"
	"github.com/liiesl/neverliie/util"
)

// rebindBackoff is the minimum pause between a fatal accept failure and a
// re-bind attempt.
const rebindBackoff = 1 * time.Second

// Engine is the Server Engine: it owns the listener for one peer name, the
// accept loop, per-connection dispatch, and the Task Table. Adapted from
// service.Impl's accept-loop-to-goroutine shape (service/service.go).
type Engine struct {
	name string
	ops  *OperationTable

	tasks   *util.Map[string, context.CancelFunc]
	taskSeq uint64

	mu       sync.Mutex
	listener *transport.Listener

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewEngine returns a Server Engine for peer name, dispatching to ops.
func NewEngine(name string, ops *OperationTable) *Engine {
	return &Engine{
		name:  name,
		ops:   ops,
		tasks: util.NewMap[string, context.CancelFunc](),
	}
}

// Start binds the listener and begins accepting connections in the
// background. ctx bounds the lifetime of every connection and handler
// invocation started under this engine.
func (e *Engine) Start(ctx context.Context) error {
	conns := make(chan *transport.Conn)
	l, err := transport.Listen(ctx, e.name, conns)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
	e.running.Store(true)

	e.wg.Add(1)
	go e.acceptLoop(ctx, conns)
	return nil
}

// acceptLoop drains conns for new connections, re-binding with a backoff
// on fatal listener failure, until Stop is called.
func (e *Engine) acceptLoop(ctx context.Context, conns chan *transport.Conn) {
	defer e.wg.Done()
	for {
		for in := range conns {
			if !e.running.Load() {
				continue
			}
			e.wg.Add(1)
			go func(c *transport.Conn) {
				defer e.wg.Done()
				e.serveConn(ctx, c)
			}(in)
		}
		if !e.running.Load() {
			return
		}
		logger.Printf(logger.WARN, "[server] listener for '%s' failed, rebinding in %s\n", e.name, rebindBackoff)
		time.Sleep(rebindBackoff)

		newConns := make(chan *transport.Conn)
		l, err := transport.Listen(ctx, e.name, newConns)
		if err != nil {
			logger.Printf(logger.ERROR, "[server] rebind failed: %s\n", err.Error())
			continue
		}
		e.mu.Lock()
		e.listener = l
		e.mu.Unlock()
		conns = newConns
	}
}

// Stop closes the listener and waits for outstanding connection workers
// to finish. Outstanding connections complete on their own; in-flight
// streams observe running=false and stop pumping further frames.
func (e *Engine) Stop() {
	e.running.Store(false)
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l != nil {
		l.Close()
	}
	e.wg.Wait()
}

// serveConn reads exactly one request envelope and dispatches it, closing
// the connection once the call (or stream) completes.
func (e *Engine) serveConn(ctx context.Context, conn *transport.Conn) {
	defer conn.Close()

	env, err := conn.Recv(ctx)
	if err != nil {
		return
	}
	if env.Kind != envelope.KindRequest {
		return
	}
	e.dispatch(ctx, conn, env.Request)
}

func (e *Engine) dispatch(ctx context.Context, conn *transport.Conn, req *envelope.RequestPayload) {
	switch req.Method {
	case envelope.MethodPing:
		conn.Send(ctx, envelope.Pong())
		return
	case envelope.MethodCancelTask:
		taskID, _ := req.Kwargs["task_id"].(string)
		if cancel, ok := e.tasks.GetAndDelete(taskID); ok {
			cancel()
		}
		conn.Send(ctx, envelope.OK(nil))
		return
	}

	handler, ok := e.ops.Lookup(req.Method)
	if !ok {
		conn.Send(ctx, envelope.Err(ErrMethodNotFound.Error()))
		return
	}

	result, err := handler(ctx, req.Args, filterMagic(req.Kwargs))
	if err != nil {
		conn.Send(ctx, envelope.Err(err.Error()))
		return
	}

	if stream, ok := result.(Stream); ok {
		e.runStream(ctx, conn, stream.Producer)
		return
	}
	conn.Send(ctx, envelope.OK(result))
}

// runStream mints a task-id, registers its cancellation signal, and pumps
// PROGRESS frames until the producer is exhausted, errors, or the task is
// cancelled. A cancelled task stops emitting within one yield interval.
func (e *Engine) runStream(ctx context.Context, conn *transport.Conn, p Producer) {
	taskID := e.nextTaskID()
	taskCtx, cancel := context.WithCancel(ctx)
	e.tasks.Put(taskID, cancel)
	defer func() {
		e.tasks.Delete(taskID)
		cancel()
	}()

	if err := conn.Send(ctx, envelope.StreamStart(taskID)); err != nil {
		return
	}

	for {
		select {
		case <-taskCtx.Done():
			return
		default:
		}
		if !e.running.Load() {
			return
		}

		val, ok, err := p.Next(taskCtx)
		if err != nil {
			conn.Send(ctx, envelope.Err(err.Error()))
			return
		}
		if !ok {
			conn.Send(ctx, envelope.StreamEnd())
			return
		}
		if err := conn.Send(ctx, envelope.Progress(val)); err != nil {
			return
		}
	}
}

// nextTaskID returns a task-id unique over the server's lifetime.
func (e *Engine) nextTaskID() string {
	n := atomic.AddUint64(&e.taskSeq, 1)
	return "task-" + strconv.FormatUint(n, 10)
}

// filterMagic drops kwargs whose name begins with "_": client-side magic
// (_timeout, _stream) that never reaches a handler.
func filterMagic(kwargs map[string]any) map[string]any {
	if kwargs == nil {
		return nil
	}
	out := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	return out
}
