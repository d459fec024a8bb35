// Command neverliie-demo is the process harness demonstrating the full
// boot -> serve -> signal-triggered teardown lifecycle of a peer, in the
// teacher's own flag-based, signal-handling, heartbeat-ticker style
// (cmd/gnunet-service-dht-go/main.go). It plays one of the fixed roles
// from the end-to-end scenarios: launcher, terminal, or statusbar.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bfix/gospel/logger"

	"github.com/liiesl/neverliie/peer"
	"github.com/liiesl/neverliie/server"
)

func main() {
	defer func() {
		logger.Println(logger.INFO, "[neverliie] Bye.")
		logger.Flush()
	}()
	logger.Println(logger.INFO, "[neverliie] Starting peer...")

	var name string
	flag.StringVar(&name, "name", "launcher", "peer name to boot as (launcher, terminal, statusbar, ...)")
	flag.Parse()

	p, err := peer.New(name)
	if err != nil {
		if errors.Is(err, peer.ErrDuplicate) {
			logger.Printf(logger.INFO, "[neverliie] '%s' already running, exiting cleanly\n", name)
			os.Exit(0)
		}
		logger.Printf(logger.ERROR, "[neverliie] boot failed: %s\n", err.Error())
		os.Exit(1)
	}
	defer p.Shutdown()

	registerDemoOperations(p)

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	tick := time.NewTicker(5 * time.Minute)
	defer tick.Stop()

loop:
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Printf(logger.INFO, "[neverliie] terminating (on signal '%s')\n", sig)
				break loop
			case syscall.SIGHUP:
				logger.Println(logger.INFO, "[neverliie] SIGHUP")
			default:
				logger.Println(logger.INFO, "[neverliie] unhandled signal: "+sig.String())
			}
		case now := <-tick.C:
			logger.Println(logger.INFO, "[neverliie] heart beat at "+now.String())
		}
	}
}

// registerDemoOperations exposes a small fixed set of operations
// regardless of which role this process was booted as, so any two demo
// instances can exercise the full protocol against each other: a unary
// call, a finite stream, and an unbounded stream worth cancelling.
func registerDemoOperations(p *peer.Peer) {
	p.Expose("add", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		x, _ := args[0].(float64)
		y, _ := args[1].(float64)
		return x + y, nil
	})

	p.Expose("count", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		n := 0
		if len(args) > 0 {
			if f, ok := args[0].(float64); ok {
				n = int(f)
			}
		}
		values := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			values = append(values, float64(i))
		}
		return server.Stream{Producer: server.NewSliceProducer(values)}, nil
	})

	p.Expose("drip", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		i := 0
		producer := server.FuncProducer(func(ctx context.Context) (any, bool, error) {
			select {
			case <-ctx.Done():
				return nil, false, nil
			case <-time.After(time.Second):
			}
			i++
			return float64(i), true, nil
		})
		return server.Stream{Producer: producer}, nil
	})
}
