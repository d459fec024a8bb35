package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liiesl/neverliie/envelope"
)

func withRuntimeDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := os.Getenv("XDG_RUNTIME_DIR")
	os.Setenv("XDG_RUNTIME_DIR", dir)
	t.Cleanup(func() { os.Setenv("XDG_RUNTIME_DIR", old) })
	return dir
}

func TestSocketPathUsesRuntimeDir(t *testing.T) {
	dir := withRuntimeDir(t)
	got := SocketPath("terminal")
	want := filepath.Join(dir, "NeverLiie_terminal")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestProbeFalseWhenNoListener(t *testing.T) {
	withRuntimeDir(t)
	if Probe("nobody-here") {
		t.Fatal("expected probe to fail against an unbound name")
	}
}

func TestListenAndDialRoundTrip(t *testing.T) {
	withRuntimeDir(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conns := make(chan *Conn, 1)
	l, err := Listen(ctx, "statusbar", conns)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	if !Probe("statusbar") {
		t.Fatal("expected probe to succeed once listener is up")
	}

	client, err := Dial(ctx, "statusbar")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	server := <-conns
	defer server.Close()

	want := envelope.Request("ping", nil, nil)
	if err := client.Send(ctx, want); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := server.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Kind != envelope.KindRequest || got.Request.Method != "ping" {
		t.Fatalf("got %+v", got)
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	withRuntimeDir(t)
	path := SocketPath("launcher")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conns := make(chan *Conn, 1)
	l, err := Listen(ctx, "launcher", conns)
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	l.Close()
}

func TestSendInterruptedByContext(t *testing.T) {
	withRuntimeDir(t)
	ctx := context.Background()
	conns := make(chan *Conn, 1)
	l, err := Listen(ctx, "drip", conns)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	client, err := Dial(ctx, "drip")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	<-conns

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := client.Send(cctx, envelope.Request("noop", nil, nil)); err == nil {
		t.Fatal("expected send on a cancelled context to fail")
	}
}
