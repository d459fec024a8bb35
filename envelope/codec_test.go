package envelope

import (
	"bytes"
	"io"
	"testing"
)

func roundTrip(t *testing.T, env *Envelope) *Envelope {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := Write(buf, env); err != nil {
		t.Fatal(err)
	}
	got, err := Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestRoundTripRequest(t *testing.T) {
	env := Request("add", []any{2.0, 3.0}, map[string]any{"_timeout": 1.0})
	got := roundTrip(t, env)
	if got.Kind != KindRequest {
		t.Fatalf("kind = %v, want REQUEST", got.Kind)
	}
	if got.Request.Method != "add" {
		t.Fatalf("method = %q, want add", got.Request.Method)
	}
	if len(got.Request.Args) != 2 {
		t.Fatalf("args = %v, want 2 elements", got.Request.Args)
	}
}

func TestRoundTripOK(t *testing.T) {
	got := roundTrip(t, OK(5.0))
	if got.Kind != KindOK {
		t.Fatalf("kind = %v, want OK", got.Kind)
	}
	if got.OK.Data != 5.0 {
		t.Fatalf("data = %v, want 5", got.OK.Data)
	}
}

func TestRoundTripError(t *testing.T) {
	got := roundTrip(t, Err("method not found"))
	if got.Kind != KindError {
		t.Fatalf("kind = %v, want ERROR", got.Kind)
	}
	if got.Error.Msg != "method not found" {
		t.Fatalf("msg = %q", got.Error.Msg)
	}
}

func TestRoundTripPong(t *testing.T) {
	got := roundTrip(t, Pong())
	if got.Kind != KindPong {
		t.Fatalf("kind = %v, want PONG", got.Kind)
	}
}

func TestRoundTripStreamStart(t *testing.T) {
	got := roundTrip(t, StreamStart("task-1"))
	if got.Kind != KindStreamStart {
		t.Fatalf("kind = %v, want STREAM_START", got.Kind)
	}
	if got.StreamStart.TaskID != "task-1" {
		t.Fatalf("task_id = %q", got.StreamStart.TaskID)
	}
}

func TestRoundTripProgressAndEnd(t *testing.T) {
	if got := roundTrip(t, Progress(3.0)); got.Progress.Data != 3.0 {
		t.Fatalf("progress data = %v", got.Progress.Data)
	}
	if got := roundTrip(t, StreamEnd()); got.Kind != KindStreamEnd {
		t.Fatalf("kind = %v, want STREAM_END", got.Kind)
	}
}

func TestMultipleRecordsPreserveOrder(t *testing.T) {
	buf := new(bytes.Buffer)
	for i := 0; i < 3; i++ {
		if err := Write(buf, Progress(float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := Write(buf, StreamEnd()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		env, err := Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		if env.Progress.Data != float64(i) {
			t.Fatalf("record %d: data = %v, want %v", i, env.Progress.Data, i)
		}
	}
	env, err := Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if env.Kind != KindStreamEnd {
		t.Fatalf("final kind = %v, want STREAM_END", env.Kind)
	}
}

func TestReadCleanEOFAtBoundary(t *testing.T) {
	buf := new(bytes.Buffer)
	if _, err := Read(buf); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestReadShortMidRecordIsProtocolError(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := Write(buf, OK("x")); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:3]
	if _, err := Read(bytes.NewReader(truncated)); err == nil {
		t.Fatal("expected error on truncated record")
	}
}

func TestUnknownVersionRejected(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := Write(buf, Pong()); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[4] = CurrentVersion + 1 // version byte follows the 4-byte size prefix
	if _, err := Read(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected protocol error on unknown version")
	}
}
