// Package envelope implements the self-delimited wire records exchanged
// between peers: a fixed binary header followed by a kind-specific JSON
// body. The header is marshalled with github.com/bfix/gospel/data's
// tag-driven reflective codec; the body uses encoding/json because
// request/response payloads carry arbitrary, dynamically-typed values
// that a fixed-schema marshaller cannot express.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bfix/gospel/data"
)

// CurrentVersion is the only envelope version this implementation
// understands. Peers that receive a different version reject it with
// ErrUnknownVersion.
const CurrentVersion uint8 = 1

// Reserved request method names, always present regardless of the
// Exposed Operation Table's contents.
const (
	MethodPing       = "__ping__"
	MethodCancelTask = "__cancel_task__"
)

// Kind discriminates the payload carried by an envelope.
type Kind uint8

// Envelope kinds.
const (
	KindRequest Kind = iota + 1
	KindOK
	KindError
	KindPong
	KindStreamStart
	KindProgress
	KindStreamEnd
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindOK:
		return "OK"
	case KindError:
		return "ERROR"
	case KindPong:
		return "PONG"
	case KindStreamStart:
		return "STREAM_START"
	case KindProgress:
		return "PROGRESS"
	case KindStreamEnd:
		return "STREAM_END"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// header is the fixed-size prefix of every record on the wire: total
// record size (header + body), the protocol version and the kind
// discriminator. It is marshalled with gospel's reflective, tag-driven
// codec.
type header struct {
	Size    uint32 `order:"big"`
	Version uint8
	Kind    uint8
}

// headerSize is the constant on-wire size of a header: 4 bytes for Size,
// 1 for Version, 1 for Kind.
const headerSize = 6

// RequestPayload is the body of a REQUEST envelope.
type RequestPayload struct {
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// OKPayload is the body of an OK envelope.
type OKPayload struct {
	Data any `json:"data"`
}

// ErrorPayload is the body of an ERROR envelope.
type ErrorPayload struct {
	Msg string `json:"msg"`
}

// StreamStartPayload is the body of a STREAM_START envelope.
type StreamStartPayload struct {
	TaskID string `json:"task_id"`
}

// ProgressPayload is the body of a PROGRESS envelope.
type ProgressPayload struct {
	Data any `json:"data"`
}

// Envelope is the decoded, in-memory form of one wire record.
type Envelope struct {
	Kind Kind
	// exactly one of the following is meaningful, selected by Kind.
	Request      *RequestPayload
	OK           *OKPayload
	Error        *ErrorPayload
	StreamStart  *StreamStartPayload
	Progress     *ProgressPayload
	// PONG and STREAM_END carry no payload.
}

// Errors surfaced by the codec.
var (
	ErrProtocol        = errors.New("envelope: protocol error")
	ErrShortReadAtEOF  = errors.New("envelope: short read at record boundary")
	ErrUnknownVersion  = errors.New("envelope: unknown version")
	ErrUnknownKind     = errors.New("envelope: unknown kind")
)

func bodyFor(e *Envelope) (any, error) {
	switch e.Kind {
	case KindRequest:
		if e.Request == nil {
			return nil, fmt.Errorf("%w: REQUEST without payload", ErrProtocol)
		}
		return e.Request, nil
	case KindOK:
		if e.OK == nil {
			return nil, fmt.Errorf("%w: OK without payload", ErrProtocol)
		}
		return e.OK, nil
	case KindError:
		if e.Error == nil {
			return nil, fmt.Errorf("%w: ERROR without payload", ErrProtocol)
		}
		return e.Error, nil
	case KindPong, KindStreamEnd:
		return struct{}{}, nil
	case KindStreamStart:
		if e.StreamStart == nil {
			return nil, fmt.Errorf("%w: STREAM_START without payload", ErrProtocol)
		}
		return e.StreamStart, nil
	case KindProgress:
		if e.Progress == nil {
			return nil, fmt.Errorf("%w: PROGRESS without payload", ErrProtocol)
		}
		return e.Progress, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, e.Kind)
	}
}

func decodeBody(k Kind, body []byte) (*Envelope, error) {
	e := &Envelope{Kind: k}
	switch k {
	case KindRequest:
		e.Request = new(RequestPayload)
		if err := json.Unmarshal(body, e.Request); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	case KindOK:
		e.OK = new(OKPayload)
		if err := json.Unmarshal(body, e.OK); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	case KindError:
		e.Error = new(ErrorPayload)
		if err := json.Unmarshal(body, e.Error); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	case KindPong, KindStreamEnd:
		// no payload
	case KindStreamStart:
		e.StreamStart = new(StreamStartPayload)
		if err := json.Unmarshal(body, e.StreamStart); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	case KindProgress:
		e.Progress = new(ProgressPayload)
		if err := json.Unmarshal(body, e.Progress); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
	}
	return e, nil
}

// marshalHeader encodes the fixed header via gospel's reflective marshaller.
func marshalHeader(h *header) ([]byte, error) {
	return data.Marshal(h)
}

// unmarshalHeader decodes the fixed header via gospel's reflective unmarshaller.
func unmarshalHeader(b []byte) (*header, error) {
	if len(b) < headerSize {
		return nil, ErrShortReadAtEOF
	}
	h := new(header)
	if err := data.Unmarshal(h, b[:headerSize]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return h, nil
}

// Request builds a REQUEST envelope.
func Request(method string, args []any, kwargs map[string]any) *Envelope {
	return &Envelope{Kind: KindRequest, Request: &RequestPayload{Method: method, Args: args, Kwargs: kwargs}}
}

// OK builds an OK envelope.
func OK(value any) *Envelope {
	return &Envelope{Kind: KindOK, OK: &OKPayload{Data: value}}
}

// Err builds an ERROR envelope.
func Err(msg string) *Envelope {
	return &Envelope{Kind: KindError, Error: &ErrorPayload{Msg: msg}}
}

// Pong builds a PONG envelope.
func Pong() *Envelope {
	return &Envelope{Kind: KindPong}
}

// StreamStart builds a STREAM_START envelope.
func StreamStart(taskID string) *Envelope {
	return &Envelope{Kind: KindStreamStart, StreamStart: &StreamStartPayload{TaskID: taskID}}
}

// Progress builds a PROGRESS envelope.
func Progress(value any) *Envelope {
	return &Envelope{Kind: KindProgress, Progress: &ProgressPayload{Data: value}}
}

// StreamEnd builds a STREAM_END envelope.
func StreamEnd() *Envelope {
	return &Envelope{Kind: KindStreamEnd}
}
