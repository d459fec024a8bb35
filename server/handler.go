package server

import "context"

// Handler is an exposed operation: it consumes positional and keyword
// arguments (already stripped of client-side "_"-prefixed magic kwargs)
// and produces either a scalar value or a Stream.
type Handler func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Producer reifies a yield-style generator: Next returns the next value,
// or ok=false when the sequence is exhausted. Implementations must check
// the context between yields so cancellation is observed within one yield
// interval.
type Producer interface {
	Next(ctx context.Context) (value any, ok bool, err error)
}

// Stream marks a Handler's return value as a lazy sequence rather than a
// scalar. A Handler returns Stream{P} to mint a task and begin pumping
// PROGRESS frames.
type Stream struct {
	Producer Producer
}

// FuncProducer adapts a plain generator function to Producer. The function
// returns the next value and false once exhausted, mirroring a simple
// closure-based generator.
type FuncProducer func(ctx context.Context) (value any, ok bool, err error)

// Next implements Producer.
func (f FuncProducer) Next(ctx context.Context) (any, bool, error) {
	return f(ctx)
}

// SliceProducer streams a pre-computed, finite slice of values, mirroring
// handlers like count(n) that have no need for an actual generator.
type SliceProducer struct {
	values []any
	pos    int
}

// NewSliceProducer wraps values for streaming, in order.
func NewSliceProducer(values []any) *SliceProducer {
	return &SliceProducer{values: values}
}

// Next implements Producer.
func (p *SliceProducer) Next(ctx context.Context) (any, bool, error) {
	if p.pos >= len(p.values) {
		return nil, false, nil
	}
	v := p.values[p.pos]
	p.pos++
	return v, true, nil
}
