// Package stream turns a raw upstream token stream into an ordered,
// cancellable chunk stream while accumulating the full response text for
// persistence.
package stream

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/flowmatik/backend/core"
	"github.com/flowmatik/backend/provider"
)

// State of a streaming call.
type State int32

const (
	// StateStarted means the upstream connection is open but no chunk has
	// been emitted yet.
	StateStarted State = iota
	// StateEmitting means chunks are being relayed in arrival order.
	StateEmitting
	// StateCompleted means upstream signalled end-of-generation and the
	// accumulated text was handed to the completion handler.
	StateCompleted
	// StateFailed means upstream raised an error; an error chunk was the
	// last chunk emitted.
	StateFailed
	// StateCancelled means the consumer cancelled before completion.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateEmitting:
		return "emitting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrTruncated marks an upstream stream that ended without signalling
// completion or reporting an error.
var ErrTruncated = errors.New("upstream stream ended without completion")

// CompleteFunc receives the accumulated full text and usage once the stream
// completes naturally. It is never called for failed or cancelled streams:
// partial accumulated text is dropped, not persisted.
type CompleteFunc func(fullText string, usage provider.Usage)

// Multiplexer relays upstream events as normalized chunks, accumulates the
// full text, and drives the started/emitting/terminal state machine for one
// streaming call.
type Multiplexer struct {
	chunks chan core.Chunk
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32

	acc        strings.Builder
	usage      provider.Usage
	err        error
	onComplete CompleteFunc
}

// New starts a multiplexer over the given upstream channels. The returned
// ctx-derived cancel is triggered by Cancel, which propagates to the
// provider so no further tokens are requested. onComplete may be nil.
func New(ctx context.Context, open func(ctx context.Context) (<-chan provider.Event, <-chan error), onComplete CompleteFunc) *Multiplexer {
	ctx, cancel := context.WithCancel(ctx)
	m := &Multiplexer{
		chunks:     make(chan core.Chunk, 32),
		cancel:     cancel,
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
	events, errs := open(ctx)
	go m.run(ctx, events, errs)
	return m
}

// Chunks returns the ordered chunk stream. The channel is closed after the
// terminal chunk (if any); consumers signal completion to HTTP writers by
// ranging until close.
func (m *Multiplexer) Chunks() <-chan core.Chunk { return m.chunks }

// Cancel aborts the stream. Safe to call multiple times and after
// completion; cancellation reaches the provider within one select step.
func (m *Multiplexer) Cancel() { m.cancel() }

// Done is closed once the multiplexer has reached a terminal state and
// released upstream resources.
func (m *Multiplexer) Done() <-chan struct{} { return m.done }

// State reports the current state machine position.
func (m *Multiplexer) State() State { return State(m.state.Load()) }

// Text returns the accumulated text. Only meaningful after Done.
func (m *Multiplexer) Text() string { return m.acc.String() }

// Err returns the upstream failure for StateFailed, the cancellation cause
// for StateCancelled, and nil for StateCompleted. Only meaningful after Done.
func (m *Multiplexer) Err() error { return m.err }

func (m *Multiplexer) run(ctx context.Context, events <-chan provider.Event, errs <-chan error) {
	defer close(m.done)
	defer close(m.chunks)
	// Releasing the derived context on every exit path is what guarantees
	// the provider goroutine terminates and no upstream stream leaks.
	defer m.cancel()

	for {
		select {
		case <-ctx.Done():
			m.finish(StateCancelled, ctx.Err())
			return

		case err, ok := <-errs:
			if !ok {
				// Error channel closed without a value: upstream is gone.
				// Treat as completion only if the event channel already
				// delivered Done; otherwise keep draining events.
				errs = nil
				continue
			}
			if ctx.Err() != nil {
				m.finish(StateCancelled, ctx.Err())
				return
			}
			m.emit(core.Chunk{Type: core.ChunkError, Error: err.Error()}, ctx)
			m.finish(StateFailed, err)
			return

		case ev, ok := <-events:
			if !ok {
				m.finish(StateFailed, ErrTruncated)
				return
			}
			if ev.Done {
				m.usage = ev.Usage
				m.finish(StateCompleted, nil)
				if m.onComplete != nil {
					m.onComplete(m.acc.String(), m.usage)
				}
				return
			}
			m.state.CompareAndSwap(int32(StateStarted), int32(StateEmitting))
			m.acc.WriteString(ev.Delta)
			if !m.emit(core.Chunk{Type: core.ChunkContent, Content: ev.Delta}, ctx) {
				m.finish(StateCancelled, ctx.Err())
				return
			}
		}
	}
}

// emit delivers a chunk unless the consumer has gone away. Returns false on
// cancellation.
func (m *Multiplexer) emit(c core.Chunk, ctx context.Context) bool {
	select {
	case m.chunks <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Multiplexer) finish(s State, err error) {
	m.state.Store(int32(s))
	m.err = err
	if s != StateCompleted {
		log.Printf("[STREAM] stream ended %s after %d bytes: %v", s, m.acc.Len(), err)
	}
}
