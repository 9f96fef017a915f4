package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// eventName is the SSE event name every message envelope is sent under.
	eventName = "message"

	// defaultStreamBuffer bounds how many undelivered events a stream holds.
	// Once full, sends fail and the connection is treated as gone.
	defaultStreamBuffer = 64
)

// DefaultStreamTimeout bounds the lifetime of a stream whose client vanished
// without a clean transport-level close.
const DefaultStreamTimeout = 30 * time.Minute

// DefaultKeepAliveInterval is how often an idle stream emits an SSE comment
// to keep intermediaries from closing the connection.
const DefaultKeepAliveInterval = 30 * time.Second

type streamState int

const (
	streamActive streamState = iota
	streamCompleted
	streamTimedOut
	streamFailed
)

// Stream is the long-lived server-to-client push channel for one connection.
// Events queued with Send are written to the wire by ServeHTTP. A stream
// terminates exactly once, through normal completion, its timeout, or a
// transport error; all three fire their registered hooks and converge on the
// same closed state, so Complete and Error are safe to call at any time.
type Stream struct {
	connectionID string
	events       chan Message
	done         chan struct{}

	keepAlive time.Duration
	timer     *time.Timer

	mu         sync.Mutex
	state      streamState
	err        error
	onComplete []func()
	onTimeout  []func()
	onError    []func(error)

	closeOnce sync.Once
}

func newStream(connectionID string, timeout, keepAlive time.Duration) *Stream {
	s := &Stream{
		connectionID: connectionID,
		events:       make(chan Message, defaultStreamBuffer),
		done:         make(chan struct{}),
		keepAlive:    keepAlive,
	}
	if timeout > 0 {
		s.timer = time.AfterFunc(timeout, s.expire)
	}
	return s
}

// ConnectionID returns the opaque identifier of this physical stream. It is
// regenerated on every (re)connect, unlike the client id it serves.
func (s *Stream) ConnectionID() string {
	return s.connectionID
}

// Events exposes the queued envelopes. ServeHTTP consumes this channel;
// non-HTTP transports and tests may consume it directly instead.
func (s *Stream) Events() <-chan Message {
	return s.events
}

// Done is closed when the stream has terminated for any reason.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the transport error that terminated the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send queues msg for delivery. It fails with ErrStreamClosed once the
// stream has terminated and with ErrStreamBufferFull when the client is not
// draining events; callers treat both as the client having gone away.
func (s *Stream) Send(msg Message) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	select {
	case s.events <- msg:
		return nil
	case <-s.done:
		return ErrStreamClosed
	default:
		return ErrStreamBufferFull
	}
}

// Complete terminates the stream normally. Idempotent.
func (s *Stream) Complete() {
	s.terminate(streamCompleted, nil)
}

// Error terminates the stream due to a transport failure. Idempotent; only
// the first termination wins.
func (s *Stream) Error(err error) {
	s.terminate(streamFailed, err)
}

func (s *Stream) expire() {
	s.terminate(streamTimedOut, nil)
}

// OnComplete registers a hook invoked when the stream completes normally.
// Registering after the stream already completed invokes fn immediately.
func (s *Stream) OnComplete(fn func()) {
	s.mu.Lock()
	if s.state == streamActive {
		s.onComplete = append(s.onComplete, fn)
		s.mu.Unlock()
		return
	}
	state := s.state
	s.mu.Unlock()
	if state == streamCompleted {
		fn()
	}
}

// OnTimeout registers a hook invoked when the stream's timeout elapses.
func (s *Stream) OnTimeout(fn func()) {
	s.mu.Lock()
	if s.state == streamActive {
		s.onTimeout = append(s.onTimeout, fn)
		s.mu.Unlock()
		return
	}
	state := s.state
	s.mu.Unlock()
	if state == streamTimedOut {
		fn()
	}
}

// OnError registers a hook invoked when the stream terminates with a
// transport error.
func (s *Stream) OnError(fn func(error)) {
	s.mu.Lock()
	if s.state == streamActive {
		s.onError = append(s.onError, fn)
		s.mu.Unlock()
		return
	}
	state, err := s.state, s.err
	s.mu.Unlock()
	if state == streamFailed {
		fn(err)
	}
}

// terminate moves the stream to a terminal state exactly once and fires the
// hooks registered for that state.
func (s *Stream) terminate(state streamState, err error) {
	s.closeOnce.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}

		s.mu.Lock()
		s.state = state
		s.err = err
		complete, timeout, failed := s.onComplete, s.onTimeout, s.onError
		s.onComplete, s.onTimeout, s.onError = nil, nil, nil
		s.mu.Unlock()

		close(s.done)

		switch state {
		case streamCompleted:
			for _, fn := range complete {
				fn()
			}
		case streamTimedOut:
			for _, fn := range timeout {
				fn()
			}
		case streamFailed:
			for _, fn := range failed {
				fn(err)
			}
		}
	})
}

// ServeHTTP writes the stream to the wire as a text/event-stream response.
// It returns when the stream terminates, the client disconnects, or a write
// fails; a client disconnect counts as normal completion while a write
// failure terminates the stream with an error.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		s.Error(ErrStreamingUnsupported)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Any SSE line beginning with a colon is a comment the client ignores.
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		s.Error(fmt.Errorf("failed to write connection preamble: %w", err))
		return
	}
	flusher.Flush()

	var keepAliveChan <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		keepAliveChan = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			s.Complete()
			return

		case <-s.done:
			s.drain(w, flusher)
			return

		case <-keepAliveChan:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				s.Error(fmt.Errorf("failed to write keepalive: %w", err))
				return
			}
			flusher.Flush()

		case msg := <-s.events:
			if err := writeEvent(w, msg); err != nil {
				s.Error(fmt.Errorf("failed to write event: %w", err))
				return
			}
			flusher.Flush()
		}
	}
}

// drain flushes events that were queued before termination so an explicit
// Complete does not discard messages already accepted by Send.
func (s *Stream) drain(w io.Writer, flusher http.Flusher) {
	for {
		select {
		case msg := <-s.events:
			if err := writeEvent(w, msg); err != nil {
				return
			}
			flusher.Flush()
		default:
			return
		}
	}
}

func writeEvent(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", eventName, msg.ID, data)
	return err
}
