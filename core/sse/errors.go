package sse

import "errors"

var (
	// ErrInvalidClientID is returned when a client id is empty, blank, or
	// contains the reserved cross-instance separator sequence.
	ErrInvalidClientID = errors.New("invalid client id")
	// ErrStreamClosed is returned when sending on a stream that has already
	// completed, timed out, or failed.
	ErrStreamClosed = errors.New("stream is closed")
	// ErrStreamBufferFull is returned when a stream's outbound buffer is
	// full. The manager treats it like any other transport write failure.
	ErrStreamBufferFull = errors.New("stream buffer is full")
	// ErrStreamingUnsupported is reported when the HTTP response writer
	// cannot flush, which server-sent events require.
	ErrStreamingUnsupported = errors.New("streaming unsupported by response writer")
	// ErrManagerClosed is returned when creating a stream on a manager that
	// has been shut down.
	ErrManagerClosed = errors.New("connection manager is closed")
)
