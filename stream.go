package keyrelay

import (
	"errors"
	"io"
	"time"
)

// ChunkStream is a one-shot sequence of client-facing chunks.
type ChunkStream interface {
	// Next returns the next chunk. Returns io.EOF when the stream ended cleanly;
	// any other error means it ended abnormally.
	Next() (StreamChunk, error)

	// Close releases the upstream connection.
	Close() error
}

// MeteredStream wraps a ChunkStream and reports its outcome to a Meter on Close.
type MeteredStream struct {
	inner     ChunkStream
	meter     Meter
	model     string
	startTime time.Time
	chunks    int
	closed    bool
	streamErr error // first error encountered during streaming
}

// NewMeteredStream wraps inner. A nil meter discards events.
func NewMeteredStream(inner ChunkStream, meter Meter, model string) *MeteredStream {
	if meter == nil {
		meter = noopMeter{}
	}
	return &MeteredStream{
		inner:     inner,
		meter:     meter,
		model:     model,
		startTime: time.Now(),
	}
}

// Next returns the next chunk from the stream.
func (s *MeteredStream) Next() (StreamChunk, error) {
	chunk, err := s.inner.Next()
	if err != nil {
		if s.streamErr == nil {
			s.streamErr = err
		}
		return chunk, err
	}
	s.chunks++
	return chunk, nil
}

// Close releases the stream and reports the result.
func (s *MeteredStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.inner.Close()

	// io.EOF is the normal end of stream, not an error.
	resultErr := s.streamErr
	if errors.Is(resultErr, io.EOF) {
		resultErr = nil
	}

	s.meter.OnStream(StreamEvent{
		Model:    s.model,
		Chunks:   s.chunks,
		Duration: time.Since(s.startTime),
		Error:    resultErr,
	})

	return err
}
