// Package recordingtest provides an in-memory capturer for tests.
package recordingtest

import (
	"context"
	"sync"

	"github.com/audiolibrelab/coffeehunt/internal/recording"
	"github.com/audiolibrelab/coffeehunt/internal/tracking"
)

// Capturer hands out Streams fed by the test
type Capturer struct {
	mutex   sync.Mutex
	err     error
	streams []*Stream
}

func NewCapturer() *Capturer {
	return &Capturer{}
}

// FailWith makes subsequent captures fail with err
func (c *Capturer) FailWith(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.err = err
}

func (c *Capturer) Capture(ctx context.Context, surface tracking.Surface) (recording.Stream, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	s := &Stream{surface: surface, chunks: make(chan []byte, 64)}
	c.streams = append(c.streams, s)
	return s, nil
}

// Streams returns every stream opened, oldest first
func (c *Capturer) Streams() []*Stream {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]*Stream(nil), c.streams...)
}

// Last returns the newest stream, or nil
func (c *Capturer) Last() *Stream {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}

// Stream is a capture stream driven by the test
type Stream struct {
	surface tracking.Surface
	chunks  chan []byte

	mutex     sync.Mutex
	closed    bool
	err       error
	stopCalls int
}

func (s *Stream) Surface() tracking.Surface { return s.surface }

func (s *Stream) Chunks() <-chan []byte { return s.chunks }

func (s *Stream) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// Send delivers a chunk as the encoder would; it is dropped after the stream ended
func (s *Stream) Send(chunk []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return
	}
	s.chunks <- chunk
}

// Fail ends the stream with err, as when the surface is torn down mid-capture
func (s *Stream) Fail(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.err = err
	s.closeLocked()
}

func (s *Stream) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopCalls++
	s.closeLocked()
	return nil
}

// StopCalls reports how many times Stop was called
func (s *Stream) StopCalls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stopCalls
}

func (s *Stream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.chunks)
}
