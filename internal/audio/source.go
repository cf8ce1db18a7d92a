package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// byteSource is the session's input. ReadAvailable never waits: (0, nil) is a
// short read to retry later, io.EOF means the source is exhausted.
type byteSource interface {
	ReadAvailable(p []byte) (int, error)
	ReadFull(p []byte) error
	Close() error
}

var errShortRead = errors.New("short read")

type fileSource struct {
	f   afero.File
	eof bool
}

func newFileSource(f afero.File) *fileSource {
	return &fileSource{f: f}
}

func (s *fileSource) ReadAvailable(p []byte) (int, error) {
	if s.eof {
		return 0, io.EOF
	}
	n, err := s.f.Read(p)
	if err != nil {
		s.eof = true
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	return n, nil
}

func (s *fileSource) ReadFull(p []byte) error {
	if _, err := io.ReadFull(s.f, p); err != nil {
		return errShortRead
	}
	return nil
}

func (s *fileSource) Close() error { return s.f.Close() }

const streamChunk = 1024

// stream owns a network response body. A pump goroutine moves bytes from
// the body into a bounded channel so the loop can poll without blocking.
// Close releases the body on every path.
type stream struct {
	body    io.ReadCloser
	chunks  chan []byte
	quit    chan struct{}
	pending []byte
	timeout time.Duration
	cancel  context.CancelFunc
	once    sync.Once
}

func newStream(body io.ReadCloser, timeout time.Duration) *stream {
	s := &stream{
		body:    body,
		chunks:  make(chan []byte, 16),
		quit:    make(chan struct{}),
		timeout: timeout,
	}
	go s.pump()
	return s
}

func (s *stream) pump() {
	defer close(s.chunks)
	for {
		buf := make([]byte, streamChunk)
		n, err := s.body.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *stream) ReadAvailable(p []byte) (int, error) {
	if len(s.pending) == 0 {
		select {
		case c, ok := <-s.chunks:
			if !ok {
				return 0, io.EOF
			}
			s.pending = c
		default:
			return 0, nil
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// ReadFull waits up to the stream timeout for len(p) bytes.
func (s *stream) ReadFull(p []byte) error {
	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()

	got := 0
	for got < len(p) {
		if len(s.pending) == 0 {
			select {
			case c, ok := <-s.chunks:
				if !ok {
					return errShortRead
				}
				s.pending = c
			case <-deadline.C:
				return errShortRead
			}
		}
		n := copy(p[got:], s.pending)
		s.pending = s.pending[n:]
		got += n
	}
	return nil
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		err = s.body.Close()
		if s.cancel != nil {
			s.cancel()
		}
	})
	return err
}
