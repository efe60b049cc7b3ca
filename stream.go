package selkie

import (
	"sync"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"
)

// Stream is a Transfer that moves bytes through a non-blocking socket.
// Inbound bytes are drained on read readiness and handed to the data
// callback; outbound bytes are staged in a pooled buffer and flushed as
// the socket accepts them, resuming on write readiness after a short
// write.
//
// Failures are terminal: a read error, a write error or a peer close
// closes the endpoint, which in turn closes the fd.
type Stream struct {
	fd     int
	onData func(b []byte)

	ep *Endpoint
	in []byte

	mu  sync.Mutex
	out *bytebufferpool.ByteBuffer // staged outbound bytes, nil when empty
}

var _ Transfer = (*Stream)(nil)

// NewStream wraps fd, which must already be non-blocking. onData is
// invoked on worker goroutines with a buffer that is reused between
// calls; implementations must copy what they keep.
func NewStream(fd int, onData func(b []byte)) *Stream {
	return &Stream{
		fd:     fd,
		onData: onData,
		in:     make([]byte, 4096),
	}
}

func (s *Stream) Fd() int {
	return s.fd
}

// Endpoint returns the endpoint this stream is attached to, nil before
// registration.
func (s *Stream) Endpoint() *Endpoint {
	return s.ep
}

// OnOpen implements Transfer: the stream immediately asks for read
// readiness and flushes anything staged before registration.
func (s *Stream) OnOpen(ep *Endpoint) {
	s.ep = ep
	ep.WantRead()
	s.flush()
}

// Fillable implements Transfer: drain the socket, deliver the bytes,
// re-request read interest.
func (s *Stream) Fillable() {
	for {
		n, err := unix.Read(s.fd, s.in)
		if n > 0 {
			s.onData(s.in[:n])
		}

		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			// drained; resume on the next readiness report
			if s.ep.IsOpen() {
				s.ep.WantRead()
			}
			return
		case err != nil:
			log.Debugf("read fd=%d: %v", s.fd, err)
			s.ep.Close()
			return
		case n == 0:
			// peer closed
			s.ep.Close()
			return
		}
	}
}

// Write stages b and flushes as much as the socket accepts right away.
// Fire and forget, like the interest protocol underneath it: a failed
// flush closes the endpoint. Safe for concurrent use.
func (s *Stream) Write(b []byte) {
	s.mu.Lock()
	if s.out == nil {
		s.out = bytebufferpool.Get()
	}
	_, _ = s.out.Write(b)
	s.mu.Unlock()

	s.flush()
}

// CompleteWrite implements Transfer: the writability we asked for after
// a short write has arrived.
func (s *Stream) CompleteWrite() {
	s.flush()
}

func (s *Stream) flush() {
	if s.ep == nil || !s.ep.IsOpen() {
		return
	}

	s.mu.Lock()
	for s.out != nil && s.out.Len() > 0 {
		n, err := unix.Write(s.fd, s.out.B)
		if n > 0 {
			s.out.B = append(s.out.B[:0], s.out.B[n:]...)
		}

		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			s.mu.Unlock()
			s.ep.WantWrite()
			return
		case err != nil:
			s.mu.Unlock()
			log.Debugf("write fd=%d: %v", s.fd, err)
			s.ep.Close()
			return
		}
	}
	if s.out != nil {
		bytebufferpool.Put(s.out)
		s.out = nil
	}
	s.mu.Unlock()
}

// OnClose implements Transfer: drop staged bytes and close the fd.
func (s *Stream) OnClose() {
	s.mu.Lock()
	if s.out != nil {
		bytebufferpool.Put(s.out)
		s.out = nil
	}
	s.mu.Unlock()

	_ = unix.Close(s.fd)
}
