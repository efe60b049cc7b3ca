package selkie

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestStreamLargeWriteResumesOnWritability(t *testing.T) {
	fd0, fd1 := socketPair(t)
	// a small send buffer forces the short-write path
	require.NoError(t, unix.SetsockoptInt(fd0, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	s := startSelector(t, WithWorkers(4))

	payload := bytes.Repeat([]byte("0123456789abcdef"), 16*1024) // 256 KiB

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	sink := NewStream(fd1, func(b []byte) {
		mu.Lock()
		got = append(got, b...)
		if len(got) == len(payload) {
			close(done)
		}
		mu.Unlock()
	})

	source := NewStream(fd0, func([]byte) {})

	_, err := s.Register(fd1, sink)
	require.NoError(t, err)
	_, err = s.Register(fd0, source)
	require.NoError(t, err)

	source.Write(payload)

	waitSignal(t, done, "full payload")
	mu.Lock()
	defer mu.Unlock()
	require.True(t, bytes.Equal(payload, got), "payload corrupted in flight")
}

func TestStreamWriteBeforeRegistrationIsStaged(t *testing.T) {
	fd0, fd1 := socketPair(t)
	s := startSelector(t, WithWorkers(2))

	stream := NewStream(fd0, func([]byte) {})
	stream.Write([]byte("early")) // no endpoint yet, must only stage

	received := make(chan []byte, 8)
	sink := NewStream(fd1, func(b []byte) {
		received <- append([]byte(nil), b...)
	})
	_, err := s.Register(fd1, sink)
	require.NoError(t, err)

	// registration flushes the staged bytes
	_, err = s.Register(fd0, stream)
	require.NoError(t, err)

	var got []byte
	deadline := time.After(2 * time.Second)
	for len(got) < len("early") {
		select {
		case b := <-received:
			got = append(got, b...)
		case <-deadline:
			t.Fatalf("timed out, received %q so far", got)
		}
	}
	require.Equal(t, "early", string(got))
}

func TestStreamConcurrentWriters(t *testing.T) {
	fd0, fd1 := socketPair(t)
	s := startSelector(t, WithWorkers(4))

	const writers = 4
	const perWriter = 64
	chunk := []byte("0123456789abcdef")

	var mu sync.Mutex
	total := 0
	done := make(chan struct{})
	sink := NewStream(fd1, func(b []byte) {
		mu.Lock()
		total += len(b)
		if total == writers*perWriter*len(chunk) {
			close(done)
		}
		mu.Unlock()
	})

	source := NewStream(fd0, func([]byte) {})
	_, err := s.Register(fd1, sink)
	require.NoError(t, err)
	_, err = s.Register(fd0, source)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				source.Write(chunk)
			}
		}()
	}
	wg.Wait()

	waitSignal(t, done, "all chunks")
}
