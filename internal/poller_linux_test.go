//go:build linux

package internal

import (
	"testing"

	"golang.org/x/sys/unix"
)

func testPipe(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPollerReportsReadiness(t *testing.T) {
	p, err := NewPoller(8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w := testPipe(t)
	if err := p.Add(r, ReadInterest); err != nil {
		t.Fatal(err)
	}

	if _, err := unix.Write(w, []byte("x")); err != nil {
		t.Fatal(err)
	}

	ready := make([]Ready, 8)
	n, err := p.Wait(ready, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("n=%d, want 1", n)
	}
	if ready[0].Fd != r || ready[0].Events&ReadInterest == 0 {
		t.Fatalf("unexpected event %+v", ready[0])
	}
}

func TestPollerOneShot(t *testing.T) {
	p, err := NewPoller(8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w := testPipe(t)
	if err := p.Add(r, ReadInterest); err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(w, []byte("x")); err != nil {
		t.Fatal(err)
	}

	ready := make([]Ready, 8)
	n, err := p.Wait(ready, 1000)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v, want one event", n, err)
	}

	// the byte is still unread but the registration is disarmed
	n, err = p.Wait(ready, 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("disarmed fd reported %d events", n)
	}

	// re-arming reports it again
	if err := p.Modify(r, 0, ReadInterest); err != nil {
		t.Fatal(err)
	}
	n, err = p.Wait(ready, 1000)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v after re-arm, want one event", n, err)
	}
}

func TestPollerWake(t *testing.T) {
	p, err := NewPoller(8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	done := make(chan error, 1)
	go func() {
		ready := make([]Ready, 8)
		_, err := p.Wait(ready, -1)
		done <- err
	}()

	if err := p.Wake(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
