//go:build linux

package internal

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"
)

// EventFd wakes up a blocked epoll_wait from another goroutine.
type EventFd struct {
	fd  int
	buf [8]byte
}

func NewEventFd() (*EventFd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("eventfd", err)
	}
	return &EventFd{fd: fd}, nil
}

func (e *EventFd) Fd() int {
	return e.fd
}

func (e *EventFd) Signal() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, err := unix.Write(e.fd, one[:])
	if err == unix.EAGAIN {
		// counter saturated, a wake-up is already pending
		return nil
	}
	return os.NewSyscallError("eventfd_write", err)
}

// Drain consumes pending wake-ups so the next Signal is observable.
func (e *EventFd) Drain() {
	for {
		_, err := unix.Read(e.fd, e.buf[:])
		if err != nil {
			return
		}
	}
}

func (e *EventFd) Close() error {
	return unix.Close(e.fd)
}
