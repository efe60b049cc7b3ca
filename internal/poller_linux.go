//go:build linux

package internal

import (
	"os"

	"golang.org/x/sys/unix"
)

// An event report disarms the fd's whole registration until the next
// Modify (EPOLLONESHOT).
const DisarmsAllOnEvent = true

// Poller is an epoll instance with one-shot registrations: a reported
// fd stays quiet until re-armed, so the poll cycle never re-reports
// readiness that is still waiting on its reconciliation. The Poller
// only reports readiness; dispatch is the caller's job.
type Poller struct {
	fd     int
	waker  *EventFd
	events []unix.EpollEvent
}

// NewPoller creates a Poller receiving at most batch events per Wait.
func NewPoller(batch int) (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	waker, err := NewEventFd()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	p := &Poller{
		fd:     fd,
		waker:  waker,
		events: make([]unix.EpollEvent, batch),
	}

	// the waker is the one persistent (non-oneshot) registration
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(waker.Fd())}
	if err := unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, waker.Fd(), &ev); err != nil {
		waker.Close()
		unix.Close(fd)
		return nil, os.NewSyscallError("epoll_ctl_add", err)
	}

	return p, nil
}

func toEpoll(events Interest) uint32 {
	ev := uint32(unix.EPOLLONESHOT)
	if events&ReadInterest != 0 {
		ev |= unix.EPOLLIN
	}
	if events&WriteInterest != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Add registers fd with the given interest mask. A zero mask is valid:
// the fd stays registered but reports at most one error event until
// armed.
func (p *Poller) Add(fd int, events Interest) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	return os.NewSyscallError(
		"epoll_ctl_add", unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev))
}

// Modify replaces fd's registered mask. The old mask is unused here but
// required by the kqueue implementation.
func (p *Poller) Modify(fd int, _, events Interest) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	return os.NewSyscallError(
		"epoll_ctl_mod", unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev))
}

// Delete removes fd from the poller. The kernel drops the registration
// on its own if fd was already closed; callers may see EBADF or ENOENT
// here and should treat both as already-deleted.
func (p *Poller) Delete(fd int, _ Interest) error {
	return os.NewSyscallError(
		"epoll_ctl_del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// Wake interrupts a concurrent Wait.
func (p *Poller) Wake() error {
	return p.waker.Signal()
}

// Wait blocks until at least one registered fd is ready, the timeout
// expires (timeoutMs >= 0) or Wake is called, then fills ready with the
// satisfied interest bits per fd. A signal-interrupted wait reports
// zero events rather than an error.
func (p *Poller) Wait(ready []Ready, timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.fd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}

	count := 0
	for i := 0; i < n && count < len(ready); i++ {
		ev := &p.events[i]
		if int(ev.Fd) == p.waker.Fd() {
			p.waker.Drain()
			continue
		}

		var events Interest
		if ev.Events&unix.EPOLLIN != 0 {
			events |= ReadInterest
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			events |= WriteInterest
		}
		hup := ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0

		ready[count] = Ready{Fd: int(ev.Fd), Events: events, Hup: hup}
		count++
	}

	return count, nil
}

func (p *Poller) Close() error {
	p.waker.Close()
	return unix.Close(p.fd)
}
