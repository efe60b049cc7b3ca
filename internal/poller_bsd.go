//go:build darwin || freebsd || dragonfly

package internal

import (
	"os"

	"golang.org/x/sys/unix"
)

// An event report disarms only the filter that fired (EV_ONESHOT is
// per filter); the other filter of the fd stays armed.
const DisarmsAllOnEvent = false

// Poller is a kqueue instance. Read and write interest map to separate
// one-shot EVFILT_READ/EVFILT_WRITE registrations, so a reported
// filter stays quiet until re-armed by its reconciliation. An
// EVFILT_USER event serves as the waker.
type Poller struct {
	kq     int
	events []unix.Kevent_t
}

func NewPoller(batch int) (*Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}

	_, err = unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  uint64(kq),
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		unix.Close(kq)
		return nil, os.NewSyscallError("kevent_add_user", err)
	}

	return &Poller{
		kq:     kq,
		events: make([]unix.Kevent_t, batch),
	}, nil
}

// Add registers fd with the given interest mask.
func (p *Poller) Add(fd int, events Interest) error {
	return p.apply(fd, 0, events)
}

// Modify transitions fd's registration from the old mask to the new
// one by adding and deleting the individual filters that differ.
func (p *Poller) Modify(fd int, old, events Interest) error {
	return p.apply(fd, old, events)
}

// Delete removes whatever filters are registered for fd.
func (p *Poller) Delete(fd int, registered Interest) error {
	return p.apply(fd, registered, 0)
}

func (p *Poller) apply(fd int, old, events Interest) error {
	var changes []unix.Kevent_t

	change := func(filter int16, flags uint16) {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  flags,
		})
	}

	added := events &^ old
	removed := old &^ events
	if added&ReadInterest != 0 {
		change(unix.EVFILT_READ, unix.EV_ADD|unix.EV_ONESHOT)
	}
	if removed&ReadInterest != 0 {
		change(unix.EVFILT_READ, unix.EV_DELETE)
	}
	if added&WriteInterest != 0 {
		change(unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ONESHOT)
	}
	if removed&WriteInterest != 0 {
		change(unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	if len(changes) == 0 {
		return nil
	}

	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return os.NewSyscallError("kevent_change", err)
}

// Wake interrupts a concurrent Wait.
func (p *Poller) Wake() error {
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{{
		Ident:  uint64(p.kq),
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return os.NewSyscallError("kevent_trigger", err)
}

// Wait blocks until a registered fd is ready, the timeout expires
// (timeoutMs >= 0) or Wake is called. kqueue reports read and write
// readiness of one fd as separate events; they are coalesced into a
// single Ready entry here.
func (p *Poller) Wait(ready []Ready, timeoutMs int) (int, error) {
	var timeout *unix.Timespec
	if timeoutMs >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		timeout = &ts
	}

	n, err := unix.Kevent(p.kq, nil, p.events, timeout)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("kevent_wait", err)
	}

	count := 0
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		if ev.Filter == unix.EVFILT_USER {
			continue
		}

		var events Interest
		switch ev.Filter {
		case unix.EVFILT_READ:
			events = ReadInterest
		case unix.EVFILT_WRITE:
			events = WriteInterest
		default:
			continue
		}
		hup := ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0

		merged := false
		for j := 0; j < count; j++ {
			if ready[j].Fd == int(ev.Ident) {
				ready[j].Events |= events
				ready[j].Hup = ready[j].Hup || hup
				merged = true
				break
			}
		}
		if merged || count == len(ready) {
			continue
		}

		ready[count] = Ready{Fd: int(ev.Ident), Events: events, Hup: hup}
		count++
	}

	return count, nil
}

func (p *Poller) Close() error {
	return unix.Close(p.kq)
}
