package selkie

import (
	"sync/atomic"

	"github.com/selkie-io/selkie/internal"
)

// interestOwner applies a key's registered-interest mask to the
// underlying multiplexer registration.
type interestOwner interface {
	applyInterest(k *Key, old, events Interest) error
}

// Key is the registration of one file descriptor with a selector: the
// readiness handle through which the poll cycle reports satisfied
// interest bits and through which the endpoint's reconciliation task
// applies its desired mask.
//
// A Key becomes permanently invalid once cancelled; every subsequent
// interest operation fails with ErrKeyCancelled.
type Key struct {
	fd    int
	owner interestOwner

	interest  uint32 // registered mask, mirrors the kernel registration
	ready     uint32 // ready bits of the current poll cycle
	cancelled uint32
}

func newKey(fd int, owner interestOwner) *Key {
	return &Key{fd: fd, owner: owner}
}

func (k *Key) Fd() int {
	return k.fd
}

// ReadyOps returns the interest bits satisfied in the current poll
// cycle. Valid between the poll cycle stamping them and the endpoint's
// dispatch consuming them.
func (k *Key) ReadyOps() Interest {
	return Interest(atomic.LoadUint32(&k.ready))
}

func (k *Key) setReadyOps(events Interest) {
	atomic.StoreUint32(&k.ready, uint32(events))
}

// InterestOps returns the currently registered interest mask.
func (k *Key) InterestOps() (Interest, error) {
	if !k.IsValid() {
		return 0, ErrKeyCancelled
	}
	return k.registeredOps(), nil
}

// SetInterestOps replaces the registered interest mask.
func (k *Key) SetInterestOps(events Interest) error {
	if !k.IsValid() {
		return ErrKeyCancelled
	}
	old := k.registeredOps()
	if err := k.owner.applyInterest(k, old, events); err != nil {
		return err
	}
	atomic.StoreUint32(&k.interest, uint32(events))
	return nil
}

// consume mirrors the kernel-side disarm that delivering ready caused:
// the whole registration on platforms with one-shot fds, just the
// reported bits where one-shot is per filter. Called from the dispatch
// critical section, before the owed reconciliation reads the mask.
func (k *Key) consume(ready Interest) {
	if internal.DisarmsAllOnEvent {
		atomic.StoreUint32(&k.interest, 0)
		return
	}
	old := Interest(atomic.LoadUint32(&k.interest))
	atomic.StoreUint32(&k.interest, uint32(old&^ready))
}

func (k *Key) registeredOps() Interest {
	return Interest(atomic.LoadUint32(&k.interest))
}

func (k *Key) IsValid() bool {
	return atomic.LoadUint32(&k.cancelled) == 0
}

func (k *Key) cancel() {
	atomic.StoreUint32(&k.cancelled, 1)
}
