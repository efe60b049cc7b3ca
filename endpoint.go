package selkie

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// SelectorLoop is the part of a selector an Endpoint calls into.
type SelectorLoop interface {
	// Submit enqueues task for execution on a worker goroutine. It
	// must not block and must never run the task inline.
	Submit(task func())

	// DestroyEndpoint releases the endpoint's registration. Called at
	// most once per endpoint, from its close transition.
	DestroyEndpoint(ep *Endpoint)
}

// Endpoint reconciles two concurrently mutated views of one channel's
// multiplexer registration: the interest mask the transfer layer wants
// (readable, writable, both) and the mask actually registered with the
// key. Interest requests fold into a single outstanding reconciliation
// task submitted to the selector loop; the task applies the desired
// mask to the key on a worker goroutine.
//
// The desired mask and the pending flag are guarded by a spin lock held
// only for a few field accesses. The open flag is guarded separately by
// an atomic compare-and-swap so lifecycle checks never contend with the
// interest protocol.
type Endpoint struct {
	lock spinLock

	// interestOps is the desired value for the key's registered mask.
	// Guarded by lock.
	interestOps Interest

	// updatePending is true from the moment a reconciliation task is
	// submitted until that task has applied the mask. Guarded by lock.
	updatePending bool

	// open is true between the Open and Close transitions.
	open uint32

	loop     SelectorLoop
	key      *Key
	transfer Transfer

	runUpdateKey             func()
	runFillable              func()
	runCompleteWrite         func()
	runFillableCompleteWrite func()
}

// NewEndpoint binds a key and its transfer layer to a selector loop.
// The caller must invoke Open once the registration is in place.
func NewEndpoint(loop SelectorLoop, key *Key, transfer Transfer) *Endpoint {
	ep := &Endpoint{
		loop:     loop,
		key:      key,
		transfer: transfer,
	}
	ep.runUpdateKey = ep.updateKey
	ep.runFillable = transfer.Fillable
	ep.runCompleteWrite = transfer.CompleteWrite
	ep.runFillableCompleteWrite = func() {
		transfer.Fillable()
		transfer.CompleteWrite()
	}
	return ep
}

func (ep *Endpoint) Key() *Key {
	return ep.key
}

// WantRead asks to be notified once when the channel becomes readable.
// Fire and forget: requesting a bit already desired is a no-op.
func (ep *Endpoint) WantRead() {
	ep.changeInterests(ReadInterest)
}

// WantWrite asks to be notified once when the channel becomes writable.
func (ep *Endpoint) WantWrite() {
	ep.changeInterests(WriteInterest)
}

func (ep *Endpoint) changeInterests(events Interest) {
	// May run concurrently with updateKey and OnSelected.
	var pending bool
	var oldOps, newOps Interest

	ep.lock.lock()
	pending = ep.updatePending
	oldOps = ep.interestOps
	newOps = oldOps | events
	ep.interestOps = newOps
	if !pending {
		// Claim the pending slot before submitting so a racing second
		// request folds into this task instead of spawning another.
		ep.updatePending = true
	}
	ep.lock.unlock()

	log.Debugf("changeInterests pending=%v %v->%v for %v", pending, oldOps, newOps, ep)

	if !pending {
		ep.loop.Submit(ep.runUpdateKey)
	}
}

// OnSelected converts the key's ready bits into the transfer callback
// owed for this poll cycle. The selector calls it on the polling
// goroutine, once per cycle, only when the key has nonzero ready bits;
// the returned callback (nil if none) must run on a worker goroutine.
//
// The ready bits are cleared from the desired mask here, before any
// callback runs: a satisfied bit stays unregistered until the transfer
// layer asks for it again.
func (ep *Endpoint) OnSelected() func() {
	// May run concurrently with changeInterests.
	ep.lock.lock()
	// The consumed bits leave the registered mask out of sync with the
	// desired one, so an update is owed regardless of what the
	// callbacks request.
	ep.updatePending = true
	readyOps := ep.key.ReadyOps()
	oldOps := ep.interestOps
	newOps := oldOps &^ readyOps
	ep.interestOps = newOps
	ep.key.consume(readyOps)
	ep.lock.unlock()

	log.Debugf("onSelected %v->%v for %v", oldOps, newOps, ep)

	readable := readyOps&ReadInterest != 0
	writable := readyOps&WriteInterest != 0
	switch {
	case readable && writable:
		return ep.runFillableCompleteWrite
	case readable:
		return ep.runFillable
	case writable:
		return ep.runCompleteWrite
	default:
		return nil
	}
}

// updateKey is the reconciliation task: it copies the desired interest
// mask into the key's registered mask. It runs on a worker goroutine,
// never on the polling one, and at most one instance is outstanding per
// endpoint.
func (ep *Endpoint) updateKey() {
	// May run concurrently with changeInterests.
	var oldOps, newOps Interest
	var err error

	ep.lock.lock()
	// Clear the pending flag before touching the key so a failure
	// below cannot leave it stuck; a request arriving from here on
	// submits a fresh task.
	ep.updatePending = false
	oldOps, err = ep.key.InterestOps()
	if err == nil {
		newOps = ep.interestOps
		if oldOps != newOps {
			err = ep.key.SetInterestOps(newOps)
		}
	}
	ep.lock.unlock()

	if err != nil {
		if errors.Is(err, ErrKeyCancelled) {
			log.Debugf("ignoring key update for concurrently closed %v", ep)
		} else {
			log.Warnf("key update failed for %v: %v", ep, err)
		}
		ep.Close()
		return
	}

	log.Debugf("key interests updated %v->%v for %v", oldOps, newOps, ep)
}

// Open marks the endpoint open. Only the goroutine that wins the
// transition runs the transfer layer's open hook; repeat calls are safe
// no-ops.
func (ep *Endpoint) Open() {
	if atomic.CompareAndSwapUint32(&ep.open, 0, 1) {
		ep.transfer.OnOpen(ep)
	}
}

// Close marks the endpoint closed, runs the transfer layer's close hook
// and releases the registration. Only the goroutine that wins the
// transition does any of that; repeat calls are safe no-ops.
func (ep *Endpoint) Close() {
	if atomic.CompareAndSwapUint32(&ep.open, 1, 0) {
		ep.transfer.OnClose()
		ep.loop.DestroyEndpoint(ep)
	}
}

// IsOpen reports whether the endpoint is open. It reads only the
// endpoint's own flag: a goroutine may have won the close transition
// without having run the transfer layer's close hook yet, so deriving
// this from the transfer layer's state would lie during that window.
func (ep *Endpoint) IsOpen() bool {
	return atomic.LoadUint32(&ep.open) == 1
}

func (ep *Endpoint) String() string {
	ep.lock.lock()
	ops := ep.interestOps
	pending := ep.updatePending
	ep.lock.unlock()

	kio := Interest(0)
	kro := Interest(0)
	if ep.key.IsValid() {
		kio = ep.key.registeredOps()
		kro = ep.key.ReadyOps()
	}
	return fmt.Sprintf("endpoint{fd=%d io=%v kio=%v kro=%v pending=%v open=%v}",
		ep.key.Fd(), ops, kio, kro, pending, ep.IsOpen())
}
