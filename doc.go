// Package selkie is a per-connection interest-state kernel for a
// shared selector loop: worker goroutines request future read/write
// readiness on an endpoint, a polling goroutine reports it, and the
// endpoint reconciles the two without ever queueing more than one
// registration update at a time.
//
// A Selector drives the poll/dispatch cycle over epoll or kqueue and
// runs transfer callbacks and reconciliation tasks on its worker
// goroutines. Each registered file descriptor is owned by an Endpoint,
// which exposes the interest protocol to the Transfer that moves the
// bytes.
package selkie
