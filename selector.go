package selkie

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/selkie-io/selkie/internal"
)

type options struct {
	workers int
	batch   int
}

// Option configures a Selector.
type Option func(*options)

// WithWorkers sets the number of goroutines draining the submit queue.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithEventBatch sets the maximum number of readiness events consumed
// per poll cycle.
func WithEventBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batch = n
		}
	}
}

// Selector multiplexes many endpoints over one platform poller. The
// polling goroutine (Run) only stamps ready bits and dispatches; every
// transfer callback and every reconciliation task runs on the worker
// goroutines draining the submit queue.
type Selector struct {
	poller *internal.Poller

	mu        sync.Mutex
	endpoints map[int]*Endpoint

	taskMu   sync.Mutex
	taskCond *sync.Cond
	tasks    *queue.Queue

	ready []internal.Ready

	latMu   sync.Mutex
	latency *hdrhistogram.Histogram

	closed uint32
	wg     sync.WaitGroup
}

var _ SelectorLoop = (*Selector)(nil)

// NewSelector creates a selector and starts its worker goroutines. The
// caller still has to drive the poll cycle with Run.
func NewSelector(opts ...Option) (*Selector, error) {
	o := &options{
		workers: runtime.GOMAXPROCS(0),
		batch:   128,
	}
	for _, opt := range opts {
		opt(o)
	}

	poller, err := internal.NewPoller(o.batch)
	if err != nil {
		return nil, err
	}

	s := &Selector{
		poller:    poller,
		endpoints: make(map[int]*Endpoint),
		tasks:     queue.New(),
		ready:     make([]internal.Ready, o.batch),
		// poll cycle dispatch latency, 1us to 10s
		latency: hdrhistogram.New(1, 10_000_000, 3),
	}
	s.taskCond = sync.NewCond(&s.taskMu)

	for i := 0; i < o.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s, nil
}

// Register places fd, which must be non-blocking, under the selector's
// watch and opens an endpoint for it. The fd is registered with an
// empty interest mask; nothing is reported until the transfer layer
// requests interest.
func (s *Selector) Register(fd int, transfer Transfer) (*Endpoint, error) {
	if s.Closed() {
		return nil, ErrSelectorClosed
	}

	key := newKey(fd, s)
	ep := NewEndpoint(s, key, transfer)

	if err := s.poller.Add(fd, 0); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.endpoints[fd] = ep
	s.mu.Unlock()

	ep.Open()
	return ep, nil
}

// Submit enqueues task for execution on a worker goroutine. Tasks
// submitted after Close are dropped.
func (s *Selector) Submit(task func()) {
	if s.Closed() {
		log.Debugf("dropping task submitted to closed selector")
		return
	}

	s.taskMu.Lock()
	s.tasks.Add(task)
	s.taskMu.Unlock()
	s.taskCond.Signal()
}

// DestroyEndpoint cancels the endpoint's key and forgets its
// registration. Invoked at most once per endpoint, by its close
// transition.
func (s *Selector) DestroyEndpoint(ep *Endpoint) {
	key := ep.Key()
	registered := key.registeredOps()
	key.cancel()

	// The transfer layer usually closed the fd already, in which case
	// the kernel dropped the registration on its own.
	if err := s.poller.Delete(key.Fd(), registered); err != nil {
		log.Debugf("deregister fd=%d: %v", key.Fd(), err)
	}

	s.mu.Lock()
	delete(s.endpoints, key.Fd())
	s.mu.Unlock()
}

// applyInterest implements interestOwner. A registration that vanished
// underneath us (fd closed elsewhere) reports ErrKeyCancelled rather
// than a syscall error.
func (s *Selector) applyInterest(k *Key, old, events Interest) error {
	err := s.poller.Modify(k.Fd(), old, events)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
		return ErrKeyCancelled
	}
	return err
}

// Run drives the poll/dispatch cycle until Close. It blocks the
// calling goroutine; typical usage is
//
//	go func() { _ = s.Run() }()
func (s *Selector) Run() error {
	for !s.Closed() {
		if err := s.runOnce(-1); err != nil {
			if s.Closed() {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *Selector) runOnce(timeoutMs int) error {
	n, err := s.poller.Wait(s.ready, timeoutMs)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		s.processReady(s.ready[i])
	}
	s.recordLatency(time.Since(start))

	return nil
}

func (s *Selector) processReady(r internal.Ready) {
	s.mu.Lock()
	ep := s.endpoints[r.Fd]
	s.mu.Unlock()
	if ep == nil {
		// destroyed earlier in this cycle
		return
	}

	key := ep.Key()
	readyOps := r.Events & key.registeredOps()
	if r.Hup {
		// Error and hang-up conditions surface as readiness of
		// whatever is registered; the transfer callbacks observe the
		// failure from their own syscalls.
		readyOps = key.registeredOps()
	}
	if readyOps == 0 {
		return
	}
	key.setReadyOps(readyOps)

	task := ep.OnSelected()

	// The dispatch consumed readiness, so a reconciliation is owed no
	// matter what; running it behind the callback lets interest
	// requested by the callback fold into the same update.
	s.Submit(func() {
		if task != nil {
			task()
		}
		ep.updateKey()
	})
}

func (s *Selector) worker() {
	defer s.wg.Done()
	for {
		s.taskMu.Lock()
		for s.tasks.Length() == 0 && !s.Closed() {
			s.taskCond.Wait()
		}
		if s.tasks.Length() == 0 {
			s.taskMu.Unlock()
			return
		}
		task := s.tasks.Remove().(func())
		s.taskMu.Unlock()

		task()
	}
}

func (s *Selector) recordLatency(d time.Duration) {
	s.latMu.Lock()
	_ = s.latency.RecordValue(d.Microseconds())
	s.latMu.Unlock()
}

// PollLatency returns a snapshot of the per-cycle dispatch latency
// distribution, in microseconds.
func (s *Selector) PollLatency() *hdrhistogram.Histogram {
	s.latMu.Lock()
	defer s.latMu.Unlock()
	return hdrhistogram.Import(s.latency.Export())
}

func (s *Selector) Closed() bool {
	return atomic.LoadUint32(&s.closed) == 1
}

// Close stops the poll cycle, drains and stops the workers, closes the
// remaining endpoints and releases the poller. Safe to call while Run
// is blocked in a wait.
func (s *Selector) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return ErrSelectorClosed
	}

	if err := s.poller.Wake(); err != nil {
		log.Debugf("waking poller for close: %v", err)
	}
	s.taskCond.Broadcast()
	s.wg.Wait()

	s.mu.Lock()
	remaining := make([]*Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		remaining = append(remaining, ep)
	}
	s.mu.Unlock()
	for _, ep := range remaining {
		ep.Close()
	}

	return s.poller.Close()
}
