// Package waitstrategy provides the pluggable blocking policies consumers use
// when a dispatch channel has nothing to read. Choice of strategy affects
// only latency/CPU trade-off, never correctness: every implementation
// satisfies the same Strategy contract.
package waitstrategy

import (
	"runtime"
	"sync"
	"time"
)

// Strategy suspends a caller until predicate reports true or cancel fires.
// SignalAll wakes every current waiter so it can re-check predicate.
type Strategy interface {
	// WaitFor blocks until predicate() returns true or cancel is closed.
	// It returns the final predicate result; a false return means cancel fired.
	WaitFor(predicate func() bool, cancel <-chan struct{}) bool

	// SignalAll wakes all current waiters so they re-evaluate predicate.
	SignalAll()
}

// cond centralizes the broadcast primitive shared by every strategy below.
// Strategies differ only in how they idle between broadcasts.
type cond struct {
	mu   sync.Mutex
	cv   *sync.Cond
	gen  uint64 // bumped on every SignalAll; the strategies below do not read it
}

func newCond() *cond {
	c := &cond{}
	c.cv = sync.NewCond(&c.mu)
	return c
}

func (c *cond) SignalAll() {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.cv.Broadcast()
}

// watchCancel runs cb once when cancel closes, used to wake a Cond.Wait that
// has no other way to observe channel closure.
func watchCancel(cancel <-chan struct{}, cb func()) (stop func()) {
	if cancel == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-cancel:
			cb()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Spin busy-polls predicate with no yielding. Lowest latency, highest CPU use;
// appropriate for very short expected waits on machines with spare cores.
type Spin struct{ c *cond }

func NewSpin() *Spin { return &Spin{c: newCond()} }

func (s *Spin) SignalAll() { s.c.SignalAll() }

func (s *Spin) WaitFor(predicate func() bool, cancel <-chan struct{}) bool {
	for {
		if predicate() {
			return true
		}
		select {
		case <-cancel:
			return false
		default:
		}
	}
}

// Yield busy-polls but cooperatively hands off the OS thread between checks,
// trading a little latency for much lower CPU burn than Spin.
type Yield struct{ c *cond }

func NewYield() *Yield { return &Yield{c: newCond()} }

func (y *Yield) SignalAll() { y.c.SignalAll() }

func (y *Yield) WaitFor(predicate func() bool, cancel <-chan struct{}) bool {
	for {
		if predicate() {
			return true
		}
		select {
		case <-cancel:
			return false
		default:
			runtime.Gosched()
		}
	}
}

// Park blocks on a condition variable, parked by the OS scheduler until
// SignalAll wakes it. Lowest CPU use, highest wakeup latency.
type Park struct{ c *cond }

func NewPark() *Park { return &Park{c: newCond()} }

func (p *Park) SignalAll() { p.c.SignalAll() }

func (p *Park) WaitFor(predicate func() bool, cancel <-chan struct{}) bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()

	stop := watchCancel(cancel, p.c.cv.Broadcast)
	defer stop()

	for {
		if predicate() {
			return true
		}
		select {
		case <-cancel:
			return false
		default:
		}
		p.c.cv.Wait()
	}
}

// Hybrid escalates Spin -> Yield -> Park as elapsed wait time grows, the
// default strategy: low latency for the common short wait, low CPU burn for
// the rare long one.
type Hybrid struct {
	c          *cond
	spinFor    time.Duration
	yieldFor   time.Duration
	pollPeriod time.Duration
}

// HybridOption configures the escalation thresholds; zero value uses defaults.
type HybridOption func(*Hybrid)

func WithSpinDuration(d time.Duration) HybridOption  { return func(h *Hybrid) { h.spinFor = d } }
func WithYieldDuration(d time.Duration) HybridOption { return func(h *Hybrid) { h.yieldFor = d } }

func NewHybrid(opts ...HybridOption) *Hybrid {
	h := &Hybrid{
		c:          newCond(),
		spinFor:    50 * time.Microsecond,
		yieldFor:   1 * time.Millisecond,
		pollPeriod: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hybrid) SignalAll() { h.c.SignalAll() }

func (h *Hybrid) WaitFor(predicate func() bool, cancel <-chan struct{}) bool {
	start := time.Now()

	for {
		if predicate() {
			return true
		}
		select {
		case <-cancel:
			return false
		default:
		}

		elapsed := time.Since(start)
		switch {
		case elapsed < h.spinFor:
			// busy loop, no yield
		case elapsed < h.yieldFor:
			runtime.Gosched()
		default:
			if h.parkOnce(predicate, cancel) {
				return true
			}
			select {
			case <-cancel:
				return false
			default:
			}
		}
	}
}

// parkOnce waits on the condition variable for at most pollPeriod, re-checking
// predicate afterward regardless of whether SignalAll fired (guards against a
// signal arriving just before Wait is entered).
func (h *Hybrid) parkOnce(predicate func() bool, cancel <-chan struct{}) bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()

	if predicate() {
		return true
	}

	stop := watchCancel(cancel, h.c.cv.Broadcast)
	defer stop()

	go func() {
		time.Sleep(h.pollPeriod)
		h.c.cv.Broadcast()
	}()

	h.c.cv.Wait()
	return predicate()
}
