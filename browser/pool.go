package browser

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/pricescout/models"
)

// Session is one long-lived browser process as seen by the pool.
type Session interface {
	// NewContext creates an isolated browsing context (separate cookies
	// and storage) on this browser.
	NewContext() (Context, error)

	// Close terminates the underlying browser process.
	Close() error
}

// Context is an isolated, short-lived browsing session created for exactly
// one request. It is never shared between requests.
type Context interface {
	Close() error
}

// LaunchFunc starts one browser process. The pool owns the returned session.
type LaunchFunc func() (Session, error)

// Options configures a Pool.
type Options struct {
	// Size is the fixed number of browser slots.
	Size int

	// MaxUses is the context count after which a slot's browser is
	// recycled (terminated and relaunched before its next hand-out).
	MaxUses int

	// LaunchRetries is how many times a failed launch is retried before
	// the slot is marked permanently degraded.
	LaunchRetries int
}

// slot is the pool's record of one browser process. It is owned exclusively
// by the pool's run goroutine; nothing outside run ever touches it.
type slot struct {
	idx            int
	session        Session
	createdAt      time.Time
	useCount       int
	openContexts   int
	needsRecycle   bool
	degraded       bool
	launchFailures int
}

// waiter is a queued acquire request. The reply channel always receives
// exactly one result; callers block on it unconditionally.
type waiter struct {
	ctx   context.Context
	reply chan acquireResult
}

type acquireResult struct {
	handle *ContextHandle
	err    error
}

type releaseMsg struct {
	slotIdx int
}

type statsMsg struct {
	reply chan models.PoolStats
}

// Pool owns a fixed set of long-lived browser processes and issues isolated
// per-request contexts from them.
//
// All slot state lives inside a single goroutine (run) for the pool's whole
// lifetime; acquire, release and stats are messages on channels. No caller
// ever waits on a pool-internal primitive, which removes the class of fault
// where a lock created under one scheduler is waited on from another.
type Pool struct {
	opts   Options
	launch LaunchFunc

	acquireCh chan waiter
	releaseCh chan releaseMsg
	statsCh   chan statsMsg
	done      chan struct{}
	stopped   chan struct{}

	// activeContexts mirrors the actor's count for cheap reads in handles.
	activeContexts atomic.Int32

	// recycled counts browser processes terminated for replacement, from
	// both the use-count path and the failed-context path. Touched only by
	// the run goroutine.
	recycled int
}

// ContextHandle pairs an issued context with its release path. Release is
// safe to call more than once; only the first call returns the slot.
type ContextHandle struct {
	ctx      Context
	slotIdx  int
	pool     *Pool
	released atomic.Bool
}

// Context returns the browsing context owned by this handle.
func (h *ContextHandle) Context() Context {
	return h.ctx
}

// Release closes the browsing context (never the browser) and returns the
// slot to the pool. Idempotent.
func (h *ContextHandle) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	// The context is exclusively ours, so closing it here is safe and
	// keeps slow CDP teardown out of the pool goroutine.
	if err := h.ctx.Close(); err != nil {
		slog.Warn("browser pool: closing context failed", "slot", h.slotIdx, "error", err)
	}
	h.pool.activeContexts.Add(-1)
	select {
	case h.pool.releaseCh <- releaseMsg{slotIdx: h.slotIdx}:
	case <-h.pool.done:
	}
}

// NewPool creates a pool of size slots. Slots fill lazily: the first acquire
// that lands on an empty slot launches its browser. The run goroutine is the
// single initialization owner, so concurrent first-callers cannot race.
func NewPool(opts Options, launch LaunchFunc) *Pool {
	if opts.Size < 1 {
		opts.Size = 1
	}
	if opts.MaxUses < 1 {
		opts.MaxUses = 1
	}
	p := &Pool{
		opts:      opts,
		launch:    launch,
		acquireCh: make(chan waiter),
		releaseCh: make(chan releaseMsg, opts.Size),
		statsCh:   make(chan statsMsg),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go p.run()
	return p
}

// AcquireContext blocks until a healthy slot is free, then returns a fresh
// isolated context on it. It fails fast with PoolExhausted when every slot
// is permanently degraded, and with NavigationTimeout semantics left to the
// caller: ctx expiry here surfaces as AdmissionTimeout since the caller is
// no longer willing to wait.
func (p *Pool) AcquireContext(ctx context.Context) (*ContextHandle, error) {
	w := waiter{ctx: ctx, reply: make(chan acquireResult, 1)}
	select {
	case p.acquireCh <- w:
	case <-p.done:
		return nil, models.NewScrapeError(models.ErrCodePoolExhausted, "browser pool is shut down", nil)
	case <-ctx.Done():
		return nil, models.NewScrapeError(models.ErrCodeAdmissionTimeout, "gave up waiting for a browser slot", ctx.Err())
	}
	// The run goroutine guarantees exactly one reply per enqueued waiter.
	res := <-w.reply
	return res.handle, res.err
}

// Stats returns a snapshot of the pool's current state.
func (p *Pool) Stats() models.PoolStats {
	m := statsMsg{reply: make(chan models.PoolStats, 1)}
	select {
	case p.statsCh <- m:
		return <-m.reply
	case <-p.done:
		return models.PoolStats{PoolSize: p.opts.Size}
	}
}

// Close shuts the pool down: pending waiters get PoolExhausted, all browser
// processes are terminated. Blocks until the run goroutine has exited.
func (p *Pool) Close() {
	close(p.done)
	<-p.stopped
}

// run is the pool's owning goroutine. Every slot mutation happens here.
func (p *Pool) run() {
	defer close(p.stopped)

	slots := make([]*slot, p.opts.Size)
	for i := range slots {
		slots[i] = &slot{idx: i}
	}
	var waiters []waiter
	var rr int // round-robin cursor

	// Waiters whose context expired are answered on a coarse tick; the
	// admission gate bounds queue depth so the list stays tiny.
	expire := time.NewTicker(500 * time.Millisecond)
	defer expire.Stop()

	dispatch := func() {
		waiters = p.expireWaiters(waiters)
		for len(waiters) > 0 {
			s := p.pickSlot(slots, &rr)
			if s == nil {
				if allDegraded(slots) {
					for _, w := range waiters {
						w.reply <- acquireResult{err: models.NewScrapeError(
							models.ErrCodePoolExhausted,
							"no launchable browser slot remains",
							nil,
						)}
					}
					waiters = waiters[:0]
				}
				return
			}
			w := waiters[0]
			waiters = waiters[1:]
			handle, err := p.grant(s)
			if err != nil {
				// Slot went bad while granting; requeue the waiter and
				// let the next loop iteration try another slot.
				waiters = append([]waiter{w}, waiters...)
				continue
			}
			w.reply <- acquireResult{handle: handle}
		}
	}

	for {
		select {
		case w := <-p.acquireCh:
			waiters = append(waiters, w)
			dispatch()

		case rel := <-p.releaseCh:
			s := slots[rel.slotIdx]
			s.openContexts--
			if s.openContexts < 0 {
				slog.Error("browser pool: release without matching acquire", "slot", s.idx)
				s.openContexts = 0
			}
			// Recycling is deferred until no other context on this
			// browser is in flight.
			if s.needsRecycle && s.openContexts == 0 {
				p.recycleSlot(s)
			}
			dispatch()

		case m := <-p.statsCh:
			m.reply <- models.PoolStats{
				PoolSize:       p.opts.Size,
				ActiveContexts: int(p.activeContexts.Load()),
				RecycledCount:  p.recycled,
				DegradedSlots:  countDegraded(slots),
				QueueDepth:     len(waiters),
			}

		case <-expire.C:
			before := len(waiters)
			waiters = p.expireWaiters(waiters)
			if len(waiters) != before {
				dispatch()
			}

		case <-p.done:
			for _, w := range waiters {
				w.reply <- acquireResult{err: models.NewScrapeError(
					models.ErrCodePoolExhausted, "browser pool is shut down", nil)}
			}
			for _, s := range slots {
				if s.session != nil {
					if err := s.session.Close(); err != nil {
						slog.Warn("browser pool: closing browser failed", "slot", s.idx, "error", err)
					}
					s.session = nil
				}
			}
			return
		}
	}
}

// pickSlot returns the next free, non-degraded slot in round-robin order,
// or nil when none is free right now.
func (p *Pool) pickSlot(slots []*slot, rr *int) *slot {
	n := len(slots)
	for i := 0; i < n; i++ {
		s := slots[(*rr+i)%n]
		if s.degraded || s.openContexts > 0 {
			continue
		}
		*rr = (s.idx + 1) % n
		return s
	}
	return nil
}

// grant ensures the slot has a live browser and opens a fresh context on it.
// A slot that cannot be made ready is degraded and an error returned so the
// dispatcher can try its neighbours.
func (p *Pool) grant(s *slot) (*ContextHandle, error) {
	if s.session == nil {
		if err := p.launchSlot(s); err != nil {
			return nil, err
		}
	}

	cx, err := s.session.NewContext()
	if err != nil {
		// The browser is probably gone; recycle once and retry on a
		// fresh process before giving up on the slot.
		slog.Warn("browser pool: context creation failed, relaunching", "slot", s.idx, "error", err)
		p.recycleSlot(s)
		if lerr := p.launchSlot(s); lerr != nil {
			return nil, lerr
		}
		cx, err = s.session.NewContext()
		if err != nil {
			s.degraded = true
			return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch,
				"browser refuses to create contexts", err)
		}
	}

	s.useCount++
	s.openContexts++
	if s.useCount >= p.opts.MaxUses {
		s.needsRecycle = true
	}
	p.activeContexts.Add(1)

	return &ContextHandle{ctx: cx, slotIdx: s.idx, pool: p}, nil
}

// launchSlot starts the slot's browser, retrying per configuration. After
// the final failure the slot is permanently degraded and excluded from
// rotation.
func (p *Pool) launchSlot(s *slot) error {
	var lastErr error
	for attempt := 0; attempt <= p.opts.LaunchRetries; attempt++ {
		sess, err := p.launch()
		if err == nil {
			s.session = sess
			s.createdAt = time.Now()
			s.useCount = 0
			s.needsRecycle = false
			s.launchFailures = 0
			slog.Info("browser pool: slot launched", "slot", s.idx, "attempt", attempt+1)
			return nil
		}
		lastErr = err
		s.launchFailures++
		slog.Warn("browser pool: launch failed", "slot", s.idx, "attempt", attempt+1, "error", err)
	}
	s.degraded = true
	slog.Error("browser pool: slot permanently degraded", "slot", s.idx)
	return models.NewScrapeError(models.ErrCodeBrowserLaunch, "browser failed to launch", lastErr)
}

// recycleSlot terminates the slot's browser process. The replacement is
// launched on the slot's next hand-out.
func (p *Pool) recycleSlot(s *slot) {
	if s.session == nil {
		return
	}
	slog.Info("browser pool: recycling slot", "slot", s.idx, "useCount", s.useCount,
		"age", time.Since(s.createdAt).Round(time.Second))
	if err := s.session.Close(); err != nil {
		slog.Warn("browser pool: closing browser for recycle failed", "slot", s.idx, "error", err)
	}
	s.session = nil
	s.useCount = 0
	s.needsRecycle = false
	p.recycled++
}

func (p *Pool) expireWaiters(waiters []waiter) []waiter {
	kept := waiters[:0]
	for _, w := range waiters {
		if err := w.ctx.Err(); err != nil {
			w.reply <- acquireResult{err: models.NewScrapeError(
				models.ErrCodeAdmissionTimeout, "gave up waiting for a browser slot", err)}
			continue
		}
		kept = append(kept, w)
	}
	return kept
}

func allDegraded(slots []*slot) bool {
	for _, s := range slots {
		if !s.degraded {
			return false
		}
	}
	return true
}

func countDegraded(slots []*slot) int {
	n := 0
	for _, s := range slots {
		if s.degraded {
			n++
		}
	}
	return n
}
