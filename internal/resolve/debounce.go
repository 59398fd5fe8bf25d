package resolve

import (
	"sync"
	"time"
)

// Debouncer delays fn until a quiet period of the configured length has
// elapsed since the last Call, invoking it once with the most recent
// payload. Bursts of events for the same logical change collapse into a
// single invocation.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	stopped bool
}

func NewDebouncer[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Call records v as the latest payload and restarts the quiet-period
// timer. Safe for concurrent use.
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending = v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.timer = nil
	d.mu.Unlock()

	d.fn(v)
}

// Stop cancels any pending invocation. Subsequent Calls are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Throttler guarantees at most one invocation of fn per window: the first
// Call in an idle window fires immediately, later calls within the window
// are coalesced into one trailing invocation carrying the most recent
// payload.
type Throttler[T any] struct {
	window time.Duration
	fn     func(T)

	mu       sync.Mutex
	lastFire time.Time
	trailer  *time.Timer
	pending  T
	stopped  bool
}

func NewThrottler[T any](window time.Duration, fn func(T)) *Throttler[T] {
	return &Throttler[T]{window: window, fn: fn}
}

// Call invokes fn(v) immediately when outside the window, otherwise
// retains v for the trailing invocation at the window boundary.
func (t *Throttler[T]) Call(v T) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	now := time.Now()
	if t.trailer == nil && now.Sub(t.lastFire) >= t.window {
		t.lastFire = now
		t.mu.Unlock()
		t.fn(v)
		return
	}

	t.pending = v
	if t.trailer == nil {
		wait := t.window - now.Sub(t.lastFire)
		t.trailer = time.AfterFunc(wait, t.fireTrailing)
	}
	t.mu.Unlock()
}

func (t *Throttler[T]) fireTrailing() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	v := t.pending
	t.trailer = nil
	t.lastFire = time.Now()
	t.mu.Unlock()

	t.fn(v)
}

// Stop cancels any pending trailing invocation. Subsequent Calls are
// ignored.
func (t *Throttler[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.trailer != nil {
		t.trailer.Stop()
		t.trailer = nil
	}
}
