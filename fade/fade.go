// Package fade interpolates volume over time on a single-threaded
// execution context.
package fade

import (
	"time"

	"ambientcast.app/ambientcast/internal/looper"
)

const (
	// StepInterval is the target spacing between two volume updates.
	StepInterval = 50 * time.Millisecond
	// MaxSteps caps the number of updates of a single fade.
	MaxSteps = 50
	// MinSteps is the lower bound for any fade with a positive duration.
	MinSteps = 3
	// ReadyPollInterval is how often a deferred fade re-checks readiness.
	ReadyPollInterval = 50 * time.Millisecond
)

// Fader drives at most one fade timeline at a time. All methods must be
// called from the Scheduler's thread.
type Fader struct {
	sched looper.Scheduler
	apply func(volume float64)
	ready func() bool

	current *task
}

type task struct {
	from, to float64
	steps    int
	interval time.Duration
	onDone   func()

	next      int
	cancelled bool
	pending   looper.CancelFunc
}

// New returns a Fader that writes volumes through apply. ready may be nil,
// in which case the target is always considered ready.
func New(sched looper.Scheduler, apply func(volume float64), ready func() bool) *Fader {
	return &Fader{
		sched: sched,
		apply: apply,
		ready: ready,
	}
}

// Steps returns how many volume updates a fade of duration d performs.
func Steps(d time.Duration) int {
	n := int(d / StepInterval)
	if n > MaxSteps {
		n = MaxSteps
	}
	if n < MinSteps {
		n = MinSteps
	}
	return n
}

// Fade moves the volume from from to to over d and calls onDone once the
// last step is applied. Any fade in flight is cancelled first and its
// onDone is never called. When d <= 0 or from == to, to is applied and
// onDone runs before Fade returns.
func (f *Fader) Fade(from, to float64, d time.Duration, onDone func()) {
	f.Cancel()

	if d <= 0 || from == to {
		f.apply(to)
		if onDone != nil {
			onDone()
		}
		return
	}

	steps := Steps(d)
	t := &task{
		from:     from,
		to:       to,
		steps:    steps,
		interval: d / time.Duration(steps),
		onDone:   onDone,
	}
	f.current = t

	if f.ready != nil && !f.ready() {
		f.waitReady(t)
		return
	}
	f.start(t)
}

// Cancel drops the fade in flight, if any.
func (f *Fader) Cancel() {
	if f.current == nil {
		return
	}
	f.current.cancelled = true
	if f.current.pending != nil {
		f.current.pending()
	}
	f.current = nil
}

// Active reports whether a fade timeline is pending.
func (f *Fader) Active() bool {
	return f.current != nil
}

// Remaining returns the time left until the fade in flight reaches its
// target, or 0 when no fade is pending. A fade still waiting for readiness
// reports its full duration.
func (f *Fader) Remaining() time.Duration {
	t := f.current
	if t == nil {
		return 0
	}
	if t.next == 0 {
		return time.Duration(t.steps) * t.interval
	}
	return time.Duration(t.steps-t.next+1) * t.interval
}

func (f *Fader) waitReady(t *task) {
	t.pending = f.sched.PostDelayed(ReadyPollInterval, func() {
		if t.cancelled {
			return
		}
		if !f.ready() {
			f.waitReady(t)
			return
		}
		f.start(t)
	})
}

func (f *Fader) start(t *task) {
	f.apply(t.from)
	f.schedule(t, 1)
}

func (f *Fader) schedule(t *task, i int) {
	t.next = i
	t.pending = f.sched.PostDelayed(t.interval, func() {
		if t.cancelled {
			return
		}

		if i >= t.steps {
			f.apply(t.to)
			f.current = nil
			if t.onDone != nil {
				t.onDone()
			}
			return
		}

		f.apply(interpolate(t.from, t.to, i, t.steps))
		f.schedule(t, i+1)
	})
}

func interpolate(from, to float64, i, steps int) float64 {
	v := from + (to-from)*float64(i)/float64(steps)
	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	return min(max(v, lo), hi)
}
