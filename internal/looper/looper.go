package looper

import (
	"sync"
	"sync/atomic"
	"time"
)

// CancelFunc cancels a delayed task. Calling it more than once is a no-op.
type CancelFunc func()

// Scheduler is a single-threaded execution context. Every task posted
// to the same Scheduler runs on one logical thread, in post order.
type Scheduler interface {
	Post(fn func())
	PostDelayed(d time.Duration, fn func()) CancelFunc
}

// Looper runs posted tasks on a dedicated goroutine.
type Looper struct {
	mu    sync.Mutex
	queue []func()

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	closeOnce sync.Once
}

var _ Scheduler = (*Looper)(nil)

// New starts a Looper. Close must be called to stop its goroutine.
func New() *Looper {
	l := &Looper{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Looper) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}

		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()

			select {
			case <-l.quit:
				return
			default:
			}
		}
	}
}

func (l *Looper) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Post queues fn and returns without waiting, even when the loop is busy.
// Tasks posted after Close are dropped.
func (l *Looper) Post(fn func()) {
	select {
	case <-l.quit:
		return
	default:
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// PostDelayed queues fn after d. A cancelled task never runs, even when
// its timer already fired and the task is sitting in the queue.
func (l *Looper) PostDelayed(d time.Duration, fn func()) CancelFunc {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if cancelled.Load() {
				return
			}
			fn()
		})
	})

	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Close stops the loop and waits for the running task to return.
func (l *Looper) Close() {
	l.closeOnce.Do(func() {
		close(l.quit)
		<-l.done
	})
}
