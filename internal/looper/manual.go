package looper

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by a virtual clock. Tasks only run from
// RunPending or Advance, on the caller's goroutine.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	queue []*manualTask
}

type manualTask struct {
	at        time.Duration
	seq       int
	fn        func()
	cancelled bool
}

var _ Scheduler = (*Manual)(nil)

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Post(fn func()) {
	m.PostDelayed(0, fn)
}

func (m *Manual) PostDelayed(d time.Duration, fn func()) CancelFunc {
	if d < 0 {
		d = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTask{at: m.now + d, seq: m.seq, fn: fn}
	m.queue = append(m.queue, t)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.cancelled = true
	}
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of tasks not yet run or cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.queue {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// RunPending runs every task due at the current virtual time, including
// tasks posted by those tasks.
func (m *Manual) RunPending() {
	m.Advance(0)
}

// Advance moves the clock forward by d, running due tasks in time order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		t := m.next(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) next(target time.Duration) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.queue[:0]
	for _, t := range m.queue {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.queue = live

	sort.Slice(m.queue, func(i, j int) bool {
		if m.queue[i].at == m.queue[j].at {
			return m.queue[i].seq < m.queue[j].seq
		}
		return m.queue[i].at < m.queue[j].at
	})

	if len(m.queue) == 0 || m.queue[0].at > target {
		return nil
	}

	t := m.queue[0]
	m.queue = m.queue[1:]
	if t.at > m.now {
		m.now = t.at
	}
	return t
}
