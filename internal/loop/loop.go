// Package loop provides the single-threaded cooperative executor that
// serializes every event the core processes.
//
// All attribute-protocol callbacks, HCI completions, audio framework
// requests and timer expirations are posted here and drained by one
// goroutine. Component state is only ever touched from that goroutine,
// which is why the rest of the module carries no locks.
package loop

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Loop is the main executor. Tasks posted with Post run in submission
// order on a single goroutine. A Loop must be created with New and
// stopped exactly once with Stop.
type Loop struct {
	tasks chan func()
	stop  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	stopped bool
}

const taskBacklog = 256

// New creates and starts a main loop.
func New() *Loop {
	l := &Loop{
		tasks: make(chan func(), taskBacklog),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.stop:
			// Drain whatever was already queued so teardown
			// callbacks observe a consistent order.
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Post schedules task on the main loop. Safe to call from any
// goroutine, including the loop itself (the task then runs after the
// current one returns). Tasks posted after Stop are dropped.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Post",
		}).Debug("Task posted after loop stop, dropping")
		return
	}
	l.mu.Unlock()

	select {
	case l.tasks <- task:
	case <-l.stop:
	}
}

// PostAndWait schedules task and blocks until it has run. Must not be
// called from the loop goroutine itself.
func (l *Loop) PostAndWait(task func()) {
	ran := make(chan struct{})
	l.Post(func() {
		task()
		close(ran)
	})
	select {
	case <-ran:
	case <-l.done:
	}
}

// Stop terminates the loop after draining queued tasks and waits for
// the loop goroutine to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stop)
	<-l.done
}

// Timer is a one-shot alarm that fires its callback on the main loop.
// The zero value is not usable; use NewTimer. Set/Cancel must be called
// from the loop goroutine.
type Timer struct {
	loop *Loop
	name string

	generation uint64
	armed      bool
	timer      *time.Timer
}

// NewTimer creates an unarmed timer. The name appears in logs only.
func NewTimer(l *Loop, name string) *Timer {
	return &Timer{loop: l, name: name}
}

// Set arms the timer. A previously armed timer is re-armed, the old
// expiry is discarded.
func (t *Timer) Set(d time.Duration, fire func()) {
	t.generation++
	gen := t.generation
	t.armed = true

	if t.timer != nil {
		t.timer.Stop()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Timer.Set",
		"timer":    t.name,
		"timeout":  d,
	}).Debug("Arming timer")

	t.timer = time.AfterFunc(d, func() {
		t.loop.Post(func() {
			// Stale expiry from a timer that was re-armed or
			// cancelled after this fired.
			if !t.armed || t.generation != gen {
				return
			}
			t.armed = false
			fire()
		})
	})
}

// Cancel disarms the timer. Safe to call when not armed.
func (t *Timer) Cancel() {
	if !t.armed {
		return
	}
	t.armed = false
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Timer.Cancel",
		"timer":    t.name,
	}).Debug("Timer cancelled")
}

// Scheduled reports whether the timer is currently armed.
func (t *Timer) Scheduled() bool {
	return t.armed
}
