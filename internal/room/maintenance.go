package room

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler runs a recurring maintenance task independent of inbound
// traffic. Each wake executes the task once and then explicitly re-arms, so
// reschedule-after-run is an observable step rather than an ambient timer
// behavior.
type Scheduler struct {
	interval time.Duration
	task     func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	runs    uint64
	log     *logrus.Entry
}

// NewScheduler creates a scheduler for task. It does not arm until Start.
func NewScheduler(interval time.Duration, task func()) *Scheduler {
	if task == nil {
		panic("task cannot be nil for Scheduler")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		interval: interval,
		task:     task,
		log:      logrus.WithField("component", "maintenance"),
	}
}

// Start arms the first wake-up.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.interval, s.RunOnce)
	s.log.WithField("interval", s.interval).Debug("Maintenance armed")
}

// RunOnce executes the task and re-arms, unless stopped. Exposed so tests
// drive maintenance deterministically without waiting on wall time.
func (s *Scheduler) RunOnce() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.runs++
	s.mu.Unlock()

	s.task()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timer = time.AfterFunc(s.interval, s.RunOnce)
}

// Stop cancels any pending wake-up. A task currently running completes; it
// will not re-arm.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Runs reports how many maintenance passes have executed.
func (s *Scheduler) Runs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
