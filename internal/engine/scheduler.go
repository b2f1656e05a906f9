package engine

import "sync"

// Scheduler runs task workers on behalf of a Manager. Schedule must not block
// on the work it is given.
type Scheduler interface {
	Schedule(run func())
}

// SingleThreadedScheduler runs its work one item at a time in the order it
// was scheduled. A task run by it must not wait on another task routed to
// the same scheduler.
type SingleThreadedScheduler struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

// NewSingleThreadedScheduler creates an idle scheduler.
func NewSingleThreadedScheduler() *SingleThreadedScheduler {
	return &SingleThreadedScheduler{}
}

// Schedule appends run to the queue, starting the drain goroutine if idle.
func (s *SingleThreadedScheduler) Schedule(run func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, run)
	if !s.running {
		s.running = true
		go s.drain()
	}
}

// Pending returns the number of items waiting to run.
func (s *SingleThreadedScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *SingleThreadedScheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		run := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		run()
	}
}
