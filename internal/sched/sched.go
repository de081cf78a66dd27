// Package sched provides the priority-queue-backed deadline scheduler
// shared by the lease task (spec.md §4.5/§4.6 keep-alive/lease timers)
// and the session layer's pending-query timeout (spec.md §3's
// PendingQuery). Adapted from the teacher's scheduler/scheduler.go,
// generalized from a single untyped taskHandler callback into a scoped
// per-Scheduler dispatch so each subsystem can run its own scheduler
// instance instead of sharing one global singleton.
package sched

import (
	"sync"
	"time"

	"github.com/katzenpost/core/monotime"
	"github.com/katzenpost/core/queue"
	"github.com/op/go-logging"

	"github.com/zenohpico/zenohpico-go/internal/logext"
)

// Scheduler runs tasks at a scheduled monotime deadline, one at a time,
// in priority (deadline) order.
type Scheduler struct {
	sync.RWMutex

	q           *queue.PriorityQueue
	taskHandler func(interface{})
	timer       *time.Timer
	log         *logging.Logger
}

// New creates a Scheduler that invokes taskHandler for each due task.
func New(taskHandler func(interface{}), backend *logext.Backend, name string) *Scheduler {
	return &Scheduler{
		q:           queue.New(),
		taskHandler: taskHandler,
		log:         backend.GetLogger("sched-" + name),
	}
}

func (s *Scheduler) pop() *queue.Entry {
	s.Lock()
	defer s.Unlock()
	return s.q.Pop()
}

func (s *Scheduler) peek() *queue.Entry {
	s.RLock()
	defer s.RUnlock()
	return s.q.Peek()
}

func (s *Scheduler) run() {
	entry := s.pop()
	if entry == nil {
		return
	}
	s.taskHandler(entry.Value)
	s.reschedule()
}

// reschedule arms the timer for the next-due entry, if any, running it
// immediately if its deadline has already elapsed.
func (s *Scheduler) reschedule() {
	entry := s.peek()
	if entry == nil {
		return
	}
	now := monotime.Now()
	if time.Duration(entry.Priority) <= now {
		go s.run()
		return
	}
	s.Lock()
	defer s.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(time.Duration(entry.Priority)-now, s.run)
}

// Add schedules task to run after duration elapses.
func (s *Scheduler) Add(duration time.Duration, task interface{}) {
	deadline := monotime.Now() + duration
	s.Lock()
	s.q.Enqueue(uint64(deadline), task)
	s.Unlock()
	s.reschedule()
	s.log.Debugf("scheduled task in %v", duration)
}

// Shutdown stops the pending timer, if any.
func (s *Scheduler) Shutdown() {
	s.Lock()
	defer s.Unlock()
	if s.timer != nil {
		if !s.timer.Stop() {
			select {
			case <-s.timer.C:
			default:
			}
		}
	}
}
