package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type State int32

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Scheduler invokes flush on a fixed cadence until stopped. Stop interrupts
// the wait between ticks immediately but lets a flush that already started
// run to completion; flush is expected to bound its own duration.
type Scheduler struct {
	interval time.Duration
	flush    func(context.Context)

	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, flush func(context.Context)) *Scheduler {
	return &Scheduler{
		interval: interval,
		flush:    flush,
		done:     make(chan struct{}),
	}
}

// Start moves the scheduler from Idle to Running. Calling it in any other
// state does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		logrus.WithField("prefix", "FlushScheduler").Debug("scheduler already started")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(loopCtx, ctx)
}

// Stop cancels the loop and waits for it to exit. It is idempotent and safe
// for concurrent use; once it returns no further flush will be started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	switch State(s.state.Load()) {
	case Idle:
		s.state.Store(int32(Stopped))
		close(s.done)
		s.mu.Unlock()
		return
	case Running:
		s.state.Store(int32(Stopping))
		s.cancel()
	}
	s.mu.Unlock()

	<-s.done
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) run(ctx, flushCtx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		s.state.Store(int32(Stopped))
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ticker and cancellation may both be ready
			if ctx.Err() != nil {
				return
			}
			s.flush(flushCtx)
		}
	}
}
