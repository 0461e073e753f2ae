package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_FlushesPeriodically(t *testing.T) {
	var calls atomic.Int32
	s := New(10*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})

	if s.State() != Idle {
		t.Fatalf("expected idle before start, got %s", s.State())
	}

	s.Start(context.Background())
	if s.State() != Running {
		t.Fatalf("expected running after start, got %s", s.State())
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if calls.Load() < 3 {
		t.Errorf("expected at least 3 flushes, got %d", calls.Load())
	}
	if s.State() != Stopped {
		t.Errorf("expected stopped after stop, got %s", s.State())
	}
}

func TestScheduler_NoFlushAfterStop(t *testing.T) {
	var calls atomic.Int32
	s := New(5*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("expected no flush after stop, got %d more", calls.Load()-after)
	}
}

func TestScheduler_StopWaitsForInFlightFlush(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	s := New(5*time.Millisecond, func(ctx context.Context) {
		first := false
		once.Do(func() {
			first = true
			close(started)
		})
		if first {
			<-release
			finished.Store(true)
		}
	})
	s.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("expected stop to wait for the running flush")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("expected stop to return once the flush finished")
	}
	if !finished.Load() {
		t.Error("expected the in-flight flush to complete")
	}
}

func TestScheduler_StopInterruptsWait(t *testing.T) {
	s := New(time.Hour, func(context.Context) {})
	s.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("expected stop to return promptly while waiting for the next tick")
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := New(time.Hour, func(context.Context) {})
	s.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
	s.Stop()

	if s.State() != Stopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	var calls atomic.Int32
	s := New(time.Millisecond, func(context.Context) { calls.Add(1) })
	s.Stop()
	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	if s.State() != Stopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
	if calls.Load() != 0 {
		t.Errorf("expected no flush, got %d", calls.Load())
	}
}

func TestScheduler_ParentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(time.Hour, func(context.Context) {})
	s.Start(ctx)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("expected loop to exit on parent cancel")
	}
	s.Stop()
}
