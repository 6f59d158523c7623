package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/secnews/internal/collect"
	"github.com/TobiSchelling/secnews/internal/news"
)

type countingRunner struct {
	mu       sync.Mutex
	triggers []string
	block    bool
}

func (r *countingRunner) Run(ctx context.Context, trigger string) (*news.CycleReport, error) {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &news.CycleReport{Trigger: trigger}, nil
}

func (r *countingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.triggers...)
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInvalidSchedule(t *testing.T) {
	if _, err := New("every now and then", &countingRunner{}, nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRunOnStart(t *testing.T) {
	r := &countingRunner{}
	s, err := New("@every 1h", r, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Start(context.Background(), true)
	waitFor(t, time.Second, func() bool { return len(r.seen()) == 1 })
	s.Stop()

	got := r.seen()
	if len(got) != 1 || got[0] != collect.TriggerStartup {
		t.Errorf("triggers = %v, want [%s]", got, collect.TriggerStartup)
	}
}

func TestScheduleTriggersRunner(t *testing.T) {
	r := &countingRunner{}
	s, err := New("@every 1s", r, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Start(context.Background(), false)
	defer s.Stop()

	waitFor(t, 3*time.Second, func() bool { return len(r.seen()) >= 1 })
	if got := r.seen()[0]; got != collect.TriggerSchedule {
		t.Errorf("first trigger = %q, want %q", got, collect.TriggerSchedule)
	}
}

func TestStopCancelsRunningCycle(t *testing.T) {
	r := &countingRunner{block: true}
	s, err := New("@every 1h", r, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Start(context.Background(), true)
	waitFor(t, time.Second, func() bool { return len(r.seen()) == 1 })

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancelling the running cycle")
	}
}
