package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEveryRejectsNonPositiveInterval(t *testing.T) {
	s := New(nil, 0)
	for _, d := range []time.Duration{0, -time.Second} {
		if _, err := s.Every(d, "noop", func(context.Context) error { return nil }); err == nil {
			t.Fatalf("Every(%v) succeeded, want error", d)
		}
	}
}

func TestEveryRunsJob(t *testing.T) {
	s := New(nil, time.Second)
	var runs atomic.Int32
	done := make(chan struct{}, 1)
	if _, err := s.Every(time.Second, "count", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		if runs.Add(1) == 1 {
			done <- struct{}{}
		}
		return nil
	}); err != nil {
		t.Fatalf("Every() error = %v", err)
	}

	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestRunNowSwallowsErrors(t *testing.T) {
	s := New(nil, 0)
	called := false
	s.RunNow("fail", func(ctx context.Context) error {
		called = true
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline with zero timeout")
		}
		return errors.New("boom")
	})
	if !called {
		t.Fatal("job not called")
	}
}
