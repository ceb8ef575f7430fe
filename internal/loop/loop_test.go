package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)
	return l, cancel
}

func TestCallRunsInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { order = append(order, i) })
	}
	if err := l.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Call: %v", err)
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
	if len(order) != 10 {
		t.Errorf("expected 10 tasks, got %d", len(order))
	}
}

func TestCallReturnsError(t *testing.T) {
	l, _ := startLoop(t)
	want := errors.New("boom")

	if err := l.Call(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Call returned %v, want %v", err, want)
	}
}

func TestPanicDoesNotStopLoop(t *testing.T) {
	l, _ := startLoop(t)

	l.Post(func() { panic("task failure") })
	if err := l.Call(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("loop should survive a panicking task: %v", err)
	}
}

func TestPostAfterStop(t *testing.T) {
	l := New(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(exited)
	}()
	cancel()
	<-exited

	if l.Post(func() {}) {
		t.Error("Post should fail once the loop stopped")
	}
	if err := l.Call(context.Background(), func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Call after stop = %v, want ErrStopped", err)
	}
}

func TestEveryStops(t *testing.T) {
	l, _ := startLoop(t)

	var ticks atomic.Int32
	var stop func()
	_ = l.Call(context.Background(), func() error {
		stop = l.Every(5*time.Millisecond, func() { ticks.Add(1) })
		return nil
	})

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}

	var atStop int32
	_ = l.Call(context.Background(), func() error {
		stop()
		atStop = ticks.Load()
		return nil
	})
	time.Sleep(30 * time.Millisecond)
	_ = l.Call(context.Background(), func() error { return nil })

	if got := ticks.Load(); got != atStop {
		t.Errorf("ticks continued after stop: %d -> %d", atStop, got)
	}
}

func TestAfterCancel(t *testing.T) {
	l, _ := startLoop(t)

	fired := make(chan struct{}, 1)
	l.After(5*time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("After did not fire")
	}

	var ran atomic.Bool
	cancel := l.After(20*time.Millisecond, func() { ran.Store(true) })
	cancel()
	time.Sleep(50 * time.Millisecond)
	_ = l.Call(context.Background(), func() error { return nil })
	if ran.Load() {
		t.Error("cancelled After should not run")
	}
}
