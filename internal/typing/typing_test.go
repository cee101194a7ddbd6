package typing

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestReveal(t *testing.T) {
	got := slices.Collect(Reveal("żab"))
	want := []string{"ż", "ża", "żab"}
	if !slices.Equal(got, want) {
		t.Errorf("Reveal = %q, want %q", got, want)
	}

	if got := slices.Collect(Reveal("")); len(got) != 0 {
		t.Errorf("Reveal(\"\") = %q, want nothing", got)
	}

	seq := Reveal("ab")
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Errorf("sequence not restartable: %q vs %q", first, second)
	}
}

type recorder struct {
	mu     sync.Mutex
	frames []string
	index  []int
}

func (r *recorder) frame(i int, partial string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, partial)
	r.index = append(r.index, i)
}

func TestAnimatorRevealsInOrder(t *testing.T) {
	a := New(time.Millisecond)
	rec := &recorder{}
	finished := make(chan struct{})

	a.Start(context.Background(), []string{"ab", "c"}, rec.frame, func() { close(finished) })

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("animation did not finish")
	}
	a.Wait()

	want := []string{"a", "ab", "c"}
	if !slices.Equal(rec.frames, want) {
		t.Errorf("frames = %q, want %q", rec.frames, want)
	}
	if !slices.Equal(rec.index, []int{0, 0, 1}) {
		t.Errorf("indexes = %v", rec.index)
	}
	if a.Active() {
		t.Error("animator should be idle after finishing")
	}
}

func TestAnimatorStartReplacesRunning(t *testing.T) {
	a := New(5 * time.Millisecond)
	firstDone := false
	a.Start(context.Background(), []string{"a very long text that will not finish"}, nil, func() { firstDone = true })
	if !a.Active() {
		t.Fatal("expected running animation")
	}

	finished := make(chan struct{})
	a.Start(context.Background(), []string{"x"}, nil, func() { close(finished) })
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("second animation did not finish")
	}
	if firstDone {
		t.Error("replaced animation must not call finish")
	}
}

func TestAnimatorStopOnCancel(t *testing.T) {
	a := New(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	called := false
	a.Start(ctx, []string{"some text here"}, nil, func() { called = true })
	cancel()
	a.Wait()
	if called {
		t.Error("finish called after cancel")
	}
	if a.Active() {
		t.Error("animator still active after cancel")
	}
}

func TestScrollTracker(t *testing.T) {
	var s ScrollTracker
	if !s.AtBottom() {
		t.Fatal("tracker should start at bottom")
	}
	s.Observe(0, 1000, 400)
	if s.AtBottom() {
		t.Error("600px from bottom should not count as at bottom")
	}
	s.Observe(560, 1000, 400)
	if !s.AtBottom() {
		t.Error("40px from bottom should count as at bottom")
	}
}
