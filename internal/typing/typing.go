// Package typing reveals text one character at a time on a fixed tick.
package typing

import (
	"context"
	"iter"
	"sync"
	"time"
)

// DefaultTick is the delay between two revealed characters.
const DefaultTick = 10 * time.Millisecond

// Reveal yields every prefix of text, one rune longer each time, ending with
// text itself. Each range over the sequence starts again from the first rune.
func Reveal(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := range text {
			if i == 0 {
				continue
			}
			if !yield(text[:i]) {
				return
			}
		}
		if text != "" {
			yield(text)
		}
	}
}

// FrameFunc receives the index of the text being revealed and its current prefix.
type FrameFunc func(index int, partial string)

// Animator runs at most one reveal at a time.
type Animator struct {
	tick time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an animator with the given tick, or DefaultTick if tick <= 0.
func New(tick time.Duration) *Animator {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Animator{tick: tick}
}

// Start stops any running animation and reveals texts in order, one rune per
// tick, moving to the next text only when the current one is complete.
// finish is called once after the last text, unless the animation is stopped
// or ctx is cancelled first. Both callbacks run on the animator goroutine.
func (a *Animator) Start(ctx context.Context, texts []string, frame FrameFunc, finish func()) {
	a.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if !a.run(ctx, texts, frame) {
			return
		}
		if finish != nil {
			finish()
		}
	}()
}

func (a *Animator) run(ctx context.Context, texts []string, frame FrameFunc) bool {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for i, text := range texts {
		for partial := range Reveal(text) {
			select {
			case <-ctx.Done():
				return false
			case <-ticker.C:
			}
			if frame != nil {
				frame(i, partial)
			}
		}
	}
	return ctx.Err() == nil
}

// Stop cancels the running animation and waits for its goroutine to exit.
func (a *Animator) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the current animation, if any, has ended.
func (a *Animator) Wait() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Active reports whether an animation is still running.
func (a *Animator) Active() bool {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}
