package typing

import "sync"

// BottomThreshold is how close to the bottom, in pixels, still counts as at the bottom.
const BottomThreshold = 50

// ScrollTracker remembers whether the reader is following the end of the conversation.
// It starts at the bottom.
type ScrollTracker struct {
	mu           sync.Mutex
	scrolledAway bool
}

// Observe records a scroll event: top is the scroll offset, height the full
// content height and viewport the visible height.
func (s *ScrollTracker) Observe(top, height, viewport float64) {
	away := height-(top+viewport) > BottomThreshold
	s.mu.Lock()
	s.scrolledAway = away
	s.mu.Unlock()
}

// AtBottom reports whether automatic scrolling should follow new content.
func (s *ScrollTracker) AtBottom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.scrolledAway
}
