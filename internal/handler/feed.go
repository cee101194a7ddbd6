package handler

import (
	"context"
	"slices"
	"sync"

	"github.com/pavelanni/tutor/internal/chat"
	"github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
)

const maxNotices = 20

// Notice is a session notice with its translated text.
type Notice struct {
	ID     string `json:"id"`
	Detail string `json:"detail,omitempty"`
	Text   string `json:"text"`
}

// Snapshot is everything a browser page needs to render a session.
type Snapshot struct {
	ID              string        `json:"id"`
	Version         uint64        `json:"version"`
	Task            model.Task    `json:"task"`
	Blocks          []chat.Block  `json:"blocks"`
	Typing          []chat.Block  `json:"typing,omitempty"`
	Explanation     string        `json:"explanation,omitempty"`
	ExplanationDone bool          `json:"explanationDone"`
	Flags           session.Flags `json:"flags"`
	Notices         []Notice      `json:"notices,omitempty"`
	// ScrollSeq increases whenever the page should scroll to the bottom.
	ScrollSeq uint64 `json:"scrollSeq"`
}

// Feed keeps the latest Snapshot of a session and wakes subscribers on
// every change. It implements session.View.
type Feed struct {
	ctx      context.Context
	onNotice func(session.Notice)

	mu   sync.Mutex
	snap Snapshot
	subs map[chan struct{}]struct{}
}

// NewFeed returns a feed for session id. Notices are translated into lang;
// onNotice, if set, is called for each notice.
func NewFeed(id, lang string, onNotice func(session.Notice)) *Feed {
	return &Feed{
		ctx:      i18n.WithLanguage(context.Background(), lang),
		onNotice: onNotice,
		snap:     Snapshot{ID: id},
		subs:     make(map[chan struct{}]struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	s.Blocks = slices.Clone(s.Blocks)
	s.Typing = slices.Clone(s.Typing)
	s.Notices = slices.Clone(s.Notices)
	return s
}

// Subscribe returns a channel that receives a value after each change, and a
// func to unsubscribe. Changes are coalesced; read Snapshot after waking up.
func (f *Feed) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
}

// Restore shows notices recorded before a restart. They are not passed to
// onNotice again.
func (f *Feed) Restore(records []model.NoticeRecord) {
	if len(records) == 0 {
		return
	}
	notices := make([]Notice, 0, len(records))
	for _, rec := range records[max(0, len(records)-maxNotices):] {
		notices = append(notices, Notice{
			ID:     rec.NoticeID,
			Detail: rec.Detail,
			Text:   i18n.Notice(f.ctx, rec.NoticeID, rec.Detail),
		})
	}
	f.update(func(s *Snapshot) { s.Notices = append(notices, s.Notices...) })
}

func (f *Feed) update(fn func(s *Snapshot)) {
	f.mu.Lock()
	fn(&f.snap)
	f.snap.Version++
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	f.mu.Unlock()
}

// TaskChanged stores the new task snapshot.
func (f *Feed) TaskChanged(t model.Task) {
	f.update(func(s *Snapshot) { s.Task = t })
}

// BlocksChanged stores the permanent chat blocks.
func (f *Feed) BlocksChanged(blocks []chat.Block) {
	f.update(func(s *Snapshot) { s.Blocks = blocks })
}

// TypingChanged stores the blocks being typed; nil when typing ends.
func (f *Feed) TypingChanged(blocks []chat.Block) {
	f.update(func(s *Snapshot) { s.Typing = blocks })
}

// ExplanationChanged stores the revealed part of the explanation.
func (f *Feed) ExplanationChanged(text string, done bool) {
	f.update(func(s *Snapshot) {
		s.Explanation = text
		s.ExplanationDone = done
	})
}

// FlagsChanged stores the busy indicators.
func (f *Feed) FlagsChanged(fl session.Flags) {
	f.update(func(s *Snapshot) { s.Flags = fl })
}

// ScrollToBottom bumps ScrollSeq.
func (f *Feed) ScrollToBottom() {
	f.update(func(s *Snapshot) { s.ScrollSeq++ })
}

// Notify translates n, keeps the last notices and hands n to onNotice.
func (f *Feed) Notify(n session.Notice) {
	text := i18n.Notice(f.ctx, n.ID, n.Detail)
	f.update(func(s *Snapshot) {
		s.Notices = append(s.Notices, Notice{ID: n.ID, Detail: n.Detail, Text: text})
		if len(s.Notices) > maxNotices {
			s.Notices = s.Notices[len(s.Notices)-maxNotices:]
		}
	})
	if f.onNotice != nil {
		f.onNotice(n)
	}
}
