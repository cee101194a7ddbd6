// Package console runs a tutoring session in a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pavelanni/tutor/internal/chat"
	"github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
)

// View prints session changes as a running log. Tutor blocks are typed out
// as they are revealed and not printed again when they settle.
type View struct {
	ctx context.Context

	mu        sync.Mutex
	w         io.Writer
	task      model.Task
	shownTask int64
	shown     int // permanent blocks already printed
	typed     int // tutor blocks printed by typing, not yet settled
	cur       int // index of the block being typed, -1 if none
	curLen    int // bytes of the current block already printed
	loading   bool
	notices   int
}

// NewView returns a view writing to w with labels in lang.
func NewView(w io.Writer, lang string) *View {
	return &View{ctx: i18n.WithLanguage(context.Background(), lang), w: w, cur: -1}
}

// Notices returns how many notices were printed so far.
func (v *View) Notices() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.notices
}

func (v *View) printf(format string, args ...any) {
	fmt.Fprintf(v.w, format, args...)
}

// Println prints a line outside of any typing animation.
func (v *View) Println(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.endLine()
	v.printf("%s\n", s)
}

// endLine terminates a block that is still being typed. v.mu must be held.
func (v *View) endLine() {
	if v.cur >= 0 {
		v.printf("\n")
		v.cur, v.curLen = -1, 0
	}
}

// TaskChanged prints the task and its options the first time they are ready.
func (v *View) TaskChanged(t model.Task) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.task = t
	if !t.Stage.Ready() || t.ID == v.shownTask {
		return
	}
	v.shownTask = t.ID
	v.endLine()
	v.printf("\n== %s #%d ==\n%s\n", i18n.T(v.ctx, "ConsoleTask"), t.ID, t.Text)
	if t.Translate != "" {
		v.printf("%s: %s\n", i18n.T(v.ctx, "ConsoleTranslation"), t.Translate)
	}
	v.printf("%s\n", i18n.Tp(v.ctx, "ConsoleOptions", len(t.Options)))
	for i, opt := range t.Options {
		v.printf("  %d) %s\n", i+1, opt)
	}
	if !t.Answered {
		v.printf("%s\n", i18n.T(v.ctx, "ConsoleHelp"))
	}
}

// BlocksChanged prints blocks that were not typed out before.
func (v *View) BlocksChanged(blocks []chat.Block) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(blocks) < v.shown {
		// A rolled back message; it stays on screen.
		v.shown = len(blocks)
		return
	}
	for _, b := range blocks[v.shown:] {
		if !b.IsUser && v.typed > 0 {
			v.typed--
			continue
		}
		v.endLine()
		v.printf("%s %s\n", b.Title, b.Content)
	}
	v.shown = len(blocks)
}

// TypingChanged prints the newly revealed part of the block being typed.
func (v *View) TypingChanged(blocks []chat.Block) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if blocks == nil {
		v.endLine()
		return
	}
	i := len(blocks) - 1
	b := blocks[i]
	if i != v.cur {
		v.endLine()
		v.cur = i
		v.typed++
		v.printf("%s ", b.Title)
	}
	if len(b.Content) > v.curLen {
		v.printf("%s", b.Content[v.curLen:])
		v.curLen = len(b.Content)
	}
}

// ExplanationChanged prints the explanation once it is complete.
func (v *View) ExplanationChanged(text string, done bool) {
	if !done {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.endLine()
	if text != "" {
		v.printf("\n== %s ==\n%s\n", i18n.T(v.ctx, "ConsoleExplanation"), text)
	}
	if v.task.Finished {
		v.printf("%s\n", i18n.Td(v.ctx, "ConsoleScore", map[string]any{
			"Percent": fmt.Sprintf("%.0f", v.task.Percent),
		}))
	}
}

// FlagsChanged prints a loading line when the task starts loading.
func (v *View) FlagsChanged(f session.Flags) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.Loading && !v.loading {
		v.endLine()
		v.printf("%s\n", i18n.T(v.ctx, "ConsoleLoading"))
	}
	v.loading = f.Loading
}

// ScrollToBottom is a no-op; a terminal always follows its output.
func (v *View) ScrollToBottom() {}

// Notify prints a translated notice.
func (v *View) Notify(n session.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices++
	v.endLine()
	v.printf("! %s\n", i18n.Notice(v.ctx, n.ID, n.Detail))
}
