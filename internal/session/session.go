// Package session drives one interactive task: the generation pipeline, the
// tutoring chat, scoring and the typing animation of new tutor messages.
//
// Public operations never return errors. Failures are logged and reported to
// the View as notices; aborted operations are silent.
package session

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/tutor/internal/backend"
	"github.com/pavelanni/tutor/internal/chat"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/typing"
)

// API is the part of the learning backend a session uses.
type API interface {
	GenerateText(ctx context.Context, d backend.TextDraft) (backend.TextDraft, error)
	GenerateOptions(ctx context.Context, d backend.OptionsDraft) (backend.OptionsDraft, error)
	Commit(ctx context.Context, tx backend.Transaction) (backend.TransactionResult, error)
	GenerateAudio(ctx context.Context, id int64, req backend.AudioRequest) error
	GenerateProblems(ctx context.Context, d backend.ProblemsDraft) (backend.ProblemsDraft, error)
	GenerateChat(ctx context.Context, req backend.ChatRequest) (backend.ChatReply, error)
	UpdateChat(ctx context.Context, id int64, u backend.ChatUpdate) error
	UpdateUserSolution(ctx context.Context, id int64, u backend.UserSolutionUpdate) error
	Pending(ctx context.Context) (*model.Task, error)
	Task(ctx context.Context, id int64) (*model.Task, error)
}

// Notice is a user-visible message. ID is a translation key.
type Notice struct {
	ID     string `json:"id"`
	Detail string `json:"detail,omitempty"`
}

// Notice IDs.
const (
	NoticeLoadFailed     = "TaskLoadFailed"
	NoticeTextFailed     = "TextGenerationFailed"
	NoticeOptionsFailed  = "OptionsGenerationFailed"
	NoticeOptionsCount   = "OptionsCountInvalid"
	NoticeAudioFailed    = "AudioGenerationFailed"
	NoticeSaveFailed     = "TaskSaveFailed"
	NoticeStageStuck     = "StageNotAdvanced"
	NoticeAnswerFailed   = "AnswerSaveFailed"
	NoticeChatFailed     = "ChatFailed"
	NoticeChatSaveFailed = "ChatSaveFailed"
	NoticeScoringFailed  = "ScoringFailed"
)

// Flags are the busy indicators of a session.
type Flags struct {
	Loading            bool `json:"loading"`
	ChatLoading        bool `json:"chatLoading"`
	IsProcessingChat   bool `json:"isProcessingChat"`
	IsTyping           bool `json:"isTyping"`
	IsSubmittingAnswer bool `json:"isSubmittingAnswer"`
}

// View renders session state. Methods may be called from several goroutines.
type View interface {
	TaskChanged(t model.Task)
	BlocksChanged(blocks []chat.Block)
	// TypingChanged shows the blocks being revealed; nil clears them.
	TypingChanged(blocks []chat.Block)
	ExplanationChanged(text string, done bool)
	FlagsChanged(f Flags)
	ScrollToBottom()
	Notify(n Notice)
}

// Options tunes a session.
type Options struct {
	// Language is passed to the narration stage, e.g. "en".
	Language string
	// Tick is the typing speed; zero means typing.DefaultTick.
	Tick time.Duration
	// Rand returns a random int in [0, n); defaults to math/rand/v2.IntN.
	Rand func(n int) int
}

// Orchestrator is the controller of one session.
type Orchestrator struct {
	api  API
	view View
	sc   model.SessionContext
	opts Options

	root       context.Context
	cancelRoot context.CancelFunc

	loadScope    Scope
	answerScope  Scope
	messageScope Scope
	endScope     Scope

	typing     *typing.Animator
	explaining *typing.Animator
	scroll     typing.ScrollTracker

	mu     sync.Mutex
	task   model.Task
	blocks []chat.Block
	flags  Flags
}

// New creates a session for the topic in sc.
func New(api API, view View, sc model.SessionContext, opts Options) *Orchestrator {
	if opts.Rand == nil {
		opts.Rand = rand.IntN
	}
	root, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		api:        api,
		view:       view,
		sc:         sc,
		opts:       opts,
		root:       root,
		cancelRoot: cancel,
		typing:     typing.New(opts.Tick),
		explaining: typing.New(opts.Tick),
		task:       model.Task{ID: sc.TaskID},
	}
}

// Context returns the session coordinates.
func (o *Orchestrator) Context() model.SessionContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	sc := o.sc
	sc.TaskID = o.task.ID
	return sc
}

// Task returns the current task snapshot.
func (o *Orchestrator) Task() model.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.task
}

// Blocks returns the permanent chat blocks.
func (o *Orchestrator) Blocks() []chat.Block {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.blocks)
}

// Flags returns the busy indicators.
func (o *Orchestrator) Flags() Flags {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flags
}

// Scroll records a scroll event of the chat viewport.
func (o *Orchestrator) Scroll(top, height, viewport float64) {
	o.scroll.Observe(top, height, viewport)
}

// WaitTyping blocks until both animations have ended.
func (o *Orchestrator) WaitTyping() {
	o.typing.Wait()
	o.explaining.Wait()
}

// Close aborts every running operation and animation. It is called when the
// user navigates away; the session must not be used afterwards.
func (o *Orchestrator) Close() {
	o.cancelRoot()
	for _, s := range []*Scope{&o.loadScope, &o.answerScope, &o.messageScope, &o.endScope} {
		s.Cancel()
	}
	o.typing.Stop()
	o.explaining.Stop()
	o.updateFlags(func(f *Flags) { *f = Flags{} })
	slog.Debug("session closed", "task_id", o.Task().ID)
}

// begin starts an operation in scope s that also ends when the session closes.
func (o *Orchestrator) begin(s *Scope, ctx context.Context) (context.Context, func() bool) {
	ctx, end := s.Begin(ctx)
	stop := context.AfterFunc(o.root, func() { end() })
	return ctx, func() bool {
		stop()
		return end()
	}
}

func (o *Orchestrator) updateFlags(fn func(f *Flags)) {
	o.mu.Lock()
	fn(&o.flags)
	f := o.flags
	o.mu.Unlock()
	o.view.FlagsChanged(f)
}

// fail reports err unless it is a cancellation. It returns false so callers can
// write `return o.fail(...)`.
func (o *Orchestrator) fail(ctx context.Context, id string, err error) bool {
	kind := backend.Classify(err)
	if kind == backend.KindNone || kind == backend.KindCanceled || ctx.Err() != nil {
		return false
	}
	slog.Warn("session operation failed", "notice", id, "kind", kind.String(),
		"task_id", o.Task().ID, "error", err)
	o.view.Notify(Notice{ID: id, Detail: backend.Message(err)})
	return false
}

// adopt makes t the current snapshot without letting its stage go backwards.
func (o *Orchestrator) adopt(t model.Task) model.Task {
	o.mu.Lock()
	if t.ID == o.task.ID && t.Stage < o.task.Stage {
		slog.Warn("ignoring stage regression", "task_id", t.ID, "have", o.task.Stage, "got", t.Stage)
		t.Stage = o.task.Stage
	}
	o.task = t
	o.blocks = chat.Parse(t.Chat)
	blocks := slices.Clone(o.blocks)
	o.mu.Unlock()

	o.view.TaskChanged(t)
	o.view.BlocksChanged(blocks)
	return t
}

// patch applies fn to the current task and publishes the result.
func (o *Orchestrator) patch(fn func(t *model.Task)) model.Task {
	o.mu.Lock()
	fn(&o.task)
	t := o.task
	o.mu.Unlock()
	o.view.TaskChanged(t)
	return t
}
