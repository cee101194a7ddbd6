package session

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/tutor/internal/backend"
	"github.com/pavelanni/tutor/internal/chat"
	"github.com/pavelanni/tutor/internal/model"
)

// fakeAPI simulates the learning backend for one topic.
type fakeAPI struct {
	mu          sync.Mutex
	task        model.Task
	calls       []string
	commits     []backend.Transaction
	chatUpdates []backend.ChatUpdate
	optionsReqs []backend.OptionsDraft
	chatReqs    []backend.ChatRequest

	text     func(ctx context.Context, d backend.TextDraft) (backend.TextDraft, error)
	options  func(ctx context.Context, d backend.OptionsDraft) (backend.OptionsDraft, error)
	problems func(ctx context.Context, d backend.ProblemsDraft) (backend.ProblemsDraft, error)
	chat     func(ctx context.Context, req backend.ChatRequest) (backend.ChatReply, error)
	saveChat func(ctx context.Context, u backend.ChatUpdate) error
	solution func(ctx context.Context, u backend.UserSolutionUpdate) error
	audioErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{task: model.Task{Subtopics: []model.Subtopic{{Name: "grammar"}}}}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAPI) GenerateText(ctx context.Context, d backend.TextDraft) (backend.TextDraft, error) {
	f.record("text")
	if f.text != nil {
		return f.text(ctx, d)
	}
	return backend.TextDraft{
		Attempt:   model.Attempt{Changed: "false", Attempt: d.Attempt.Attempt + 1},
		Text:      "Tom goes to school.",
		Translate: "Tom idzie do szkoły.",
	}, nil
}

func (f *fakeAPI) GenerateOptions(ctx context.Context, d backend.OptionsDraft) (backend.OptionsDraft, error) {
	f.record("options")
	f.mu.Lock()
	f.optionsReqs = append(f.optionsReqs, d)
	f.mu.Unlock()
	if f.options != nil {
		return f.options(ctx, d)
	}
	d.Attempt = model.Attempt{Changed: "false", Attempt: 1}
	d.Options = []string{"goes", "go", "going", "gone"}
	d.CorrectOptionIndex = 0
	d.Solution = "goes"
	d.Explanations = []string{"third person", "", "", ""}
	return d, nil
}

func (f *fakeAPI) Commit(_ context.Context, tx backend.Transaction) (backend.TransactionResult, error) {
	f.record("commit")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, tx)
	if f.task.ID == 0 {
		f.task.ID = 42
	}
	f.task.Stage = tx.Stage
	f.task.Text = tx.Text
	f.task.Translate = tx.Translate
	f.task.Solution = tx.Solution
	f.task.Options = tx.Options
	f.task.CorrectOptionIndex = tx.CorrectOptionIndex
	f.task.Explanations = tx.Explanations
	if tx.TaskSubtopics != nil {
		f.task.Subtopics = tx.TaskSubtopics
		f.task.Explanation = tx.Explanation
		f.task.Percent = tx.Percent
		f.task.Finished = true
	}
	return backend.TransactionResult{TaskID: f.task.ID}, nil
}

func (f *fakeAPI) GenerateAudio(_ context.Context, id int64, req backend.AudioRequest) error {
	f.record("audio")
	if f.audioErr != nil {
		return f.audioErr
	}
	f.mu.Lock()
	f.task.Stage = req.Stage
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) GenerateProblems(ctx context.Context, d backend.ProblemsDraft) (backend.ProblemsDraft, error) {
	f.record("problems")
	if f.problems != nil {
		return f.problems(ctx, d)
	}
	d.Attempt = model.Attempt{Changed: "false", Attempt: 1}
	d.OutputSubtopics = []model.OutputSubtopic{{Name: "grammar", Percent: 30}}
	d.Explanation = "Use goes."
	return d, nil
}

func (f *fakeAPI) GenerateChat(ctx context.Context, req backend.ChatRequest) (backend.ChatReply, error) {
	f.record("chat")
	f.mu.Lock()
	f.chatReqs = append(f.chatReqs, req)
	f.mu.Unlock()
	if f.chat != nil {
		return f.chat(ctx, req)
	}
	return backend.ChatReply{
		Attempt: model.Attempt{Changed: "false", Attempt: 1},
		Chat:    "[AI_ANSWER]Dobrze.\n[AI_QUESTION]Dlaczego?",
	}, nil
}

func (f *fakeAPI) UpdateChat(ctx context.Context, id int64, u backend.ChatUpdate) error {
	f.record("update-chat")
	if f.saveChat != nil {
		if err := f.saveChat(ctx, u); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatUpdates = append(f.chatUpdates, u)
	f.task.Chat = u.Chat
	f.task.ChatFinished = u.ChatFinished
	f.task.UserSolution = u.UserSolution
	f.task.Mode = u.Mode
	return nil
}

func (f *fakeAPI) UpdateUserSolution(ctx context.Context, id int64, u backend.UserSolutionUpdate) error {
	f.record("user-solution")
	if f.solution != nil {
		if err := f.solution(ctx, u); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.task.Answered = u.Answered
	f.task.UserOptionIndex = u.UserOptionIndex
	f.task.UserSolution = u.UserSolution
	return nil
}

func (f *fakeAPI) Pending(context.Context) (*model.Task, error) {
	f.record("pending")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.task.ID == 0 || f.task.Finished {
		return nil, nil
	}
	t := f.task
	return &t, nil
}

func (f *fakeAPI) Task(_ context.Context, id int64) (*model.Task, error) {
	f.record("task")
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.task
	return &t, nil
}

// recordingView keeps what a UI would display.
type recordingView struct {
	mu          sync.Mutex
	task        model.Task
	blocks      []chat.Block
	typing      []chat.Block
	frames      int
	explanation string
	explained   bool
	scrolls     int
	notices     []Notice
}

func (v *recordingView) TaskChanged(t model.Task) {
	v.mu.Lock()
	v.task = t
	v.mu.Unlock()
}

func (v *recordingView) BlocksChanged(blocks []chat.Block) {
	v.mu.Lock()
	v.blocks = slices.Clone(blocks)
	v.mu.Unlock()
}

func (v *recordingView) TypingChanged(blocks []chat.Block) {
	v.mu.Lock()
	v.typing = blocks
	if blocks != nil {
		v.frames++
	}
	v.mu.Unlock()
}

func (v *recordingView) ExplanationChanged(text string, done bool) {
	v.mu.Lock()
	v.explanation, v.explained = text, done
	v.mu.Unlock()
}

func (v *recordingView) FlagsChanged(Flags) {}

func (v *recordingView) ScrollToBottom() {
	v.mu.Lock()
	v.scrolls++
	v.mu.Unlock()
}

func (v *recordingView) Notify(n Notice) {
	v.mu.Lock()
	v.notices = append(v.notices, n)
	v.mu.Unlock()
}

func (v *recordingView) noticeIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var ids []string
	for _, n := range v.notices {
		ids = append(ids, n.ID)
	}
	return ids
}

var testContext = model.SessionContext{SubjectID: 1, SectionID: 1, TopicID: 1}

func newTestSession(t *testing.T, api *fakeAPI) (*Orchestrator, *recordingView) {
	t.Helper()
	view := &recordingView{}
	o := New(api, view, testContext, Options{
		Language: "en",
		Tick:     time.Millisecond,
		Rand:     func(int) int { return 1 },
	})
	t.Cleanup(o.Close)
	return o, view
}

// readyTask puts the fake backend into the state after a completed pipeline.
func readyTask(api *fakeAPI) {
	api.task = model.Task{
		ID:                 42,
		Stage:              model.StageAudio,
		Text:               "Tom goes to school.",
		Solution:           "goes",
		Options:            []string{"goes", "go", "going", "gone"},
		CorrectOptionIndex: 0,
		Subtopics:          []model.Subtopic{{Name: "grammar"}},
	}
}

func loadReady(t *testing.T, o *Orchestrator) model.Task {
	t.Helper()
	task, ok := o.Load(context.Background())
	if !ok {
		t.Fatal("Load failed")
	}
	return task
}
