// Package sessiontest provides an in-memory backend for tests of code that
// drives a session.
package sessiontest

import (
	"context"
	"sync"

	"github.com/pavelanni/tutor/internal/backend"
	"github.com/pavelanni/tutor/internal/model"
)

// API is a backend whose topic already has a task at the ready stage.
// The tutor answers every turn with ChatReply. Generation endpoints fail.
type API struct {
	mu        sync.Mutex
	task      model.Task
	reply     backend.ChatReply
	chatErr   error
	chatCalls int
}

// NewAPI returns a backend holding a ready task with id 42 whose correct
// option is the first one.
func NewAPI() *API {
	return &API{
		task: model.Task{
			ID:        42,
			Stage:     model.StageAudio,
			Text:      "Tom goes to school.",
			Translate: "Tom idzie do szkoły.",
			Solution:  "goes",
			Options:   []string{"goes", "go", "going", "gone"},
			Subtopics: []model.Subtopic{{Name: "grammar"}},
		},
		reply: backend.ChatReply{Chat: "[AI_ANSWER]Dobrze.\n[AI_QUESTION]Dlaczego?"},
	}
}

// SetChatError makes every chat turn fail with err.
func (a *API) SetChatError(err error) {
	a.mu.Lock()
	a.chatErr = err
	a.mu.Unlock()
}

// SetChatReply sets the reply to every following chat turn.
func (a *API) SetChatReply(r backend.ChatReply) {
	a.mu.Lock()
	a.reply = r
	a.mu.Unlock()
}

// ChatCalls returns how many chat turns were requested.
func (a *API) ChatCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chatCalls
}

// Snapshot returns the backend's copy of the task.
func (a *API) Snapshot() model.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}

func (a *API) GenerateText(context.Context, backend.TextDraft) (backend.TextDraft, error) {
	return backend.TextDraft{}, &backend.StatusError{Endpoint: "text", Code: 500, Want: 201}
}

func (a *API) GenerateOptions(context.Context, backend.OptionsDraft) (backend.OptionsDraft, error) {
	return backend.OptionsDraft{}, &backend.StatusError{Endpoint: "options", Code: 500, Want: 201}
}

func (a *API) Commit(_ context.Context, tx backend.Transaction) (backend.TransactionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tx.TaskSubtopics != nil {
		a.task.Subtopics = tx.TaskSubtopics
		a.task.Percent = tx.Percent
		a.task.Explanation = tx.Explanation
		a.task.Finished = true
	}
	return backend.TransactionResult{TaskID: a.task.ID}, nil
}

func (a *API) GenerateAudio(context.Context, int64, backend.AudioRequest) error { return nil }

func (a *API) GenerateProblems(_ context.Context, d backend.ProblemsDraft) (backend.ProblemsDraft, error) {
	d.OutputSubtopics = []model.OutputSubtopic{{Name: "grammar", Percent: 30}}
	d.Explanation = "Third person singular takes -s."
	return d, nil
}

func (a *API) GenerateChat(context.Context, backend.ChatRequest) (backend.ChatReply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chatCalls++
	if a.chatErr != nil {
		return backend.ChatReply{}, a.chatErr
	}
	return a.reply, nil
}

func (a *API) UpdateChat(_ context.Context, _ int64, u backend.ChatUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.task.Chat = u.Chat
	a.task.ChatFinished = u.ChatFinished
	a.task.UserSolution = u.UserSolution
	a.task.Mode = u.Mode
	return nil
}

func (a *API) UpdateUserSolution(_ context.Context, _ int64, u backend.UserSolutionUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.task.Answered = u.Answered
	a.task.UserOptionIndex = u.UserOptionIndex
	a.task.UserSolution = u.UserSolution
	return nil
}

func (a *API) Pending(ctx context.Context) (*model.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.task.Finished {
		return nil, nil
	}
	t := a.task
	return &t, nil
}

func (a *API) Task(context.Context, int64) (*model.Task, error) {
	t := a.Snapshot()
	return &t, nil
}
