package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/tutor/internal/backend"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/refine"
)

var errNoPending = errors.New("backend returned no pending task after commit")

// Load brings the task of the session to the ready stage, running whatever
// generation stages are missing, and publishes the final snapshot. A task that
// was answered but whose chat still owes a tutor turn continues the chat.
func (o *Orchestrator) Load(ctx context.Context) (model.Task, bool) {
	ctx, end := o.begin(&o.loadScope, ctx)
	o.updateFlags(func(f *Flags) { f.Loading = true })
	defer func() {
		if end() {
			o.updateFlags(func(f *Flags) { f.Loading = false })
		}
	}()

	task, ok := o.fetchStart(ctx)
	if !ok {
		return model.Task{}, false
	}
	if task.ID != 0 {
		task = o.adopt(task)
	}

	for !task.Stage.Ready() {
		slog.Info("running pipeline stage", "task_id", task.ID, "stage", task.Stage)
		var (
			next model.Task
			ok   bool
		)
		switch task.Stage {
		case model.StageText:
			next, ok = o.optionsStage(ctx, task)
		case model.StageOptions:
			next, ok = o.audioStage(ctx, task)
		default:
			next, ok = o.textStage(ctx, task)
		}
		if !ok {
			return model.Task{}, false
		}
		if next.Stage <= task.Stage {
			err := fmt.Errorf("stage %d did not advance", task.Stage)
			return model.Task{}, o.fail(ctx, NoticeStageStuck, err)
		}
		task = next
	}

	final, err := o.api.Task(ctx, task.ID)
	if err != nil {
		return model.Task{}, o.fail(ctx, NoticeLoadFailed, err)
	}
	if ctx.Err() != nil {
		return model.Task{}, false
	}
	task = o.adopt(*final)
	slog.Info("task ready", "task_id", task.ID, "answered", task.Answered, "finished", task.Finished)

	switch {
	case task.Finished:
		o.view.ExplanationChanged(task.Explanation, true)
	case task.Answered:
		o.continueChat(ctx)
		task = o.Task()
	}
	return task, true
}

// fetchStart returns the task named by the session, or the topic's pending
// task, or a fresh unstarted task.
func (o *Orchestrator) fetchStart(ctx context.Context) (model.Task, bool) {
	var (
		t   *model.Task
		err error
	)
	if o.sc.TaskID > 0 {
		t, err = o.api.Task(ctx, o.sc.TaskID)
	} else {
		t, err = o.api.Pending(ctx)
	}
	if err != nil {
		return model.Task{}, o.fail(ctx, NoticeLoadFailed, err)
	}
	if ctx.Err() != nil {
		return model.Task{}, false
	}
	if t == nil {
		return model.Task{Stage: model.StageUnstarted}, true
	}
	return *t, true
}

// refetchPending reads the canonical task back after a commit.
func (o *Orchestrator) refetchPending(ctx context.Context) (model.Task, bool) {
	t, err := o.api.Pending(ctx)
	if err == nil && t == nil {
		err = errNoPending
	}
	if err != nil {
		return model.Task{}, o.fail(ctx, NoticeLoadFailed, err)
	}
	if ctx.Err() != nil {
		return model.Task{}, false
	}
	return o.adopt(*t), true
}

func (o *Orchestrator) commit(ctx context.Context, tx backend.Transaction) bool {
	res, err := o.api.Commit(ctx, tx)
	if err != nil {
		return o.fail(ctx, NoticeSaveFailed, err)
	}
	if ctx.Err() != nil {
		return false
	}
	slog.Debug("transaction committed", "task_id", res.TaskID, "stage", tx.Stage)
	return true
}

func freshAttempt() model.Attempt {
	return model.Attempt{Changed: "false", Errors: []string{}}
}

func (o *Orchestrator) textStage(ctx context.Context, task model.Task) (model.Task, bool) {
	start := backend.TextDraft{
		Attempt:     freshAttempt(),
		Text:        task.Text,
		Translate:   task.Translate,
		OutputWords: task.Words,
	}
	draft, err := refine.Run(ctx, start, o.api.GenerateText)
	if err != nil {
		return model.Task{}, o.fail(ctx, NoticeTextFailed, err)
	}

	ok := o.commit(ctx, backend.Transaction{
		ID:        task.ID,
		Stage:     model.StageText,
		Text:      draft.Text,
		Translate: draft.Translate,
		Solution:  task.Solution,
		Words:     draft.OutputWords,
	})
	if !ok {
		return model.Task{}, false
	}
	return o.refetchPending(ctx)
}

func (o *Orchestrator) optionsStage(ctx context.Context, task model.Task) (model.Task, bool) {
	r1 := o.opts.Rand(4)
	subtopics := model.SubtopicNames(task.Subtopics)
	start := backend.OptionsDraft{
		Attempt:            freshAttempt(),
		Text:               task.Text,
		Subtopics:          subtopics,
		Solution:           task.Solution,
		Options:            task.Options,
		Explanations:       task.Explanations,
		CorrectOptionIndex: task.CorrectOptionIndex,
	}
	draft, err := refine.Run(ctx, start, func(ctx context.Context, d backend.OptionsDraft) (backend.OptionsDraft, error) {
		d.Text = task.Text
		d.Subtopics = subtopics
		d.Random1, d.Random2, d.RandomOption = r1, 3-r1, r1+1
		return o.api.GenerateOptions(ctx, d)
	})
	if err != nil {
		return model.Task{}, o.fail(ctx, NoticeOptionsFailed, err)
	}
	if len(draft.Options) != 4 {
		slog.Warn("options stage returned wrong option count", "task_id", task.ID, "count", len(draft.Options))
		o.view.Notify(Notice{ID: NoticeOptionsCount, Detail: fmt.Sprintf("%d", len(draft.Options))})
		return model.Task{}, false
	}

	ok := o.commit(ctx, backend.Transaction{
		ID:                 task.ID,
		Stage:              model.StageOptions,
		Text:               task.Text,
		Translate:          task.Translate,
		Solution:           draft.Solution,
		Words:              task.Words,
		Options:            draft.Options,
		CorrectOptionIndex: draft.CorrectOptionIndex,
		Explanations:       draft.Explanations,
	})
	if !ok {
		return model.Task{}, false
	}
	return o.refetchPending(ctx)
}

// audioStage is a single call; the final fetch by id picks up the result.
func (o *Orchestrator) audioStage(ctx context.Context, task model.Task) (model.Task, bool) {
	err := o.api.GenerateAudio(ctx, task.ID, backend.AudioRequest{
		Text:     task.Text,
		Stage:    model.StageAudio,
		Language: o.opts.Language,
	})
	if err != nil {
		return model.Task{}, o.fail(ctx, NoticeAudioFailed, err)
	}
	if ctx.Err() != nil {
		return model.Task{}, false
	}
	task.Stage = model.StageAudio
	return task, true
}
