package session

import (
	"context"
	"log/slog"

	"github.com/pavelanni/tutor/internal/backend"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/refine"
	"github.com/pavelanni/tutor/internal/scoring"
)

// score asks the backend for per-subtopic errors, blends them into the rubric,
// commits the result and reveals the explanation.
func (o *Orchestrator) score(ctx context.Context) bool {
	o.updateFlags(func(f *Flags) { f.ChatLoading = true })
	defer o.updateFlags(func(f *Flags) { f.ChatLoading = false })

	task := o.Task()
	subtopics := model.SubtopicNames(task.Subtopics)
	fixed := func(d backend.ProblemsDraft) backend.ProblemsDraft {
		d.Text = task.Text
		d.Solution = task.Solution
		d.Options = task.Options
		d.CorrectOption = task.Option(task.CorrectOptionIndex)
		d.UserOption = task.Option(task.UserOptionIndex)
		d.UserSolution = task.UserSolution
		d.Subtopics = subtopics
		return d
	}
	start := fixed(backend.ProblemsDraft{
		Attempt:     freshAttempt(),
		Explanation: task.Explanation,
	})
	draft, err := refine.Run(ctx, start, func(ctx context.Context, d backend.ProblemsDraft) (backend.ProblemsDraft, error) {
		return o.api.GenerateProblems(ctx, fixed(d))
	})
	if err != nil {
		return o.fail(ctx, NoticeScoringFailed, err)
	}

	subs := scoring.SubtractPercents(task.Subtopics, task.CorrectOptionIndex, task.UserOptionIndex, draft.OutputSubtopics)
	percent := scoring.Average(subs)
	ok := o.commit(ctx, backend.Transaction{
		ID:                 task.ID,
		Stage:              max(task.Stage, model.StageAudio),
		Text:               task.Text,
		Translate:          task.Translate,
		Solution:           task.Solution,
		Words:              task.Words,
		Percent:            percent,
		Options:            task.Options,
		CorrectOptionIndex: task.CorrectOptionIndex,
		Explanations:       task.Explanations,
		Explanation:        draft.Explanation,
		TaskSubtopics:      subs,
	})
	if !ok {
		return false
	}

	final, err := o.api.Task(ctx, task.ID)
	if err != nil {
		return o.fail(ctx, NoticeLoadFailed, err)
	}
	if ctx.Err() != nil {
		return false
	}
	task = o.adopt(*final)
	slog.Info("task scored", "task_id", task.ID, "percent", percent, "subtopics", len(subs))

	explanation := task.Explanation
	if explanation == "" {
		explanation = draft.Explanation
	}
	o.explain(explanation)
	return true
}

// explain reveals the final explanation with the same tick as chat blocks.
func (o *Orchestrator) explain(text string) {
	if text == "" {
		o.view.ExplanationChanged("", true)
		return
	}
	o.explaining.Start(o.root, []string{text}, func(_ int, partial string) {
		o.view.ExplanationChanged(partial, false)
		if o.scroll.AtBottom() {
			o.view.ScrollToBottom()
		}
	}, func() {
		o.view.ExplanationChanged(text, true)
	})
}
