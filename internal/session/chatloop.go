package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/pavelanni/tutor/internal/backend"
	"github.com/pavelanni/tutor/internal/chat"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/refine"
)

// SubmitAnswer stores the chosen option and free-text solution, then asks the
// tutor for its first turn. A second call aborts a submission still in flight.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, optionIndex int, solution string) bool {
	task := o.Task()
	if !task.Stage.Ready() || task.Answered {
		return false
	}
	if optionIndex < 0 || optionIndex >= len(task.Options) {
		return false
	}

	ctx, end := o.begin(&o.answerScope, ctx)
	o.updateFlags(func(f *Flags) { f.IsSubmittingAnswer = true })
	defer func() {
		// A superseding submission owns the flag now.
		if end() {
			o.updateFlags(func(f *Flags) { f.IsSubmittingAnswer = false })
		}
	}()

	solution = strings.TrimSpace(solution)
	err := o.api.UpdateUserSolution(ctx, task.ID, backend.UserSolutionUpdate{
		UserOptionIndex: optionIndex,
		UserOption:      task.Option(optionIndex),
		UserSolution:    solution,
		Answered:        true,
	})
	if err != nil {
		return o.fail(ctx, NoticeAnswerFailed, err)
	}
	if ctx.Err() != nil {
		return false
	}

	o.patch(func(t *model.Task) {
		t.Answered = true
		t.UserOptionIndex = optionIndex
		t.UserSolution = solution
		if !t.Mode.IsStudent() {
			t.Mode = model.MarkerStudentAnswer
		}
	})
	slog.Info("answer submitted", "task_id", task.ID, "option", optionIndex,
		"correct", optionIndex == task.CorrectOptionIndex)

	return o.continueChat(ctx)
}

// SendMessage adds a student turn and asks the tutor to reply. It is rejected
// while another chat call or a typing animation is running. The student block
// is shown at once and removed again if the turn does not go through.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, mode model.Marker) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	o.mu.Lock()
	if mode == "" {
		mode = o.task.Mode
	}
	if !mode.IsStudent() {
		mode = model.MarkerStudentAnswer
	}
	if o.busyLocked() || !o.task.Answered || o.task.ChatFinished {
		id := o.task.ID
		o.mu.Unlock()
		slog.Debug("message rejected", "task_id", id)
		return false
	}
	o.flags.IsProcessingChat = true
	prevChat, prevMode := o.task.Chat, o.task.Mode
	prevBlocks := o.blocks
	o.blocks = append(slices.Clone(o.blocks), chat.StudentBlock(mode, text))
	o.task.Chat = chat.Append(o.task.Chat, chat.FormatTurn(mode, text))
	o.task.Mode = mode
	sent := o.task.Chat
	blocks, flags := slices.Clone(o.blocks), o.flags
	o.mu.Unlock()

	o.view.BlocksChanged(blocks)
	o.view.FlagsChanged(flags)
	defer o.releaseChat()

	ctx, end := o.begin(&o.messageScope, ctx)
	defer end()

	if o.turn(ctx) {
		return true
	}

	o.mu.Lock()
	rolledBack := o.task.Chat == sent
	if rolledBack {
		o.task.Chat, o.task.Mode = prevChat, prevMode
		o.blocks = prevBlocks
	}
	blocks = slices.Clone(o.blocks)
	o.mu.Unlock()
	if rolledBack {
		o.view.BlocksChanged(blocks)
	}
	return false
}

// EndChat closes the conversation on the student's request: the last block is
// dropped, the chat is marked finished and the task is scored.
func (o *Orchestrator) EndChat(ctx context.Context) bool {
	o.mu.Lock()
	if o.busyLocked() || !o.task.Answered || o.task.Finished {
		o.mu.Unlock()
		return false
	}
	o.flags.IsProcessingChat = true
	task, flags := o.task, o.flags
	o.mu.Unlock()
	o.view.FlagsChanged(flags)
	defer o.releaseChat()

	ctx, end := o.begin(&o.endScope, ctx)
	defer end()

	if !task.ChatFinished {
		truncated := chat.RemoveLastBlock(task.Chat)
		err := o.api.UpdateChat(ctx, task.ID, backend.ChatUpdate{
			Chat:         truncated,
			ChatFinished: true,
			UserSolution: task.UserSolution,
			Mode:         task.Mode,
		})
		if err != nil {
			return o.fail(ctx, NoticeChatSaveFailed, err)
		}
		if ctx.Err() != nil {
			return false
		}
		task.Chat = truncated
		task.ChatFinished = true
		o.adopt(task)
		slog.Info("chat ended by student", "task_id", task.ID)
	}
	return o.score(ctx)
}

// busyLocked reports whether a chat flow, an animation or an answer submission
// is running. o.mu must be held.
func (o *Orchestrator) busyLocked() bool {
	f := o.flags
	return f.IsProcessingChat || f.IsTyping || f.IsSubmittingAnswer
}

func (o *Orchestrator) releaseChat() {
	o.updateFlags(func(f *Flags) {
		f.IsProcessingChat = false
		f.ChatLoading = false
	})
}

// continueChat requests the next tutor turn if the transcript owes one, or
// scores the task when the chat is already finished.
func (o *Orchestrator) continueChat(ctx context.Context) bool {
	o.mu.Lock()
	if o.flags.IsProcessingChat || o.flags.IsTyping {
		o.mu.Unlock()
		return false
	}
	o.flags.IsProcessingChat = true
	flags := o.flags
	o.mu.Unlock()
	o.view.FlagsChanged(flags)
	defer o.releaseChat()

	return o.turn(ctx)
}

// owesTurn reports whether the tutor has to speak next.
func owesTurn(transcript string) bool {
	last, ok := chat.LastMarker(transcript)
	return !ok || last.IsStudent()
}

// turn runs one step of the chat loop. It returns true once the transcript
// the step started from has been persisted, even if scoring fails later.
func (o *Orchestrator) turn(ctx context.Context) bool {
	task := o.Task()
	switch {
	case task.Finished:
		return true
	case task.ChatFinished:
		o.score(ctx)
		return true
	case !owesTurn(task.Chat):
		return true
	}

	o.updateFlags(func(f *Flags) { f.ChatLoading = true })
	reply, err := o.requestTurn(ctx, task)
	o.updateFlags(func(f *Flags) { f.ChatLoading = false })
	if err != nil {
		return o.fail(ctx, NoticeChatFailed, err)
	}

	userSolution := task.UserSolution
	if s := strings.TrimSpace(reply.UserSolution); s != "" {
		userSolution = s
	}
	transcript := task.Chat
	if strings.TrimSpace(reply.Chat) != "" {
		transcript = chat.Append(task.Chat, strings.TrimSpace(reply.Chat))
	}

	err = o.api.UpdateChat(ctx, task.ID, backend.ChatUpdate{
		Chat:         transcript,
		ChatFinished: reply.ChatFinished,
		UserSolution: userSolution,
		Mode:         task.Mode,
	})
	if err != nil {
		return o.fail(ctx, NoticeChatSaveFailed, err)
	}

	// Persisted; keep it locally even if ctx was cancelled in the meantime.
	o.mu.Lock()
	o.task.Chat = transcript
	o.task.UserSolution = userSolution
	o.task.ChatFinished = reply.ChatFinished
	fresh := chat.NewRobotBlocks(chat.Parse(transcript), o.blocks)
	t := o.task
	o.mu.Unlock()
	o.view.TaskChanged(t)

	if reply.ChatFinished {
		slog.Info("tutor finished the chat", "task_id", t.ID)
		o.adopt(t)
		o.score(ctx)
		return true
	}
	o.animate(fresh)
	return true
}

// chatPass pairs the fixed turn request with the latest reply for refine.Run.
type chatPass struct {
	req   backend.ChatRequest
	reply backend.ChatReply
	sent  bool
}

func (p chatPass) Progress() model.Attempt { return p.reply.Attempt }

func (o *Orchestrator) requestTurn(ctx context.Context, task model.Task) (backend.ChatReply, error) {
	start := chatPass{req: backend.ChatRequest{
		Attempt:       freshAttempt(),
		Text:          task.Text,
		Solution:      task.Solution,
		Chat:          task.Chat,
		UserSolution:  task.UserSolution,
		ChatFinished:  task.ChatFinished,
		Mode:          task.Mode,
		Subtopics:     model.SubtopicNames(task.Subtopics),
		Options:       task.Options,
		UserOption:    task.Option(task.UserOptionIndex),
		CorrectOption: task.Option(task.CorrectOptionIndex),
	}}
	pass, err := refine.Run(ctx, start, func(ctx context.Context, p chatPass) (chatPass, error) {
		req := p.req
		if p.sent {
			req.Attempt = p.reply.Attempt
			if p.reply.UserSolution != "" {
				req.UserSolution = p.reply.UserSolution
			}
		}
		reply, err := o.api.GenerateChat(ctx, req)
		return chatPass{req: p.req, reply: reply, sent: true}, err
	})
	return pass.reply, err
}

// animate reveals fresh tutor blocks and then splices them after the last
// student block.
func (o *Orchestrator) animate(fresh []chat.Block) {
	if len(fresh) == 0 {
		return
	}
	o.mu.Lock()
	if o.root.Err() != nil {
		// Closed: keep the persisted turn without animating it.
		o.blocks = chat.Splice(o.blocks, fresh)
		blocks := slices.Clone(o.blocks)
		o.mu.Unlock()
		o.view.BlocksChanged(blocks)
		return
	}
	o.flags.IsTyping = true
	flags := o.flags
	o.mu.Unlock()
	o.view.FlagsChanged(flags)

	texts := make([]string, len(fresh))
	for i, b := range fresh {
		texts[i] = b.Content
	}
	o.typing.Start(o.root, texts, func(i int, partial string) {
		temp := slices.Clone(fresh[:i+1])
		temp[i].Content = partial
		o.view.TypingChanged(temp)
		if o.scroll.AtBottom() {
			o.view.ScrollToBottom()
		}
	}, func() {
		o.mu.Lock()
		o.blocks = chat.Splice(o.blocks, fresh)
		o.flags.IsTyping = false
		blocks, flags := slices.Clone(o.blocks), o.flags
		o.mu.Unlock()

		o.view.TypingChanged(nil)
		o.view.BlocksChanged(blocks)
		o.view.FlagsChanged(flags)
		if o.scroll.AtBottom() {
			o.view.ScrollToBottom()
		}
	})
}
