package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pavelanni/tutor/internal/model"
)

// Tasks is the task API of one topic.
type Tasks struct {
	c      *Client
	prefix string
}

// Tasks returns the task API for the topic named by sc.
func (c *Client) Tasks(sc model.SessionContext) *Tasks {
	return &Tasks{
		c:      c,
		prefix: fmt.Sprintf("/subjects/%d/sections/%d/topics/%d/tasks", sc.SubjectID, sc.SectionID, sc.TopicID),
	}
}

// GenerateText runs one pass of the task text stage.
func (t *Tasks) GenerateText(ctx context.Context, d TextDraft) (TextDraft, error) {
	var out TextDraft
	err := t.c.doJSON(ctx, http.MethodPost, t.prefix+"/interactive-task-generate", http.StatusCreated, d, &out)
	return out, err
}

// GenerateOptions runs one pass of the options stage.
func (t *Tasks) GenerateOptions(ctx context.Context, d OptionsDraft) (OptionsDraft, error) {
	var out OptionsDraft
	err := t.c.doJSON(ctx, http.MethodPost, t.prefix+"/options-generate", http.StatusCreated, d, &out)
	return out, err
}

// Commit persists a stage or a score atomically.
func (t *Tasks) Commit(ctx context.Context, tx Transaction) (TransactionResult, error) {
	var out TransactionResult
	err := t.c.doJSON(ctx, http.MethodPost, t.prefix+"/task-transaction", http.StatusCreated, tx, &out)
	return out, err
}

// GenerateAudio narrates the text of task id.
func (t *Tasks) GenerateAudio(ctx context.Context, id int64, req AudioRequest) error {
	path := fmt.Sprintf("%s/%d/audio-transaction", t.prefix, id)
	return t.c.doJSON(ctx, http.MethodPost, path, http.StatusCreated, req, nil)
}

// GenerateProblems runs one pass of the scoring endpoint.
func (t *Tasks) GenerateProblems(ctx context.Context, d ProblemsDraft) (ProblemsDraft, error) {
	var out ProblemsDraft
	err := t.c.doJSON(ctx, http.MethodPost, t.prefix+"/problems-generate", http.StatusCreated, d, &out)
	return out, err
}

// GenerateChat asks for the next tutor turn.
func (t *Tasks) GenerateChat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	var out ChatReply
	err := t.c.doJSON(ctx, http.MethodPost, t.prefix+"/chat-generate", http.StatusCreated, req, &out)
	return out, err
}

// UpdateChat persists the transcript of task id.
func (t *Tasks) UpdateChat(ctx context.Context, id int64, u ChatUpdate) error {
	path := fmt.Sprintf("%s/%d/chat", t.prefix, id)
	return t.c.doJSON(ctx, http.MethodPut, path, http.StatusOK, u, nil)
}

// UpdateUserSolution persists the student's answer for task id.
func (t *Tasks) UpdateUserSolution(ctx context.Context, id int64, u UserSolutionUpdate) error {
	path := fmt.Sprintf("%s/%d/user-solution", t.prefix, id)
	return t.c.doJSON(ctx, http.MethodPut, path, http.StatusOK, u, nil)
}

// Pending returns the unfinished task of the topic, or nil when there is none.
func (t *Tasks) Pending(ctx context.Context) (*model.Task, error) {
	var out taskEnvelope
	err := t.c.doJSON(ctx, http.MethodGet, t.prefix+"/pending", http.StatusOK, nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Task == nil || out.Task.ID == 0 {
		return nil, nil
	}
	return out.Task, nil
}

// Task returns the task with the given id.
func (t *Tasks) Task(ctx context.Context, id int64) (*model.Task, error) {
	var out taskEnvelope
	err := t.c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/%d", t.prefix, id), http.StatusOK, nil, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if out.Task == nil {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return out.Task, nil
}
