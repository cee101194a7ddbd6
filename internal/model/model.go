package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Marker is a transcript segment tag such as [AI_ANSWER].
type Marker string

const (
	MarkerAIAnswer        Marker = "AI_ANSWER"
	MarkerAIQuestion      Marker = "AI_QUESTION"
	MarkerAIUserSolution  Marker = "AI_USER_SOLUTION"
	MarkerStudentAnswer   Marker = "STUDENT_ANSWER"
	MarkerStudentQuestion Marker = "STUDENT_QUESTION"
)

// Markers lists every recognised marker.
var Markers = []Marker{
	MarkerAIAnswer,
	MarkerAIQuestion,
	MarkerAIUserSolution,
	MarkerStudentAnswer,
	MarkerStudentQuestion,
}

// IsStudent reports whether the marker opens a segment written by the student.
func (m Marker) IsStudent() bool {
	return m == MarkerStudentAnswer || m == MarkerStudentQuestion
}

// Tag returns the literal line prefix, e.g. "[AI_ANSWER]".
func (m Marker) Tag() string {
	return "[" + string(m) + "]"
}

// Stage is the checkpoint of the task generation pipeline.
type Stage int

const (
	StageUnstarted Stage = 0
	StageText      Stage = 1
	StageOptions   Stage = 2
	StageAudio     Stage = 3
)

// Ready reports whether the pipeline has produced a task the student can answer.
func (s Stage) Ready() bool { return s >= StageAudio }

// SessionContext identifies where in the curriculum a session is working.
type SessionContext struct {
	SubjectID int64 `json:"subjectId"`
	SectionID int64 `json:"sectionId"`
	TopicID   int64 `json:"topicId"`
	TaskID    int64 `json:"taskId,omitempty"`
}

// Validate checks that the curriculum coordinates are set.
func (sc SessionContext) Validate() error {
	if sc.SubjectID <= 0 || sc.SectionID <= 0 || sc.TopicID <= 0 {
		return fmt.Errorf("subject, section and topic ids are required (got %d/%d/%d)",
			sc.SubjectID, sc.SectionID, sc.TopicID)
	}
	return nil
}

// SessionRecord is a stored session: its curriculum coordinates and the
// language the student works in.
type SessionRecord struct {
	ID        string         `json:"id"`
	Context   SessionContext `json:"context"`
	Lang      string         `json:"lang"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	ClosedAt  *time.Time     `json:"closedAt,omitempty"`
}

// NoticeRecord is a notice shown during a session, kept for later review.
type NoticeRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	NoticeID  string    `json:"noticeId"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}

// Subtopic is a rubric unit graded after each completed chat.
type Subtopic struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// SubtopicNames returns the names of the given subtopics in order.
func SubtopicNames(subs []Subtopic) []string {
	names := make([]string, 0, len(subs))
	for _, s := range subs {
		names = append(names, s.Name)
	}
	return names
}

// OutputSubtopic is one [name, percent] pair reported by the scoring endpoint.
type OutputSubtopic struct {
	Name    string
	Percent float64
}

// UnmarshalJSON accepts ["name", "30"] as well as ["name", 30].
func (o *OutputSubtopic) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("output subtopic: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("output subtopic: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &o.Name); err != nil {
		return fmt.Errorf("output subtopic name: %w", err)
	}
	raw := bytes.TrimSpace(pair[1])
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("output subtopic percent: %w", err)
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if s == "" {
			o.Percent = 0
			return nil
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("output subtopic percent %q: %w", s, err)
		}
		o.Percent = p
		return nil
	}
	if err := json.Unmarshal(raw, &o.Percent); err != nil {
		return fmt.Errorf("output subtopic percent: %w", err)
	}
	return nil
}

// MarshalJSON writes the pair back in the backend's array form.
func (o OutputSubtopic) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{o.Name, strconv.FormatFloat(o.Percent, 'f', -1, 64)})
}

// Word is a vocabulary entry attached to a task.
type Word struct {
	ID          int64  `json:"id,omitempty"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
	Frequency   int    `json:"frequency,omitempty"`
}

// Task is the client-side snapshot of a backend task.
type Task struct {
	ID                 int64      `json:"id"`
	Stage              Stage      `json:"stage"`
	Text               string     `json:"text"`
	Translate          string     `json:"translate,omitempty"`
	Solution           string     `json:"solution"`
	Options            []string   `json:"options"`
	CorrectOptionIndex int        `json:"correctOptionIndex"`
	UserOptionIndex    int        `json:"userOptionIndex"`
	UserSolution       string     `json:"userSolution"`
	Explanations       []string   `json:"explanations"`
	Explanation        string     `json:"explanation"`
	Chat               string     `json:"chat"`
	ChatFinished       bool       `json:"chatFinished"`
	Mode               Marker     `json:"mode"`
	Answered           bool       `json:"answered"`
	Finished           bool       `json:"finished"`
	Percent            float64    `json:"percent"`
	PercentAudio       float64    `json:"percentAudio"`
	PercentWords       float64    `json:"percentWords"`
	Subtopics          []Subtopic `json:"subtopics"`
	Words              []Word     `json:"words"`
	AudioURL           string     `json:"audioUrl,omitempty"`
}

// Option returns the text of option i, or "" when i is out of range.
func (t Task) Option(i int) string {
	if i < 0 || i >= len(t.Options) {
		return ""
	}
	return t.Options[i]
}

// Attempt is the refinement bookkeeping every generation request and reply carries.
// Changed is the string "true" when the backend asks for another pass.
type Attempt struct {
	Changed string   `json:"changed"`
	Errors  []string `json:"errors"`
	Attempt int      `json:"attempt"`
}

// Progress returns the bookkeeping itself; generation records embed Attempt to satisfy refine.State.
func (a Attempt) Progress() Attempt { return a }

// WantsRetry reports whether the backend flagged the payload for another pass.
func (a Attempt) WantsRetry() bool { return a.Changed == "true" }

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
