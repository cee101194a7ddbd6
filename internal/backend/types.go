package backend

import "github.com/pavelanni/tutor/internal/model"

// TextDraft is both the request and the reply of the task text stage.
type TextDraft struct {
	model.Attempt
	Text        string       `json:"text"`
	Translate   string       `json:"translate"`
	OutputWords []model.Word `json:"outputWords"`
}

// OptionsDraft is both the request and the reply of the options stage.
// Random1, Random2 and RandomOption tell the backend where to place distractors.
type OptionsDraft struct {
	model.Attempt
	Text               string   `json:"text"`
	Subtopics          []string `json:"subtopics"`
	Solution           string   `json:"solution"`
	Options            []string `json:"options"`
	Explanations       []string `json:"explanations"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	Random1            int      `json:"random1"`
	Random2            int      `json:"random2"`
	RandomOption       int      `json:"randomOption"`
}

// Transaction commits a pipeline stage or a score.
type Transaction struct {
	ID                 int64            `json:"id,omitempty"`
	Stage              model.Stage      `json:"stage"`
	Text               string           `json:"text"`
	Translate          string           `json:"translate,omitempty"`
	Solution           string           `json:"solution"`
	Words              []model.Word     `json:"words"`
	Percent            float64          `json:"percent"`
	Options            []string         `json:"options"`
	CorrectOptionIndex int              `json:"correctOptionIndex"`
	Explanations       []string         `json:"explanations"`
	Explanation        string           `json:"explanation"`
	TaskSubtopics      []model.Subtopic `json:"taskSubtopics"`
}

// TransactionResult is the reply to a committed transaction.
type TransactionResult struct {
	TaskID int64 `json:"taskId"`
}

// AudioRequest asks the backend to narrate the task text.
type AudioRequest struct {
	Text     string      `json:"text"`
	Stage    model.Stage `json:"stage"`
	Language string      `json:"language"`
}

// ProblemsDraft is both the request and the reply of the scoring endpoint.
type ProblemsDraft struct {
	model.Attempt
	Text            string                 `json:"text"`
	Solution        string                 `json:"solution"`
	Options         []string               `json:"options"`
	CorrectOption   string                 `json:"correctOption"`
	UserOption      string                 `json:"userOption"`
	UserSolution    string                 `json:"userSolution"`
	Subtopics       []string               `json:"subtopics"`
	OutputSubtopics []model.OutputSubtopic `json:"outputSubtopics"`
	Explanation     string                 `json:"explanation"`
}

// ChatRequest asks for the next tutor turn. Chat is the whole transcript so far.
type ChatRequest struct {
	model.Attempt
	Text          string       `json:"text"`
	Solution      string       `json:"solution"`
	Chat          string       `json:"chat"`
	UserSolution  string       `json:"userSolution"`
	ChatFinished  bool         `json:"chatFinished"`
	Mode          model.Marker `json:"mode"`
	Subtopics     []string     `json:"subtopics"`
	Options       []string     `json:"options"`
	UserOption    string       `json:"userOption"`
	CorrectOption string       `json:"correctOption"`
}

// ChatReply carries the new transcript fragment for one tutor turn.
type ChatReply struct {
	model.Attempt
	Chat         string `json:"chat"`
	ChatFinished bool   `json:"chatFinished"`
	UserSolution string `json:"userSolution"`
}

// ChatUpdate persists the transcript.
type ChatUpdate struct {
	Chat         string       `json:"chat"`
	ChatFinished bool         `json:"chatFinished"`
	UserSolution string       `json:"userSolution"`
	Mode         model.Marker `json:"mode"`
}

// UserSolutionUpdate persists the student's answer to the multiple-choice task.
type UserSolutionUpdate struct {
	UserOptionIndex int    `json:"userOptionIndex"`
	UserOption      string `json:"userOption"`
	UserSolution    string `json:"userSolution"`
	Answered        bool   `json:"answered"`
}

type taskEnvelope struct {
	Task *model.Task `json:"task"`
}

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}
