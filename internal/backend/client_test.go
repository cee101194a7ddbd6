package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavelanni/tutor/internal/model"
)

var testSession = model.SessionContext{SubjectID: 1, SectionID: 2, TopicID: 3}

func newTestTasks(t *testing.T, h http.HandlerFunc) *Tasks {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", Token: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c.Tasks(testSession)
}

func TestNewValidatesURL(t *testing.T) {
	for _, u := range []string{"", "  ", "localhost:3000"} {
		if _, err := New(Options{BaseURL: u}); err == nil {
			t.Errorf("New(%q) should fail", u)
		}
	}
}

func TestGenerateText(t *testing.T) {
	tasks := newTestTasks(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/subjects/1/sections/2/topics/3/tasks/interactive-task-generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var in TextDraft
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in.Attempt.Attempt != 1 || len(in.Errors) != 1 {
			t.Errorf("bookkeeping not sent: %+v", in.Attempt)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"statusCode":201,"changed":"false","errors":[],"attempt":2,"text":"Hello","translate":"Cześć","outputWords":[{"text":"hello"}]}`))
	})

	out, err := tasks.GenerateText(context.Background(), TextDraft{
		Attempt: model.Attempt{Changed: "true", Errors: []string{"too long"}, Attempt: 1},
		Text:    "draft",
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out.Text != "Hello" || out.Translate != "Cześć" || out.Attempt.Attempt != 2 || len(out.OutputWords) != 1 {
		t.Errorf("unexpected reply %+v", out)
	}
	if out.WantsRetry() {
		t.Error("reply should not ask for a retry")
	}
}

func TestEnvelopeStatusMismatch(t *testing.T) {
	tasks := newTestTasks(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"statusCode":400,"message":"Brak słów do nauki"}`))
	})

	_, err := tasks.GenerateOptions(context.Background(), OptionsDraft{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 400 || se.Want != 201 {
		t.Errorf("unexpected status error %+v", se)
	}
	if Classify(err) != KindRejected {
		t.Errorf("Classify = %v, want rejected", Classify(err))
	}
	if Message(err) != "Brak słów do nauki" {
		t.Errorf("Message = %q", Message(err))
	}
}

func TestHTTPStatusUsedWithoutEnvelopeCode(t *testing.T) {
	tasks := newTestTasks(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/subjects/1/sections/2/topics/3/tasks/7/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := tasks.UpdateChat(context.Background(), 7, ChatUpdate{Chat: "[AI_ANSWER]x"}); err != nil {
		t.Fatalf("UpdateChat: %v", err)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	tasks := newTestTasks(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	err := tasks.GenerateAudio(context.Background(), 7, AudioRequest{Text: "x", Stage: model.StageAudio})
	if Classify(err) != KindRejected {
		t.Fatalf("Classify(%v) = %v, want rejected", err, Classify(err))
	}
}

func TestPending(t *testing.T) {
	t.Run("task", func(t *testing.T) {
		tasks := newTestTasks(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"statusCode":200,"task":{"id":9,"stage":2,"chat":"[AI_ANSWER]x"}}`))
		})
		task, err := tasks.Pending(context.Background())
		if err != nil {
			t.Fatalf("Pending: %v", err)
		}
		if task == nil || task.ID != 9 || task.Stage != model.StageOptions {
			t.Errorf("unexpected task %+v", task)
		}
	})

	t.Run("none", func(t *testing.T) {
		tasks := newTestTasks(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"statusCode":404,"message":"no pending task"}`))
		})
		task, err := tasks.Pending(context.Background())
		if err != nil || task != nil {
			t.Errorf("Pending = (%+v, %v), want (nil, nil)", task, err)
		}
	})
}

func TestTaskNotFound(t *testing.T) {
	tasks := newTestTasks(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"statusCode":200}`))
	})
	_, err := tasks.Task(context.Background(), 5)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCanceledRequest(t *testing.T) {
	release := make(chan struct{})
	tasks := newTestTasks(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tasks.GenerateChat(ctx, ChatRequest{})
	if Classify(err) != KindCanceled {
		t.Errorf("Classify(%v) = %v, want canceled", err, Classify(err))
	}
}
