package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pavelanni/tutor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestSession(t *testing.T, s *Store, topic int64) model.SessionRecord {
	t.Helper()
	rec, err := s.CreateSession(model.SessionContext{SubjectID: 1, SectionID: 2, TopicID: topic}, "pl")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return rec
}

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)

	rec := createTestSession(t, s, 3)
	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Errorf("session id %q is not a uuid: %v", rec.ID, err)
	}

	got, err := s.GetSession(rec.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	want := model.SessionContext{SubjectID: 1, SectionID: 2, TopicID: 3}
	if got.Context != want {
		t.Errorf("context = %+v, want %+v", got.Context, want)
	}
	if got.Lang != "pl" {
		t.Errorf("lang = %q, want pl", got.Lang)
	}
	if got.ClosedAt != nil {
		t.Error("new session is closed")
	}

	if err := s.SetSessionTask(rec.ID, 42); err != nil {
		t.Fatalf("SetSessionTask: %v", err)
	}
	got, _ = s.GetSession(rec.ID)
	if got.Context.TaskID != 42 {
		t.Errorf("task id = %d, want 42", got.Context.TaskID)
	}

	_, err = s.GetSession("missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
	if err := s.SetSessionTask("missing", 1); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("SetSessionTask(missing) = %v, want ErrNoRows", err)
	}
}

func TestCloseSession(t *testing.T) {
	s := newTestStore(t)
	open := createTestSession(t, s, 1)
	closed := createTestSession(t, s, 2)

	if err := s.CloseSession(closed.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if err := s.CloseSession(closed.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second CloseSession = %v, want ErrNoRows", err)
	}

	tests := []struct {
		name     string
		openOnly bool
		want     []string
	}{
		{"all", false, []string{closed.ID, open.ID}},
		{"open only", true, []string{open.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListSessions(tt.openOnly)
			if err != nil {
				t.Fatalf("ListSessions: %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("got %d sessions, want %d", len(list), len(tt.want))
			}
			for i, rec := range list {
				if rec.ID != tt.want[i] {
					t.Errorf("session %d = %s, want %s", i, rec.ID, tt.want[i])
				}
			}
		})
	}

	got, _ := s.GetSession(closed.ID)
	if got.ClosedAt == nil {
		t.Error("closed_at not set")
	}
}

func TestLastSession(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LastSession(); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("LastSession on empty store = %v, want ErrNoRows", err)
	}

	createTestSession(t, s, 1)
	second := createTestSession(t, s, 2)

	got, err := s.LastSession()
	if err != nil {
		t.Fatalf("LastSession: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("last session = %s, want %s", got.ID, second.ID)
	}
}

func TestNotices(t *testing.T) {
	s := newTestStore(t)
	rec := createTestSession(t, s, 1)
	other := createTestSession(t, s, 2)

	for _, id := range []string{"ChatFailed", "ScoringFailed"} {
		if _, err := s.AddNotice(rec.ID, id, "timeout"); err != nil {
			t.Fatalf("AddNotice: %v", err)
		}
	}
	if _, err := s.AddNotice(other.ID, "TaskLoadFailed", ""); err != nil {
		t.Fatalf("AddNotice: %v", err)
	}

	notices, err := s.ListNotices(rec.ID)
	if err != nil {
		t.Fatalf("ListNotices: %v", err)
	}
	if len(notices) != 2 {
		t.Fatalf("got %d notices, want 2", len(notices))
	}
	if notices[0].NoticeID != "ChatFailed" || notices[1].NoticeID != "ScoringFailed" {
		t.Errorf("notices out of order: %+v", notices)
	}
	if notices[0].Detail != "timeout" || notices[0].SessionID != rec.ID {
		t.Errorf("notice = %+v", notices[0])
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	val, err := s.GetMetadata("missing")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if val != "" {
		t.Errorf("expected empty, got %q", val)
	}

	if err := s.SetMetadata("theme", "dark"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("theme", "light"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}
	val, _ = s.GetMetadata("theme")
	if val != "light" {
		t.Errorf("expected 'light', got %q", val)
	}
}
