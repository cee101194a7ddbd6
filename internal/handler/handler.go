package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
	"github.com/pavelanni/tutor/internal/store"
)

// APIFactory returns the backend client for a session's curriculum coordinates.
type APIFactory func(sc model.SessionContext) session.API

type live struct {
	orch *session.Orchestrator
	feed *Feed
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	api      APIFactory
	opts     session.Options
	basePath string

	mu       sync.Mutex
	sessions map[string]*live
}

// New creates a new Handler.
func New(s *store.Store, api APIFactory, opts session.Options, basePath string) *Handler {
	return &Handler{
		store:    s,
		api:      api,
		opts:     opts,
		basePath: basePath,
		sessions: make(map[string]*live),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.handleListSessions)
		r.Post("/", h.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleSnapshot)
			r.Delete("/", h.handleCloseSession)
			r.Get("/events", h.handleEvents)
			r.Post("/answer", h.handleAnswer)
			r.Post("/messages", h.handleMessage)
			r.Post("/end", h.handleEnd)
			r.Post("/scroll", h.handleScroll)
		})
	})
}

// BasePathMiddleware injects the configured base path into the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.basePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Close ends every live session.
func (h *Handler) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*live)
	h.mu.Unlock()
	for _, l := range sessions {
		l.orch.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

type createRequest struct {
	model.SessionContext
	Lang string `json:"lang"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lang := i18n.Match(req.Lang, r.Header.Get("Accept-Language"), i18n.Default())

	rec, err := h.store.CreateSession(req.SessionContext, lang)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.start(rec)
	slog.Info("session created", "session_id", rec.ID, "topic_id", rec.Context.TopicID, "lang", lang)

	w.Header().Set("Location", model.BasePathFromContext(r.Context())+"/api/sessions/"+rec.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": rec.ID})
}

// start creates the orchestrator of rec and loads its task in the background.
func (h *Handler) start(rec model.SessionRecord) *live {
	feed := NewFeed(rec.ID, rec.Lang, func(n session.Notice) {
		if _, err := h.store.AddNotice(rec.ID, n.ID, n.Detail); err != nil {
			slog.Error("record notice", "session_id", rec.ID, "error", err)
		}
	})
	notices, err := h.store.ListNotices(rec.ID)
	if err != nil {
		slog.Error("list notices", "session_id", rec.ID, "error", err)
	}
	feed.Restore(notices)
	l := &live{
		orch: session.New(h.api(rec.Context), feed, rec.Context, h.opts),
		feed: feed,
	}

	h.mu.Lock()
	if prev, ok := h.sessions[rec.ID]; ok {
		h.mu.Unlock()
		l.orch.Close()
		return prev
	}
	h.sessions[rec.ID] = l
	h.mu.Unlock()

	go func() {
		task, ok := l.orch.Load(context.Background())
		if !ok || task.ID == rec.Context.TaskID {
			return
		}
		if err := h.store.SetSessionTask(rec.ID, task.ID); err != nil {
			slog.Error("record session task", "session_id", rec.ID, "error", err)
		}
	}()
	return l
}

// lookup returns the live session named in the URL, resuming a stored open
// session after a restart. It writes a 404 and returns nil if there is none.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) *live {
	id := chi.URLParam(r, "sessionID")

	h.mu.Lock()
	l, ok := h.sessions[id]
	h.mu.Unlock()
	if ok {
		return l
	}

	rec, err := h.store.GetSession(id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && rec.ClosedAt != nil) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	slog.Info("resuming session", "session_id", id, "task_id", rec.Context.TaskID)
	return h.start(rec)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	l := h.lookup(w, r)
	if l == nil {
		return
	}
	writeJSON(w, http.StatusOK, l.feed.Snapshot())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	h.mu.Lock()
	l, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		l.orch.Close()
	}

	err := h.store.CloseSession(id)
	if errors.Is(err, sql.ErrNoRows) && !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("session closed", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	l := h.lookup(w, r)
	if l == nil {
		return
	}
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	wake, unsubscribe := l.feed.Subscribe()
	defer unsubscribe()

	var (
		sent  uint64
		first = true
	)
	for {
		snap := l.feed.Snapshot()
		if first || snap.Version != sent {
			data, err := json.Marshal(snap)
			if err != nil {
				slog.Error("marshal snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", snap.Version, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			sent, first = snap.Version, false
		}
		select {
		case <-r.Context().Done():
			return
		case <-wake:
		}
	}
}

// operation runs fn on a context detached from the request, so a dropped
// connection does not abort the session. Only DELETE aborts.
func (h *Handler) operation(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, o *session.Orchestrator) bool) {
	l := h.lookup(w, r)
	if l == nil {
		return
	}
	status := http.StatusOK
	if !fn(context.WithoutCancel(r.Context()), l.orch) {
		status = http.StatusConflict
	}
	writeJSON(w, status, l.feed.Snapshot())
}

type answerRequest struct {
	OptionIndex int    `json:"optionIndex"`
	Solution    string `json:"solution"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.operation(w, r, func(ctx context.Context, o *session.Orchestrator) bool {
		return o.SubmitAnswer(ctx, req.OptionIndex, req.Solution)
	})
}

type messageRequest struct {
	Text string       `json:"text"`
	Mode model.Marker `json:"mode"`
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Mode != "" && !req.Mode.IsStudent() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("mode %q is not a student marker", req.Mode))
		return
	}
	h.operation(w, r, func(ctx context.Context, o *session.Orchestrator) bool {
		return o.SendMessage(ctx, req.Text, req.Mode)
	})
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, func(ctx context.Context, o *session.Orchestrator) bool {
		return o.EndChat(ctx)
	})
}

type scrollRequest struct {
	Top      float64 `json:"top"`
	Height   float64 `json:"height"`
	Viewport float64 `json:"viewport"`
}

func (h *Handler) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l := h.lookup(w, r)
	if l == nil {
		return
	}
	l.orch.Scroll(req.Top, req.Height, req.Viewport)
	w.WriteHeader(http.StatusNoContent)
}
