package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/guided-audio/internal/asset"
	"github.com/maauso/guided-audio/internal/compose"
	"github.com/maauso/guided-audio/internal/playback"
	"github.com/maauso/guided-audio/internal/session"
	sessionid "github.com/maauso/guided-audio/internal/session/id"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	manager   *session.Manager
	validator *validator.Validate
	logger    *slog.Logger
	defaults  compose.Options
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithDefaultOptions sets the layout used when a create request omits
// pre-roll, preamble or final silence.
func WithDefaultOptions(opts compose.Options) HandlerOption {
	return func(h *Handlers) {
		h.defaults = opts
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(manager *session.Manager, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		manager:   manager,
		validator: validator.New(),
		logger:    logger,
		defaults:  compose.Options{PreRollDelay: 1, Preamble: 8, FinalSilence: 1},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.manager.List(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session store unavailable", "UNHEALTHY")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: len(sessions)})
}

// CreateSession handles POST /sessions requests.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	prompts := make([]compose.Prompt, len(req.Prompts))
	for i, p := range req.Prompts {
		prompts[i] = compose.Prompt{
			ID:           p.ID,
			Text:         p.Text,
			AudioRef:     p.AudioRef,
			SilenceAfter: p.SilenceAfter,
			Expandable:   p.Expandable,
			SilenceMax:   p.SilenceMax,
		}
	}

	opts := h.defaults
	if req.PreRollDelay != nil {
		opts.PreRollDelay = *req.PreRollDelay
	}
	if req.Preamble != nil {
		opts.Preamble = *req.Preamble
	}
	if req.FinalSilence != nil {
		opts.FinalSilence = *req.FinalSilence
	}
	opts.TargetDuration = req.TargetDuration

	s, err := h.manager.Create(r.Context(), prompts, opts)
	if err != nil {
		h.fail(w, "create", "", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		ID:    s.ID,
		State: string(s.State()),
	})
}

// ListSessions handles GET /sessions requests.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.manager.List(r.Context())
	if err != nil {
		h.fail(w, "list", "", err)
		return
	}
	owner := h.manager.Owner()
	resp := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, SessionSummary{
			ID:    s.ID,
			State: string(s.State()),
			Owner: s.ID == owner,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(s.Snapshot()))
}

// DeleteSession handles DELETE /sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BeginSession handles POST /sessions/{id}/begin requests. Composition and
// playback start run under a context detached from the request so a client
// disconnect does not abort a half-started session.
func (h *Handlers) BeginSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := h.manager.Begin(context.WithoutCancel(r.Context()), id)
	if err != nil {
		h.fail(w, "begin", id, err)
		return
	}
	h.writeBegin(w, s)
}

// RestartSession handles POST /sessions/{id}/restart requests.
func (h *Handlers) RestartSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := h.manager.Restart(context.WithoutCancel(r.Context()), id)
	if err != nil {
		h.fail(w, "restart", id, err)
		return
	}
	h.writeBegin(w, s)
}

// PauseSession handles POST /sessions/{id}/pause requests.
func (h *Handlers) PauseSession(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "pause", func(_ context.Context, s *session.Session) error {
		return s.Pause()
	})
}

// ResumeSession handles POST /sessions/{id}/resume requests.
func (h *Handlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "resume", func(ctx context.Context, s *session.Session) error {
		return s.Resume(ctx)
	})
}

// SkipSession handles POST /sessions/{id}/skip requests.
func (h *Handlers) SkipSession(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "skip", func(_ context.Context, s *session.Session) error {
		s.Skip()
		return nil
	})
}

// MuteSession handles POST /sessions/{id}/mute requests.
func (h *Handlers) MuteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	muted, err := s.ToggleMute()
	if err != nil {
		h.fail(w, "mute", s.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, MuteResponse{Muted: muted})
}

// SeekSession handles POST /sessions/{id}/seek requests.
func (h *Handlers) SeekSession(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.control(w, r, "seek", func(ctx context.Context, s *session.Session) error {
		return s.Seek(ctx, req.Seconds)
	})
}

// ResizeSession handles POST /sessions/{id}/resize requests.
func (h *Handlers) ResizeSession(w http.ResponseWriter, r *http.Request) {
	var req ResizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.control(w, r, "resize", func(ctx context.Context, s *session.Session) error {
		return s.Resize(ctx, req.TargetDuration)
	})
}

// SetVisibility handles POST /sessions/{id}/visibility requests.
func (h *Handlers) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.control(w, r, "visibility", func(ctx context.Context, s *session.Session) error {
		return s.SetHidden(ctx, req.Hidden)
	})
}

// GetTimeMap handles GET /sessions/{id}/timemap requests.
func (h *Handlers) GetTimeMap(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st := s.Stream()
	if st == nil {
		writeError(w, http.StatusConflict, "session has no composed stream", "STREAM_NOT_READY")
		return
	}
	writeJSON(w, http.StatusOK, TimeMapResponse{
		Duration: st.Duration,
		Preamble: st.Preamble,
		Offset:   st.Offset,
		TimeMap:  toTimeMapResponse(st.TimeMap),
	})
}

// GetStream handles GET /sessions/{id}/stream requests. The composed bytes
// are served with range support; X-Stream-Offset carries the absolute time
// of the first byte.
func (h *Handlers) GetStream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st := s.Stream()
	if st == nil {
		writeError(w, http.StatusConflict, "session has no composed stream", "STREAM_NOT_READY")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("X-Stream-Offset", strconv.FormatFloat(st.Offset, 'f', -1, 64))
	w.Header().Set("X-Stream-Duration", strconv.FormatFloat(st.Duration, 'f', -1, 64))
	http.ServeContent(w, r, s.ID+".mp3", time.Time{}, bytes.NewReader(st.Data))
}

func (h *Handlers) control(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, *session.Session) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), s); err != nil {
		h.fail(w, op, s.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(s.Snapshot()))
}

func (h *Handlers) writeBegin(w http.ResponseWriter, s *session.Session) {
	p := s.Snapshot()
	writeJSON(w, http.StatusOK, BeginResponse{
		ID:      s.ID,
		State:   string(p.State),
		Total:   p.Total,
		TimeMap: toTimeMapResponse(s.TimeMap()),
	})
}

// session resolves the {id} path value, writing a 404 when it is unknown.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return nil, false
	}
	if !sessionid.Valid(id) {
		h.fail(w, "get", id, session.ErrNotFound)
		return nil, false
	}
	s, err := h.manager.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get", id, err)
		return nil, false
	}
	return s, true
}

// decode reads and validates a JSON body into dst.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// fail maps a domain error to a status code and error code.
func (h *Handlers) fail(w http.ResponseWriter, op, id string, err error) {
	status, code := classify(err)
	attrs := []any{
		slog.String("op", op),
		slog.String("error", err.Error()),
		slog.String("code", code),
	}
	if id != "" {
		attrs = append(attrs, slog.String("session_id", id))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Warn("request failed", attrs...)
	}
	writeError(w, status, err.Error(), code)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "SESSION_BUSY"
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict, "SESSION_NOT_ACTIVE"
	case errors.Is(err, session.ErrInterrupted):
		return http.StatusConflict, "SESSION_INTERRUPTED"
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, asset.ErrCriticalAsset):
		return http.StatusBadGateway, "ASSET_FETCH_FAILED"
	case errors.Is(err, playback.ErrPlaybackStart):
		return http.StatusUnprocessableEntity, "PLAYBACK_START_FAILED"
	case errors.Is(err, compose.ErrResizeUnsupported):
		return http.StatusUnprocessableEntity, "RESIZE_UNSUPPORTED"
	case errors.Is(err, compose.ErrNoPrompts),
		errors.Is(err, compose.ErrInvalidPrompt),
		errors.Is(err, compose.ErrInvalidOptions):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func toProgressResponse(p session.Progress) ProgressResponse {
	return ProgressResponse{
		ID:          p.ID,
		State:       string(p.State),
		Progress:    p.Progress,
		Elapsed:     p.Elapsed,
		Total:       p.Total,
		ShowTimer:   p.ShowTimer,
		IsPaused:    p.IsPaused,
		PromptIndex: p.PromptIndex,
		PromptID:    p.PromptID,
		TextVisible: p.TextVisible,
		Muted:       p.Muted,
		Degraded:    p.Degraded,
		Error:       p.Error,
	}
}

func toTimeMapResponse(entries []compose.TimeMapEntry) []TimeMapEntryResponse {
	resp := make([]TimeMapEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = TimeMapEntryResponse(e)
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
