package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/mock-interview/internal/chat"
	"github.com/ashureev/mock-interview/internal/domain"
	"github.com/ashureev/mock-interview/internal/identity"
	"github.com/ashureev/mock-interview/internal/workspace"
	"github.com/go-chi/chi/v5"
)

// Workspaces resolves the orchestrator of a user. The orchestrator stays
// loaded until release is called.
type Workspaces interface {
	Acquire(ctx context.Context, userID string) (orch *chat.Orchestrator, release func(), err error)
}

// SceneCatalog is the read-only view of the scene catalog the API exposes.
type SceneCatalog interface {
	List() []domain.InterviewScene
	DefaultSceneID() string
	Label(id string) string
}

// ChatHandler serves the interview chat endpoints.
type ChatHandler struct {
	workspaces Workspaces
	scenes     SceneCatalog
	limiter    *RateLimiter
	decoder    *decoder
	logger     *slog.Logger
}

// NewChatHandler creates a chat handler. limiter may be nil to disable rate limiting.
func NewChatHandler(workspaces Workspaces, scenes SceneCatalog, limiter *RateLimiter, maxBodyBytes int64, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		workspaces: workspaces,
		scenes:     scenes,
		limiter:    limiter,
		decoder:    newDecoder(maxBodyBytes),
		logger:     logger,
	}
}

type createSessionRequest struct {
	SceneID string `json:"scene_id" validate:"omitempty,max=64"`
}

type selectSceneRequest struct {
	SceneID string `json:"scene_id" validate:"required,max=64"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=8000"`
}

type sessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SceneID      string `json:"scene_id"`
	SceneLabel   string `json:"scene_label"`
	MessageCount int    `json:"message_count"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/scenes", h.ListScenes)
		r.Get("/state", h.GetState)
		r.Put("/scene", h.SelectScene)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)
			r.Delete("/", h.ClearSessions)
			r.Get("/{id}", h.GetSession)
			r.Delete("/{id}", h.DeleteSession)
			r.Post("/{id}/select", h.SelectSession)
		})

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/messages", h.SendMessage)
		})
	})
}

// ListScenes returns the scene catalog.
func (h *ChatHandler) ListScenes(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"scenes":           h.scenes.List(),
		"default_scene_id": h.scenes.DefaultSceneID(),
	})
}

// GetState returns sessions, the active session, the selected scene and the loading flag.
func (h *ChatHandler) GetState(w http.ResponseWriter, r *http.Request) {
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	JSON(w, http.StatusOK, orch.State())
}

// ListSessions returns session summaries, most recently created first.
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	sessions := orch.Sessions()
	out := make([]sessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = sessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			SceneID:      s.SceneID,
			SceneLabel:   h.scenes.Label(s.SceneID),
			MessageCount: len(s.Messages),
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
		}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

// CreateSession starts a new chat, optionally switching scene first.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := h.decoder.decode(w, r, &req, true); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	if req.SceneID != "" {
		if err := orch.SelectScene(req.SceneID); err != nil {
			h.writeChatError(w, r, err)
			return
		}
	}
	JSON(w, http.StatusCreated, orch.NewChat())
}

// GetSession returns one session with its messages.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	sess, found := orch.Session(chi.URLParam(r, "id"))
	if !found {
		Error(w, http.StatusNotFound, chat.ErrUnknownSession.Error())
		return
	}
	JSON(w, http.StatusOK, sess)
}

// SelectSession makes a session active.
func (h *ChatHandler) SelectSession(w http.ResponseWriter, r *http.Request) {
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	if err := orch.SelectSession(chi.URLParam(r, "id")); err != nil {
		h.writeChatError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, orch.State())
}

// DeleteSession removes a session.
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	if err := orch.DeleteSession(chi.URLParam(r, "id")); err != nil {
		h.writeChatError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, orch.State())
}

// ClearSessions removes every session.
func (h *ChatHandler) ClearSessions(w http.ResponseWriter, r *http.Request) {
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	orch.ClearAll()
	JSON(w, http.StatusOK, orch.State())
}

// SelectScene switches the selected scene and reassigns the active session.
func (h *ChatHandler) SelectScene(w http.ResponseWriter, r *http.Request) {
	var req selectSceneRequest
	if err := h.decoder.decode(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	if err := orch.SelectScene(req.SceneID); err != nil {
		h.writeChatError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, orch.State())
}

// SendMessage appends a user message to the active session and waits for the reply.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := h.decoder.decode(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	orch, release, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	defer release()
	res, err := orch.SendMessage(r.Context(), req.Content)
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *ChatHandler) orchestrator(w http.ResponseWriter, r *http.Request) (*chat.Orchestrator, func(), bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, nil, false
	}
	orch, release, err := h.workspaces.Acquire(r.Context(), userID)
	if err != nil {
		h.writeChatError(w, r, err)
		return nil, nil, false
	}
	return orch, release, true
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var replyErr *chat.ReplyError
	switch {
	case errors.Is(err, chat.ErrUnknownSession):
		Error(w, http.StatusNotFound, chat.ErrUnknownSession.Error())
	case errors.Is(err, chat.ErrUnknownScene):
		Error(w, http.StatusBadRequest, chat.ErrUnknownScene.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, chat.ErrEmptyMessage.Error())
	case errors.Is(err, chat.ErrSendInFlight):
		Error(w, http.StatusConflict, chat.ErrSendInFlight.Error())
	case errors.As(err, &replyErr):
		h.logger.Warn("Reply failed", "user_id", identity.UserIDFromContext(r.Context()), "session_id", replyErr.SessionID, "error", replyErr.Err)
		JSON(w, http.StatusBadGateway, map[string]string{
			"error":      "assistant reply failed",
			"session_id": replyErr.SessionID,
		})
	case errors.Is(err, workspace.ErrClosed):
		Error(w, http.StatusServiceUnavailable, "server is shutting down")
	default:
		h.logger.Error("Chat request failed", "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
