package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	sessionModel "github.com/zhouzirui/avatar-call/backend/internal/model/session"
	"github.com/zhouzirui/avatar-call/backend/internal/service/callsession"
	"github.com/zhouzirui/avatar-call/backend/internal/service/screen"
	"github.com/zhouzirui/avatar-call/backend/internal/service/tavus"
	"github.com/zhouzirui/avatar-call/backend/internal/view"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
	"github.com/zhouzirui/avatar-call/backend/pkg/utils"
)

// FrameAttacher 把页面的 WebSocket 连接绑定到会话，Hub 实现了该接口。
type FrameAttacher interface {
	Attach(ctx context.Context, sessionID string, conn *websocket.Conn) error
}

// Handler 浏览器会话的 HTTP 处理器
type Handler struct {
	sessions *screen.Registry
	frames   FrameAttacher
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// New 创建会话处理器
func New(sessions *screen.Registry, frames FrameAttacher, log *logger.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		frames:   frames,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log.Named("http.session"),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreate)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Post("/start", h.action(func(ctx context.Context, c *screen.Controller) error { return c.Start(ctx) }))
		r.Post("/join", h.action(func(ctx context.Context, c *screen.Controller) error { return c.Join(ctx) }))
		r.Post("/end", h.action(func(ctx context.Context, c *screen.Controller) error { return c.End(ctx) }))
		r.Post("/leave", h.action(func(ctx context.Context, c *screen.Controller) error { return c.Leave(ctx) }))
		r.Post("/call/audio", h.toggle((*screen.Controller).ToggleAudio))
		r.Post("/call/video", h.toggle((*screen.Controller).ToggleVideo))
		r.Get("/events", h.handleEvents)
		r.Get("/frame", h.handleFrame)
	})
}

type createRequest struct {
	ProfileID string `json:"profileId"`
}

// Response 会话接口的统一响应体。
type Response struct {
	Session sessionModel.Snapshot `json:"session"`
	View    view.View             `json:"view"`
	Enabled *bool                 `json:"enabled,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func newResponse(c *screen.Controller) Response {
	snap := c.Snapshot()
	return Response{Session: snap, View: view.Render(snap)}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.sessions.Create(r.Context(), req.ProfileID)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, newResponse(c))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, newResponse(c))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Remove(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) action(run func(context.Context, *screen.Controller) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := h.lookup(w, r)
		if !ok {
			return
		}
		if err := run(r.Context(), c); err != nil {
			h.respondFailure(w, c, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, newResponse(c))
	}
}

func (h *Handler) toggle(run func(*screen.Controller) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := h.lookup(w, r)
		if !ok {
			return
		}
		enabled, err := run(c)
		if err != nil {
			h.respondFailure(w, c, err)
			return
		}
		resp := newResponse(c)
		resp.Enabled = &enabled
		utils.RespondJSON(w, http.StatusOK, resp)
	}
}

// handleEvents 以 SSE 推送会话快照，直到客户端断开或会话关闭。
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := c.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]string{"id": c.ID()})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "snapshot", Response{Session: snap, View: view.Render(snap)}); err != nil {
				h.log.Debugw("event stream write failed", "session_id", c.ID(), "error", err)
				return
			}
		}
	}
}

// handleFrame 升级为 WebSocket，由页面中的通话组件接收指令并回报事件。
func (h *Handler) handleFrame(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}

	release := c.Watch()
	defer release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "session_id", c.ID(), "error", err)
		return
	}
	if err := h.frames.Attach(r.Context(), c.ID(), conn); err != nil {
		h.log.Debugw("call page connection ended", "session_id", c.ID(), "error", err)
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*screen.Controller, bool) {
	c, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return nil, false
	}
	return c, true
}

func (h *Handler) respondFailure(w http.ResponseWriter, c *screen.Controller, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warnw("session action failed", "session_id", c.ID(), "status", status, "error", err)
	}
	resp := newResponse(c)
	resp.Error = err.Error()
	utils.RespondJSON(w, status, resp)
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var cfgErr *config.ConfigurationError
	var reqErr *tavus.RequestError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &reqErr):
		return http.StatusBadGateway
	case errors.Is(err, screen.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, screen.ErrUnknownProfile):
		return http.StatusBadRequest
	case errors.Is(err, screen.ErrClosed):
		return http.StatusGone
	case errors.Is(err, screen.ErrInvalidTransition),
		errors.Is(err, screen.ErrBusy),
		errors.Is(err, callsession.ErrNotJoined),
		errors.Is(err, callsession.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
