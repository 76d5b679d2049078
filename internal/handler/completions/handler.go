package completions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/avatar-call/backend/internal/model/chat"
	"github.com/zhouzirui/avatar-call/backend/internal/service/llm"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
	"github.com/zhouzirui/avatar-call/backend/pkg/utils"
)

// Completer 补全服务，llm.Service 实现了该接口。
type Completer interface {
	Provider() string
	Complete(ctx context.Context, req chat.CompletionRequest) (chat.Completion, error)
	Stream(ctx context.Context, req chat.CompletionRequest, send func(chat.Chunk) error) error
}

// Handler serves the OpenAI-compatible chat completions endpoint.
type Handler struct {
	completer Completer
	log       *logger.Logger
}

// New creates a completions handler
func New(completer Completer, log *logger.Logger) *Handler {
	return &Handler{
		completer: completer,
		log:       log.Named("http.completions"),
	}
}

// RegisterRoutes 注册补全服务的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleInfo)
	r.Get("/health", h.handleHealth)
	r.Post("/chat/completions", h.handleCompletions)
	r.Post("/v1/chat/completions", h.handleCompletions)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"name":     "Custom LLM Server with RAG",
		"version":  "1.0.0",
		"provider": h.completer.Provider(),
		"features": []string{"RAG", "Tool Calling", "OpenAI Compatible"},
		"endpoints": map[string]string{
			"chat":   "/chat/completions",
			"health": "/health",
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req chat.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		utils.RespondError(w, http.StatusBadRequest, llm.ErrNoMessages.Error())
		return
	}

	if req.Stream {
		h.stream(w, r, req)
		return
	}

	completion, err := h.completer.Complete(r.Context(), req)
	if err != nil {
		h.log.Errorw("completion failed", "model", req.Model, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, llm.ErrNoMessages) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, completion)
}

// stream 以 SSE 输出增量，出错时把错误作为一段内容发送，始终以 [DONE] 结束。
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req chat.CompletionRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	clientGone := false
	err := h.completer.Stream(r.Context(), req, func(chunk chat.Chunk) error {
		if err := utils.SendSSEChunk(w, flusher, chunk); err != nil {
			clientGone = true
			return err
		}
		return nil
	})
	if clientGone {
		h.log.Debugw("client went away during stream", "error", err)
		return
	}
	if err != nil {
		h.log.Errorw("stream completion failed", "model", req.Model, "error", err)
		_ = utils.SendSSEChunk(w, flusher, map[string]any{
			"choices": []map[string]any{{
				"delta": map[string]string{"content": fmt.Sprintf("Error: %v", err)},
			}},
		})
	}
	_ = utils.SendSSEDone(w, flusher)
}
