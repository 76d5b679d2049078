package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
	"github.com/zhouzirui/avatar-call/backend/pkg/utils"
)

// Handler persona模板的HTTP处理器
type Handler struct {
	profiles       persona.Store
	defaultProfile string
}

// New 创建persona处理器
func New(profiles persona.Store, defaultProfile string) *Handler {
	return &Handler{
		profiles:       profiles,
		defaultProfile: defaultProfile,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles", h.handleListProfiles)
	r.Get("/tools", h.handleListTools)
}

// handleListProfiles 列出所有persona模板
func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"default":  h.defaultProfile,
		"profiles": h.profiles.List(),
	})
}

// handleListTools 列出自定义 LLM 层声明的工具
func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"tools": tool.Catalog(),
	})
}
