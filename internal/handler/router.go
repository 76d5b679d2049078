package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/avatar-call/backend/internal/handler/completions"
	"github.com/zhouzirui/avatar-call/backend/internal/handler/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/handler/session"
	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/avatar-call/backend/internal/middleware"
	personaModel "github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/service/screen"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
	"github.com/zhouzirui/avatar-call/backend/pkg/utils"
)

// Deps 组装 BFF 路由所需的服务。
type Deps struct {
	Profiles       personaModel.Store
	DefaultProfile string
	Sessions       *screen.Registry
	Frames         session.FrameAttacher
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Log            *logger.Logger
}

// NewRouter wires the browser-facing HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", handleHealthz)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	personaHandler := persona.New(deps.Profiles, deps.DefaultProfile)
	sessionHandler := session.New(deps.Sessions, deps.Frames, deps.Log)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
	})

	return r
}

// NewLLMRouter 自定义 LLM 服务的路由，供 persona 的 llm 层调用。
func NewLLMRouter(completer completions.Completer, allowedOrigins []string, m *metrics.Metrics, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	if m != nil {
		r.Handle("/metrics", m.Handler())
	}
	completions.New(completer, log).RegisterRoutes(r)

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
