package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/chat"
	personaModel "github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/service/avatar"
	"github.com/zhouzirui/avatar-call/backend/internal/service/callsession"
	"github.com/zhouzirui/avatar-call/backend/internal/service/screen"
	"github.com/zhouzirui/avatar-call/backend/internal/service/tavus"
)

func newTestRouter(t *testing.T) (http.Handler, *metrics.Metrics) {
	t.Helper()
	m := metrics.New("test")
	profiles := personaModel.NewMemoryStore(personaModel.Seed())
	tavusCfg := config.TavusConfig{BaseURL: "http://127.0.0.1:0"}
	svc := avatar.NewService(tavus.NewClient(tavusCfg, m, nil), tavusCfg, config.PersonaConfig{}, nil)
	hub := callsession.NewHub(nil)
	reg := screen.NewRegistry(profiles, "custom", svc, hub, m, nil)
	t.Cleanup(func() { reg.CloseAll(context.Background()) })

	return NewRouter(Deps{
		Profiles:       profiles,
		DefaultProfile: "custom",
		Sessions:       reg,
		Frames:         hub,
		AllowedOrigins: []string{"http://localhost:5173"},
		Metrics:        m,
	}), m
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from session create, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "test_sessions_active 1") {
		t.Fatalf("expected active session gauge in metrics, got %d\n%s", rec.Code, rec.Body.String())
	}
}

func TestRouterListsProfiles(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"custom"`) {
		t.Fatalf("unexpected profiles response %d %s", rec.Code, rec.Body.String())
	}
}

type stubCompleter struct{}

func (stubCompleter) Provider() string { return "stub" }

func (stubCompleter) Complete(context.Context, chat.CompletionRequest) (chat.Completion, error) {
	return chat.Completion{Object: "chat.completion"}, nil
}

func (stubCompleter) Stream(context.Context, chat.CompletionRequest, func(chat.Chunk) error) error {
	return nil
}

func TestLLMRouterHealth(t *testing.T) {
	r := NewLLMRouter(stubCompleter{}, []string{"http://persona.local"}, nil, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodOptions, "/chat/completions", nil)
	req.Header.Set("Origin", "http://persona.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "http://persona.local" {
		t.Fatalf("unexpected preflight response %d %v", rec.Code, rec.Header())
	}
}

func TestRouterAppliesAllowedOrigins(t *testing.T) {
	r, _ := newTestRouter(t)

	for origin, want := range map[string]string{
		"http://localhost:5173":    "http://localhost:5173",
		"https://evil.example.com": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %s: expected allow origin %q, got %q", origin, want, got)
		}
	}
}
