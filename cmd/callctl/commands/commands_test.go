package commands

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	sessionHandler "github.com/zhouzirui/avatar-call/backend/internal/handler/session"
	"github.com/zhouzirui/avatar-call/backend/internal/model/session"
	"github.com/zhouzirui/avatar-call/backend/internal/view"
	"github.com/zhouzirui/avatar-call/backend/pkg/utils"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/profiles", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"default":  "custom",
			"profiles": []map[string]any{{"id": "custom", "backend": "custom"}, {"id": "stock", "backend": "stock"}},
		})
	})
	r.Post("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		snap := session.Snapshot{ID: "s1", Screen: session.ScreenWelcome}
		utils.RespondJSON(w, http.StatusCreated, sessionHandler.Response{Session: snap, View: view.Render(snap)})
	})
	r.Post("/api/sessions/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		snap := session.Snapshot{ID: chi.URLParam(r, "id"), Screen: session.ScreenHairCheck, RoomURL: "https://x/room1"}
		utils.RespondJSON(w, http.StatusOK, sessionHandler.Response{Session: snap, View: view.Render(snap)})
	})
	r.Post("/api/sessions/{id}/end", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusConflict, "invalid screen transition")
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		jsonOutput = false
		startProfile = ""
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProfilesCommand(t *testing.T) {
	srv := newBackend(t)

	out, err := run(t, "--server", srv.URL, "profiles")
	if err != nil {
		t.Fatalf("profiles err: %v", err)
	}
	if !strings.Contains(out, "custom") || !strings.Contains(out, "Stock Persona") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestStartCommandRendersHairCheck(t *testing.T) {
	srv := newBackend(t)

	out, err := run(t, "--server", srv.URL, "start")
	if err != nil {
		t.Fatalf("start err: %v", err)
	}
	if !strings.Contains(out, "s1") || !strings.Contains(out, "https://x/room1") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEndCommandSurfacesAPIError(t *testing.T) {
	srv := newBackend(t)

	_, err := run(t, "--server", srv.URL, "end", "s1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}
	if apiErr.Message != "invalid screen transition" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}
