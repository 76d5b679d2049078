package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	sessionModel "github.com/zhouzirui/avatar-call/backend/internal/model/session"
	"github.com/zhouzirui/avatar-call/backend/internal/service/avatar"
	"github.com/zhouzirui/avatar-call/backend/internal/service/callsession"
	"github.com/zhouzirui/avatar-call/backend/internal/service/screen"
	"github.com/zhouzirui/avatar-call/backend/internal/service/tavus"
)

type fakeTavus struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeTavus) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeTavus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.mu.Unlock()

	switch r.URL.Path {
	case "/v2/personas":
		w.Write([]byte(`{"persona_id":"p1"}`))
	case "/v2/conversations":
		w.Write([]byte(`{"conversation_id":"c1","room_url":"https://x/room1"}`))
	case "/v2/conversations/c1/end":
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testServer struct {
	api *fakeTavus
	srv *httptest.Server
	reg *screen.Registry
}

func newTestServer(t *testing.T, tavusCfg config.TavusConfig) *testServer {
	t.Helper()
	api := &fakeTavus{calls: make(map[string]int)}
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	tavusCfg.BaseURL = apiSrv.URL
	tavusCfg.Timeout = 2 * time.Second
	client := tavus.NewClient(tavusCfg, nil, nil)
	svc := avatar.NewService(client, tavusCfg, config.PersonaConfig{CustomLLMBaseURL: "http://llm.local"}, nil)

	hub := callsession.NewHub(nil)
	reg := screen.NewRegistry(persona.NewMemoryStore(persona.Seed()), "custom", svc, hub, nil, nil)

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		New(reg, hub, nil).RegisterRoutes(api)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		reg.CloseAll(context.Background())
		hub.CloseAll()
		srv.Close()
	})
	return &testServer{api: api, srv: srv, reg: reg}
}

func validCredentials() config.TavusConfig {
	return config.TavusConfig{APIKey: "tavus", ElevenLabsAPIKey: "eleven", ReplicaID: "r79e1c033f"}
}

func (s *testServer) do(t *testing.T, method, path string, body string) (int, Response) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out Response
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func (s *testServer) create(t *testing.T) string {
	t.Helper()
	status, resp := s.do(t, http.MethodPost, "/api/sessions", `{"profileId":"custom"}`)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	return resp.Session.ID
}

func TestCreateReturnsWelcomeView(t *testing.T) {
	s := newTestServer(t, validCredentials())

	status, resp := s.do(t, http.MethodPost, "/api/sessions", "")
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if resp.Session.Screen != sessionModel.ScreenWelcome || resp.View.Primary == nil || resp.View.Primary.Name != "start" {
		t.Fatalf("unexpected response %+v", resp)
	}

	status, _ = s.do(t, http.MethodPost, "/api/sessions", `{"profileId":"nope"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown profile, got %d", status)
	}
}

func TestStartWithoutCredentialsIsUnavailable(t *testing.T) {
	s := newTestServer(t, config.TavusConfig{})
	id := s.create(t)

	status, resp := s.do(t, http.MethodPost, "/api/sessions/"+id+"/start", "")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if resp.View.Error == "" || resp.Session.Screen != sessionModel.ScreenWelcome {
		t.Fatalf("expected welcome view carrying the error, got %+v", resp)
	}
	if s.api.count("/v2/personas") != 0 {
		t.Fatalf("no request expected without credentials")
	}
}

func TestStartMovesToHairCheck(t *testing.T) {
	s := newTestServer(t, validCredentials())
	id := s.create(t)

	status, resp := s.do(t, http.MethodPost, "/api/sessions/"+id+"/start", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Session.Screen != sessionModel.ScreenHairCheck || resp.View.RoomURL != "https://x/room1" {
		t.Fatalf("unexpected response %+v", resp)
	}

	status, _ = s.do(t, http.MethodPost, "/api/sessions/"+id+"/start", "")
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for second start, got %d", status)
	}
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	s := newTestServer(t, validCredentials())

	for _, path := range []string{"/api/sessions/missing", "/api/sessions/missing/start"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "start") {
			method = http.MethodPost
		}
		req, _ := http.NewRequest(method, s.srv.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestDeleteTerminatesConversation(t *testing.T) {
	s := newTestServer(t, validCredentials())
	id := s.create(t)
	s.do(t, http.MethodPost, "/api/sessions/"+id+"/start", "")

	status, _ := s.do(t, http.MethodDelete, "/api/sessions/"+id, "")
	if status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	if got := s.api.count("/v2/conversations/c1/end"); got != 1 {
		t.Fatalf("expected one termination, got %d", got)
	}
	if s.reg.Len() != 0 {
		t.Fatalf("expected registry to forget the session")
	}
}

func readCommand(t *testing.T, conn *websocket.Conn) callsession.Command {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var cmd callsession.Command
	if err := conn.ReadJSON(&cmd); err != nil {
		t.Fatalf("read command: %v", err)
	}
	return cmd
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestCallFlowOverFrameSocket(t *testing.T) {
	s := newTestServer(t, validCredentials())
	id := s.create(t)
	s.do(t, http.MethodPost, "/api/sessions/"+id+"/start", "")

	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/sessions/" + id + "/frame"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial frame socket: %v", err)
	}
	defer conn.Close()

	status, resp := s.do(t, http.MethodPost, "/api/sessions/"+id+"/join", "")
	if status != http.StatusOK || resp.Session.Screen != sessionModel.ScreenCall {
		t.Fatalf("expected call screen, got %d %+v", status, resp.Session)
	}
	if cmd := readCommand(t, conn); cmd.Type != callsession.CmdJoin || cmd.URL != "https://x/room1" {
		t.Fatalf("unexpected join command %+v", cmd)
	}

	if err := conn.WriteJSON(callsession.Event{Type: callsession.EventJoinedMeeting}); err != nil {
		t.Fatalf("write event: %v", err)
	}
	waitFor(t, func() bool {
		c, err := s.reg.Get(id)
		return err == nil && c.Snapshot().Call != nil && c.Snapshot().Call.Status == sessionModel.StatusConnected
	})

	status, resp = s.do(t, http.MethodPost, "/api/sessions/"+id+"/call/audio", "")
	if status != http.StatusOK || resp.Enabled == nil || *resp.Enabled {
		t.Fatalf("expected audio disabled, got %d %+v", status, resp.Enabled)
	}
	if cmd := readCommand(t, conn); cmd.Type != callsession.CmdSetLocalAudio || cmd.Enabled == nil || *cmd.Enabled {
		t.Fatalf("unexpected audio command %+v", cmd)
	}

	s.do(t, http.MethodPost, "/api/sessions/"+id+"/leave", "")
	if cmd := readCommand(t, conn); cmd.Type != callsession.CmdLeave {
		t.Fatalf("expected leave command, got %+v", cmd)
	}
	if err := conn.WriteJSON(callsession.Event{Type: callsession.EventLeftMeeting}); err != nil {
		t.Fatalf("write event: %v", err)
	}

	waitFor(t, func() bool {
		c, err := s.reg.Get(id)
		return err == nil && c.Snapshot().Screen == sessionModel.ScreenWelcome
	})
	waitFor(t, func() bool { return s.api.count("/v2/conversations/c1/end") == 1 })
}

func TestPageDetachOnHairCheckIsReaped(t *testing.T) {
	s := newTestServer(t, validCredentials())
	id := s.create(t)
	s.do(t, http.MethodPost, "/api/sessions/"+id+"/start", "")

	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/sessions/" + id + "/frame"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial frame socket: %v", err)
	}
	if n := s.reg.Reap(context.Background(), 0); n != 0 {
		t.Fatalf("attached page must keep the session, closed %d", n)
	}

	conn.Close()
	waitFor(t, func() bool { return s.reg.Reap(context.Background(), 0) == 1 })

	if got := s.api.count("/v2/conversations/c1/end"); got != 1 {
		t.Fatalf("expected one termination request, got %d", got)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/sessions/"+id, ""); status != http.StatusNotFound {
		t.Fatalf("expected reaped session to be gone, got %d", status)
	}
}

func TestEventsStreamsSnapshots(t *testing.T) {
	s := newTestServer(t, validCredentials())
	id := s.create(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.srv.URL+"/api/sessions/"+id+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	event, data := readSSE(t, reader)
	if event != "snapshot" {
		t.Fatalf("expected snapshot event, got %q", event)
	}
	var first Response
	if err := json.Unmarshal([]byte(data), &first); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if first.Session.ID != id || first.View.Screen != sessionModel.ScreenWelcome {
		t.Fatalf("unexpected first snapshot %+v", first.Session)
	}

	go func() {
		resp, err := http.Post(s.srv.URL+"/api/sessions/"+id+"/start", "application/json", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, data = readSSE(t, reader)
		var next Response
		if err := json.Unmarshal([]byte(data), &next); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if next.Session.Screen == sessionModel.ScreenHairCheck {
			return
		}
	}
	t.Fatalf("never observed hairCheck snapshot")
}

func readSSE(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return event, data
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&config.ConfigurationError{Key: "TAVUS_API_KEY"}, http.StatusServiceUnavailable},
		{fmt.Errorf("create persona: %w", &tavus.RequestError{Op: "create persona", StatusCode: 401}), http.StatusBadGateway},
		{screen.ErrInvalidTransition, http.StatusConflict},
		{screen.ErrBusy, http.StatusConflict},
		{screen.ErrNotFound, http.StatusNotFound},
		{callsession.ErrNotJoined, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
