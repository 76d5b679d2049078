package tavus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/model/conversation"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.TavusConfig{APIKey: "secret", BaseURL: srv.URL, Timeout: time.Second}, nil, nil)
}

func TestCreatePersonaSendsKeyAndPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/personas" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("expected api key header, got %q", got)
		}

		var body persona.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.PersonaName != "Bot" || body.Layers.STT == nil || body.Layers.STT.STTEngine != "tavus-advanced" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"persona_id":"p1","persona_name":"Bot"}`))
	})

	p, err := client.CreatePersona(context.Background(), persona.CreateRequest{
		PersonaName: "Bot",
		Layers:      persona.Layers{STT: &persona.STTLayer{STTEngine: "tavus-advanced"}},
	})
	if err != nil {
		t.Fatalf("CreatePersona err: %v", err)
	}
	if p.ID != "p1" || p.Name != "Bot" {
		t.Fatalf("unexpected persona %+v", p)
	}
}

func TestCreatePersonaAcceptsIDField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"p1"}`))
	})

	p, err := client.CreatePersona(context.Background(), persona.CreateRequest{PersonaName: "Bot"})
	if err != nil {
		t.Fatalf("CreatePersona err: %v", err)
	}
	if p.ID != "p1" {
		t.Fatalf("expected p1, got %s", p.ID)
	}
}

func TestCreateConversationRequestError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid persona"}`))
	})

	_, err := client.CreateConversation(context.Background(), conversation.CreateRequest{PersonaID: "p1"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusBadRequest || reqErr.Body != `{"message":"invalid persona"}` {
		t.Fatalf("unexpected request error %+v", reqErr)
	}
	if reqErr.Error() != `failed to create conversation: 400 Bad Request - {"message":"invalid persona"}` {
		t.Fatalf("unexpected message %q", reqErr.Error())
	}
}

func TestCreateConversationDecodesURLs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body conversation.CreateRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.PersonaID != "p1" || body.Properties.MaxCallDuration != 1800 {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write([]byte(`{"conversation_id":"c1","room_url":"https://x/room1","conversation_url":"https://x/conv1","status":"active"}`))
	})

	conv, err := client.CreateConversation(context.Background(), conversation.CreateRequest{
		PersonaID:  "p1",
		Properties: conversation.DefaultProperties(),
	})
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}
	if conv.ID != "c1" || conv.RoomURL != "https://x/room1" || conv.JoinURL() != "https://x/conv1" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if conv.PersonaID != "p1" {
		t.Fatalf("expected persona id carried over, got %q", conv.PersonaID)
	}
}

func TestEndConversationWrapsFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/conversations/c1/end" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.EndConversation(context.Background(), "c1")
	var termErr *TerminationError
	if !errors.As(err, &termErr) || termErr.ConversationID != "c1" {
		t.Fatalf("expected TerminationError, got %v", err)
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected wrapped RequestError, got %v", err)
	}
}
