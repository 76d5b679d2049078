package completions

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/avatar-call/backend/internal/model/chat"
)

type fakeCompleter struct {
	deltas []string
	err    error
	last   chat.CompletionRequest
}

func (f *fakeCompleter) Provider() string { return "fake" }

func (f *fakeCompleter) Complete(_ context.Context, req chat.CompletionRequest) (chat.Completion, error) {
	f.last = req
	if f.err != nil {
		return chat.Completion{}, f.err
	}
	return chat.Completion{
		ID:     "chatcmpl-1",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []chat.Choice{{
			Message:      chat.Message{Role: chat.RoleAssistant, Content: strings.Join(f.deltas, "")},
			FinishReason: chat.FinishStop,
		}},
	}, nil
}

func (f *fakeCompleter) Stream(_ context.Context, req chat.CompletionRequest, send func(chat.Chunk) error) error {
	f.last = req
	for _, d := range f.deltas {
		if err := send(chat.Chunk{Choices: []chat.ChunkChoice{{Delta: chat.Delta{Content: d}}}}); err != nil {
			return err
		}
	}
	return f.err
}

func newServer(t *testing.T, c Completer) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	New(c, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

const userBody = `{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":"hi"}]}`

func TestCompletionNonStream(t *testing.T) {
	c := &fakeCompleter{deltas: []string{"Hello"}}
	srv := newServer(t, c)

	resp, err := http.Post(srv.URL+"/chat/completions", "application/json", strings.NewReader(userBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var completion chat.Completion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if completion.Choices[0].Message.Content != "Hello" || c.last.Model != "gpt-3.5-turbo" {
		t.Fatalf("unexpected completion %+v", completion)
	}
}

func TestCompletionNonStreamError(t *testing.T) {
	srv := newServer(t, &fakeCompleter{err: errors.New("upstream down")})

	resp, err := http.Post(srv.URL+"/chat/completions", "application/json", strings.NewReader(userBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestCompletionRejectsBadRequests(t *testing.T) {
	srv := newServer(t, &fakeCompleter{})

	for _, body := range []string{"not json", `{"model":"m","messages":[]}`} {
		resp, err := http.Post(srv.URL+"/chat/completions", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func readDataLines(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}
	return lines
}

func streamBody() string {
	return strings.Replace(userBody, `"model"`, `"stream":true,"model"`, 1)
}

func TestCompletionStreamFraming(t *testing.T) {
	srv := newServer(t, &fakeCompleter{deltas: []string{"Hel", "lo"}})

	resp, err := http.Post(srv.URL+"/chat/completions", "application/json", strings.NewReader(streamBody()))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	lines := readDataLines(t, resp)
	if len(lines) != 3 || lines[2] != "[DONE]" {
		t.Fatalf("unexpected stream %v", lines)
	}
	var chunk chat.Chunk
	if err := json.Unmarshal([]byte(lines[0]), &chunk); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if chunk.Choices[0].Delta.Content != "Hel" {
		t.Fatalf("unexpected first delta %+v", chunk)
	}
}

func TestCompletionStreamErrorBecomesContent(t *testing.T) {
	srv := newServer(t, &fakeCompleter{err: errors.New("upstream down")})

	resp, err := http.Post(srv.URL+"/chat/completions", "application/json", strings.NewReader(streamBody()))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	lines := readDataLines(t, resp)
	if len(lines) != 2 || lines[1] != "[DONE]" {
		t.Fatalf("unexpected stream %v", lines)
	}
	if !strings.Contains(lines[0], "Error: upstream down") {
		t.Fatalf("expected error delta, got %s", lines[0])
	}
}

func TestHealthAndInfo(t *testing.T) {
	srv := newServer(t, &fakeCompleter{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var health map[string]string
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "healthy" || health["timestamp"] == "" {
		t.Fatalf("unexpected health %v", health)
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var info map[string]any
	json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if info["name"] != "Custom LLM Server with RAG" || info["provider"] != "fake" {
		t.Fatalf("unexpected info %v", info)
	}
}
