package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sessionHandler "github.com/zhouzirui/avatar-call/backend/internal/handler/session"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
)

// client 调用 BFF 的 HTTP 接口。
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError is a non-success response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

type profilesResponse struct {
	Default  string            `json:"default"`
	Profiles []persona.Profile `json:"profiles"`
}

func (c *client) profiles(ctx context.Context) (profilesResponse, error) {
	var out profilesResponse
	err := c.do(ctx, http.MethodGet, "/api/profiles", nil, &out)
	return out, err
}

func (c *client) tools(ctx context.Context) ([]tool.Declaration, error) {
	var out struct {
		Tools []tool.Declaration `json:"tools"`
	}
	err := c.do(ctx, http.MethodGet, "/api/tools", nil, &out)
	return out.Tools, err
}

func (c *client) create(ctx context.Context, profileID string) (sessionHandler.Response, error) {
	var out sessionHandler.Response
	err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"profileId": profileID}, &out)
	return out, err
}

func (c *client) get(ctx context.Context, id string) (sessionHandler.Response, error) {
	var out sessionHandler.Response
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+id, nil, &out)
	return out, err
}

func (c *client) action(ctx context.Context, id, action string) (sessionHandler.Response, error) {
	var out sessionHandler.Response
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/"+action, nil, &out)
	return out, err
}

func (c *client) remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+id, nil, nil)
}

// watch 读取会话的 SSE 快照流，直到服务端关闭或 ctx 结束。
func (c *client) watch(ctx context.Context, id string, fn func(sessionHandler.Response) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sessions/"+id+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event == "closed" {
				return nil
			}
			var snap sessionHandler.Response
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			if err := fn(snap); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
