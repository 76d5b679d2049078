package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/conversation"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

const maxErrorBody = 4 << 10

// Client 是 Tavus v2 接口的 HTTP 客户端。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewClient 根据配置创建客户端；metrics 与 log 可以为 nil。
func NewClient(cfg config.TavusConfig, m *metrics.Metrics, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		log:        log.Named("tavus"),
	}
}

type personaResponse struct {
	ID          string `json:"id"`
	PersonaID   string `json:"persona_id"`
	PersonaName string `json:"persona_name"`
}

// CreatePersona 创建 persona，返回的 ID 兼容 id 与 persona_id 两种字段。
func (c *Client) CreatePersona(ctx context.Context, req persona.CreateRequest) (persona.Persona, error) {
	var resp personaResponse
	if err := c.post(ctx, "personas", "create persona", "/v2/personas", req, &resp); err != nil {
		return persona.Persona{}, err
	}

	id := resp.ID
	if id == "" {
		id = resp.PersonaID
	}
	if id == "" {
		return persona.Persona{}, fmt.Errorf("create persona: response carries no id")
	}

	name := resp.PersonaName
	if name == "" {
		name = req.PersonaName
	}
	c.log.Infow("created persona", "persona_id", id, "name", name)
	return persona.Persona{ID: id, Name: name}, nil
}

// CreateConversation 创建绑定到 persona 的会话。
func (c *Client) CreateConversation(ctx context.Context, req conversation.CreateRequest) (conversation.Conversation, error) {
	var conv conversation.Conversation
	if err := c.post(ctx, "conversations", "create conversation", "/v2/conversations", req, &conv); err != nil {
		return conversation.Conversation{}, err
	}
	if conv.ID == "" {
		return conversation.Conversation{}, fmt.Errorf("create conversation: response carries no conversation_id")
	}
	if conv.PersonaID == "" {
		conv.PersonaID = req.PersonaID
	}
	c.log.Infow("created conversation", "conversation_id", conv.ID, "room_url", conv.RoomURL)
	return conv, nil
}

// EndConversation 结束会话；失败时返回 *TerminationError。
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	path := "/v2/conversations/" + conversationID + "/end"
	if err := c.post(ctx, "end", "end conversation", path, nil, nil); err != nil {
		return &TerminationError{ConversationID: conversationID, Err: err}
	}
	c.log.Infow("ended conversation", "conversation_id", conversationID)
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, op, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPIRequest(endpoint, "error", time.Since(started))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordAPIRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		reqErr := &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(data)),
		}
		c.log.Warnw("api request failed", "endpoint", endpoint, "status", resp.StatusCode, "body", reqErr.Body)
		return reqErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
