package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/chat"
	"github.com/zhouzirui/avatar-call/backend/internal/model/knowledge"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
	"github.com/zhouzirui/avatar-call/backend/internal/service/tools"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

const defaultStreamTemperature = 0.7

// ErrNoMessages is returned when a request carries no conversation.
var ErrNoMessages = errors.New("messages must not be empty")

// Service answers chat completions with knowledge-base context and local tool
// execution.
type Service struct {
	backend   Backend
	kb        *knowledge.Base
	tools     *tools.Registry
	maxRounds int
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewService 创建补全服务，maxRounds 小于 1 时按 1 处理。
func NewService(backend Backend, kb *knowledge.Base, registry *tools.Registry, maxRounds int, m *metrics.Metrics, log *logger.Logger) *Service {
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &Service{
		backend:   backend,
		kb:        kb,
		tools:     registry,
		maxRounds: maxRounds,
		metrics:   m,
		log:       log.Named("llm"),
	}
}

// Provider 返回上游后端名称。
func (s *Service) Provider() string {
	return s.backend.Name()
}

// Complete runs the tool loop and returns the final assistant message.
func (s *Service) Complete(ctx context.Context, req chat.CompletionRequest) (chat.Completion, error) {
	msgs, decls, opts, err := s.prepare(req)
	if err != nil {
		return chat.Completion{}, err
	}

	var reply *schema.Message
	for round := 0; ; round++ {
		roundTools := decls
		if round >= s.maxRounds {
			roundTools = nil
		}

		reply, err = s.backend.Generate(ctx, msgs, roundTools, opts)
		if err != nil {
			s.metrics.RecordCompletion(s.backend.Name(), false, "error")
			return chat.Completion{}, fmt.Errorf("failed to generate completion: %w", err)
		}
		if len(reply.ToolCalls) == 0 || round >= s.maxRounds {
			break
		}
		msgs = s.runTools(ctx, msgs, reply)
	}

	s.metrics.RecordCompletion(s.backend.Name(), false, "ok")
	completion := chat.Completion{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chat.Choice{{
			Index:        0,
			Message:      fromSchemaMessage(reply),
			FinishReason: chat.FinishStop,
		}},
	}
	if meta := reply.ResponseMeta; meta != nil {
		if meta.FinishReason != "" && meta.FinishReason != chat.FinishToolCalls {
			completion.Choices[0].FinishReason = meta.FinishReason
		}
		if u := meta.Usage; u != nil {
			completion.Usage = &chat.Usage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
	}
	return completion, nil
}

// Stream runs the tool loop and hands every content delta to send as it
// arrives. Tool rounds are resolved server side, so the caller only sees
// assistant text followed by a final chunk with finish_reason "stop".
func (s *Service) Stream(ctx context.Context, req chat.CompletionRequest, send func(chat.Chunk) error) error {
	msgs, decls, opts, err := s.prepare(req)
	if err != nil {
		return err
	}
	if opts.Temperature == nil {
		t := defaultStreamTemperature
		opts.Temperature = &t
	}

	id := newCompletionID()
	created := time.Now().Unix()
	chunk := func(delta chat.Delta, finish *string) chat.Chunk {
		return chat.Chunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []chat.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
	}

	if err := send(chunk(chat.Delta{Role: chat.RoleAssistant}, nil)); err != nil {
		return err
	}

	for round := 0; ; round++ {
		roundTools := decls
		if round >= s.maxRounds {
			roundTools = nil
		}

		reply, err := s.streamRound(ctx, msgs, roundTools, opts, func(content string) error {
			return send(chunk(chat.Delta{Content: content}, nil))
		})
		if err != nil {
			s.metrics.RecordCompletion(s.backend.Name(), true, "error")
			return err
		}
		if reply == nil || len(reply.ToolCalls) == 0 || round >= s.maxRounds {
			break
		}
		msgs = s.runTools(ctx, msgs, reply)
	}

	s.metrics.RecordCompletion(s.backend.Name(), true, "ok")
	stop := chat.FinishStop
	return send(chunk(chat.Delta{}, &stop))
}

// streamRound 消费一轮流式输出，并合并为完整消息。
func (s *Service) streamRound(ctx context.Context, msgs []*schema.Message, decls []tool.Declaration, opts Options, onContent func(string) error) (*schema.Message, error) {
	sr, err := s.backend.Stream(ctx, msgs, decls, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to stream completion: %w", err)
	}
	defer sr.Close()

	var parts []*schema.Message
	for {
		part, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to receive completion chunk: %w", err)
		}
		if part == nil {
			continue
		}
		parts = append(parts, part)
		if part.Content != "" {
			if err := onContent(part.Content); err != nil {
				return nil, err
			}
		}
	}

	if len(parts) == 0 {
		return nil, nil
	}
	merged, err := schema.ConcatMessages(parts)
	if err != nil {
		return nil, fmt.Errorf("failed to merge completion chunks: %w", err)
	}
	return merged, nil
}

// prepare 注入知识库系统提示并确定本次可用的工具。
func (s *Service) prepare(req chat.CompletionRequest) ([]*schema.Message, []tool.Declaration, Options, error) {
	if len(req.Messages) == 0 {
		return nil, nil, Options{}, ErrNoMessages
	}

	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	msgs = append(msgs, schema.SystemMessage(s.kb.SystemPrompt()))
	msgs = append(msgs, toSchemaMessages(req.Messages)...)

	decls := req.Tools
	if len(decls) == 0 {
		decls = s.tools.Declarations()
	}

	return msgs, decls, Options{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, nil
}

// runTools executes every tool call of reply and appends the assistant turn
// and the tool results to msgs.
func (s *Service) runTools(ctx context.Context, msgs []*schema.Message, reply *schema.Message) []*schema.Message {
	assistant := &schema.Message{
		Role:      schema.Assistant,
		Content:   reply.Content,
		ToolCalls: make([]schema.ToolCall, 0, len(reply.ToolCalls)),
	}
	for _, tc := range reply.ToolCalls {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		if tc.Type == "" {
			tc.Type = "function"
		}
		assistant.ToolCalls = append(assistant.ToolCalls, tc)
	}
	msgs = append(msgs, assistant)

	for _, tc := range assistant.ToolCalls {
		content := s.tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
		s.log.Debugw("tool result", "tool", tc.Function.Name, "call_id", tc.ID)
		result := schema.ToolMessage(content, tc.ID)
		result.ToolName = tc.Function.Name
		msgs = append(msgs, result)
	}
	return msgs
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}
