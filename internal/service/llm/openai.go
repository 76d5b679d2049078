package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
)

// OpenAIBackend forwards completions to an OpenAI-compatible API.
type OpenAIBackend struct {
	client       openai.Client
	defaultModel string
}

// NewOpenAIBackend 创建 OpenAI 后端，未配置 base url 时使用官方端点。
func NewOpenAIBackend(cfg config.LLMServerConfig) *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return &OpenAIBackend{
		client:       openai.NewClient(opts...),
		defaultModel: cfg.OpenAIModel,
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Generate(ctx context.Context, messages []*schema.Message, tools []tool.Declaration, opts Options) (*schema.Message, error) {
	params, err := b.params(messages, tools, opts)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices")
	}

	choice := resp.Choices[0]
	msg := &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: choice.FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
				TotalTokens:      int(resp.Usage.TotalTokens),
			},
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg, nil
}

func (b *OpenAIBackend) Stream(ctx context.Context, messages []*schema.Message, tools []tool.Declaration, opts Options) (*schema.StreamReader[*schema.Message], error) {
	params, err := b.params(messages, tools, opts)
	if err != nil {
		return nil, err
	}

	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			msg := &schema.Message{Role: schema.Assistant, Content: choice.Delta.Content}
			for _, tc := range choice.Delta.ToolCalls {
				index := int(tc.Index)
				msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
					Index: &index,
					ID:    tc.ID,
					Type:  tc.Type,
					Function: schema.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			if choice.FinishReason != "" {
				msg.ResponseMeta = &schema.ResponseMeta{FinishReason: choice.FinishReason}
			}
			if closed := sw.Send(msg, nil); closed {
				return
			}
		}
		if err := stream.Err(); err != nil {
			sw.Send(nil, err)
		}
	}()
	return sr, nil
}

func (b *OpenAIBackend) params(messages []*schema.Message, tools []tool.Declaration, opts Options) (openai.ChatCompletionNewParams, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = b.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		mp, err := toOpenAIMessage(m)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.Messages = append(params.Messages, mp)
	}
	if opts.Temperature != nil {
		params.Temperature = param.NewOpt(*opts.Temperature)
	}
	if opts.MaxTokens != nil {
		params.MaxCompletionTokens = param.NewOpt(int64(*opts.MaxTokens))
	}
	for _, decl := range tools {
		fn := openai.FunctionDefinitionParam{
			Name:        decl.Function.Name,
			Description: param.NewOpt(decl.Function.Description),
		}
		if decl.Function.Parameters != nil {
			raw, err := json.Marshal(decl.Function.Parameters)
			if err != nil {
				return openai.ChatCompletionNewParams{}, fmt.Errorf("encode parameters of %s: %w", decl.Function.Name, err)
			}
			var fp openai.FunctionParameters
			if err := json.Unmarshal(raw, &fp); err != nil {
				return openai.ChatCompletionNewParams{}, fmt.Errorf("decode parameters of %s: %w", decl.Function.Name, err)
			}
			fn.Parameters = fp
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{Function: fn})
	}
	return params, nil
}

func toOpenAIMessage(m *schema.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case schema.System:
		return openai.SystemMessage(m.Content), nil
	case schema.User:
		return openai.UserMessage(m.Content), nil
	case schema.Tool:
		return openai.ToolMessage(m.Content, m.ToolCallID), nil
	case schema.Assistant:
		if len(m.ToolCalls) == 0 {
			return openai.AssistantMessage(m.Content), nil
		}
		assistant := &openai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(m.Content),
			}
		}
		for _, tc := range m.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}, nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported message role: %s", m.Role)
	}
}
