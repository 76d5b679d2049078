package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
)

// ArkBackend 通过 eino 的火山方舟模型生成回复。
type ArkBackend struct {
	chatModel model.BaseChatModel
}

// NewArkBackend 使用方舟配置创建后端。
func NewArkBackend(ctx context.Context, cfg config.AIConfig) (*ArkBackend, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &ArkBackend{chatModel: chatModel}, nil
}

// NewArkBackendWithModel wraps an existing chat model.
func NewArkBackendWithModel(chatModel model.BaseChatModel) *ArkBackend {
	return &ArkBackend{chatModel: chatModel}
}

func (b *ArkBackend) Name() string { return "ark" }

func (b *ArkBackend) Generate(ctx context.Context, messages []*schema.Message, tools []tool.Declaration, opts Options) (*schema.Message, error) {
	return b.chatModel.Generate(ctx, messages, arkOptions(tools, opts)...)
}

func (b *ArkBackend) Stream(ctx context.Context, messages []*schema.Message, tools []tool.Declaration, opts Options) (*schema.StreamReader[*schema.Message], error) {
	return b.chatModel.Stream(ctx, messages, arkOptions(tools, opts)...)
}

// arkOptions 请求中的 model 字段是 OpenAI 模型名，方舟端点沿用配置中的模型。
func arkOptions(tools []tool.Declaration, opts Options) []model.Option {
	var out []model.Option
	if infos := toToolInfos(tools); len(infos) > 0 {
		out = append(out, model.WithTools(infos))
	}
	if opts.Temperature != nil {
		out = append(out, model.WithTemperature(float32(*opts.Temperature)))
	}
	if opts.MaxTokens != nil {
		out = append(out, model.WithMaxTokens(*opts.MaxTokens))
	}
	return out
}
