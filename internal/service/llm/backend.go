package llm

import (
	"context"
	"slices"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/avatar-call/backend/internal/model/chat"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
)

// Options 单次请求的生成参数，零值表示使用上游默认值。
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// Backend is an upstream chat model. Messages and replies use eino's schema
// types; tool declarations are passed through in their OpenAI shape and each
// backend converts them.
type Backend interface {
	Name() string
	Generate(ctx context.Context, messages []*schema.Message, tools []tool.Declaration, opts Options) (*schema.Message, error)
	Stream(ctx context.Context, messages []*schema.Message, tools []tool.Declaration, opts Options) (*schema.StreamReader[*schema.Message], error)
}

// toSchemaMessages 将 OpenAI 兼容的消息转换为 eino 消息。
func toSchemaMessages(messages []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		msg := &schema.Message{
			Role:       schema.RoleType(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == chat.RoleTool {
			msg.ToolName = m.Name
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				Index: tc.Index,
				ID:    tc.ID,
				Type:  tc.Type,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

// fromSchemaMessage converts a reply back into the wire shape.
func fromSchemaMessage(msg *schema.Message) chat.Message {
	out := chat.Message{Role: chat.RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, chat.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: chat.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

// toToolInfos 把工具声明转换为 eino 的 ToolInfo，仅支持扁平参数。
func toToolInfos(decls []tool.Declaration) []*schema.ToolInfo {
	if len(decls) == 0 {
		return nil
	}
	infos := make([]*schema.ToolInfo, 0, len(decls))
	for _, decl := range decls {
		info := &schema.ToolInfo{
			Name: decl.Function.Name,
			Desc: decl.Function.Description,
		}
		if p := decl.Function.Parameters; p != nil && len(p.Properties) > 0 {
			params := make(map[string]*schema.ParameterInfo, len(p.Properties))
			for name, prop := range p.Properties {
				param := &schema.ParameterInfo{
					Type:     schema.DataType(prop.Type),
					Desc:     prop.Description,
					Required: slices.Contains(p.Required, name),
				}
				for _, e := range prop.Enum {
					if s, ok := e.(string); ok {
						param.Enum = append(param.Enum, s)
					}
				}
				params[name] = param
			}
			info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
		}
		infos = append(infos, info)
	}
	return infos
}
