package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/knowledge"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

// Handler 执行一个工具调用，返回可序列化为 JSON 的结果。
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Registry maps tool names to their declarations and handlers.
type Registry struct {
	mu       sync.RWMutex
	decls    []tool.Declaration
	handlers map[string]Handler
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewRegistry 创建注册表并注册内置的三个工具。
func NewRegistry(kb *knowledge.Base, m *metrics.Metrics, log *logger.Logger) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		metrics:  m,
		log:      log.Named("tools"),
	}

	catalog := tool.Catalog()
	builtins := map[string]Handler{
		tool.GetWeather:        weatherHandler(kb),
		tool.SearchCompanyInfo: companyInfoHandler(kb),
		tool.Calculate:         calculateHandler,
	}
	for _, decl := range catalog {
		r.Register(decl, builtins[decl.Function.Name])
	}
	return r
}

// Register 注册或覆盖一个工具。
func (r *Registry) Register(decl tool.Declaration, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := decl.Function.Name
	if _, exists := r.handlers[name]; !exists {
		r.decls = append(r.decls, decl)
	} else {
		for i := range r.decls {
			if r.decls[i].Function.Name == name {
				r.decls[i] = decl
			}
		}
	}
	r.handlers[name] = handler
}

// Declarations 返回所有已注册工具的声明。
func (r *Registry) Declarations() []tool.Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]tool.Declaration(nil), r.decls...)
}

// Execute runs the named tool with JSON-encoded arguments and returns the
// JSON content of the tool message. Failures are encoded in the content as
// {"error": ..., "success": false}; Execute itself never fails.
func (r *Registry) Execute(ctx context.Context, name, arguments string) string {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok || handler == nil {
		r.metrics.RecordToolCall(name, "unknown")
		return encodeFailure(fmt.Sprintf("Unknown function: %s", name))
	}

	args := map[string]any{}
	if trimmed := strings.TrimSpace(arguments); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			r.metrics.RecordToolCall(name, "error")
			return encodeFailure(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	result, err := handler(ctx, args)
	if err != nil {
		r.log.Warnw("tool call failed", "tool", name, "error", err)
		r.metrics.RecordToolCall(name, "error")
		return encodeFailure(err.Error())
	}

	raw, err := json.Marshal(result)
	if err != nil {
		r.metrics.RecordToolCall(name, "error")
		return encodeFailure(err.Error())
	}
	r.metrics.RecordToolCall(name, "ok")
	r.log.Debugw("tool call", "tool", name, "result", string(raw))
	return string(raw)
}

func encodeFailure(message string) string {
	raw, _ := json.Marshal(map[string]any{"error": message, "success": false})
	return string(raw)
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required argument: %s", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}
