package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/itchyny/gojq"

	"github.com/zhouzirui/avatar-call/backend/internal/model/knowledge"
)

const maxExpressionLen = 256

func weatherHandler(kb *knowledge.Base) Handler {
	return func(_ context.Context, args map[string]any) (map[string]any, error) {
		location, err := stringArg(args, "location", true)
		if err != nil {
			return nil, err
		}
		unit, err := stringArg(args, "unit", false)
		if err != nil {
			return nil, err
		}

		w, ok := kb.Weather(location)
		if !ok {
			return map[string]any{
				"location":            location,
				"error":               "Weather data not available for this location",
				"available_locations": kb.Locations(),
			}, nil
		}

		temp, symbol := w.Temp, "°C"
		if strings.EqualFold(unit, "fahrenheit") {
			temp = int(math.Round(float64(w.Temp)*9/5 + 32))
			symbol = "°F"
		}

		return map[string]any{
			"location":    location,
			"temperature": fmt.Sprintf("%d%s", temp, symbol),
			"condition":   w.Condition,
			"humidity":    fmt.Sprintf("%d%%", w.Humidity),
			"timestamp":   time.Now().Format(time.RFC3339),
		}, nil
	}
}

func companyInfoHandler(kb *knowledge.Base) Handler {
	return func(_ context.Context, args map[string]any) (map[string]any, error) {
		query, err := stringArg(args, "query", true)
		if err != nil {
			return nil, err
		}

		info, err := kb.Search(query)
		if errors.Is(err, knowledge.ErrNoMatch) {
			info = "No relevant information found in knowledge base."
		} else if err != nil {
			return nil, err
		}

		return map[string]any{
			"query":       query,
			"information": info,
			"source":      "Company Knowledge Base",
		}, nil
	}
}

// calculateHandler 只保留数字与四则运算符后交给 jq 求值。
func calculateHandler(ctx context.Context, args map[string]any) (map[string]any, error) {
	expression, err := stringArg(args, "expression", true)
	if err != nil {
		return nil, err
	}

	result, err := Evaluate(ctx, expression)
	if err != nil {
		return map[string]any{
			"expression": expression,
			"error":      err.Error(),
			"success":    false,
		}, nil
	}
	return map[string]any{
		"expression": expression,
		"result":     result,
		"success":    true,
	}, nil
}

// Sanitize drops every character that is not a digit, an arithmetic operator,
// a dot, a parenthesis or a space.
func Sanitize(expression string) string {
	var sb strings.Builder
	for _, r := range expression {
		if strings.ContainsRune("0123456789+-*/.() ", r) {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

// Evaluate 计算经过过滤的算术表达式。
func Evaluate(ctx context.Context, expression string) (any, error) {
	sanitized := Sanitize(expression)
	if sanitized == "" {
		return nil, errors.New("empty expression")
	}
	if len(sanitized) > maxExpressionLen {
		return nil, fmt.Errorf("expression longer than %d characters", maxExpressionLen)
	}
	// jq 中 "//" 是取备选值运算符，"**" 不是幂运算。
	if strings.Contains(sanitized, "//") {
		return nil, errors.New("floor division (//) is not supported")
	}
	if strings.Contains(sanitized, "**") {
		return nil, errors.New("exponentiation (**) is not supported")
	}

	query, err := gojq.Parse(sanitized)
	if err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}

	iter := query.RunWithContext(ctx, nil)
	v, ok := iter.Next()
	if !ok {
		return nil, errors.New("expression returned no result")
	}
	if err, ok := v.(error); ok {
		return nil, err
	}

	switch n := v.(type) {
	case int, float64, *big.Int:
		return n, nil
	default:
		return nil, fmt.Errorf("expression did not evaluate to a number")
	}
}
