package tavus

import "fmt"

// RequestError 表示视频 API 返回了非 2xx 状态。
type RequestError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("failed to %s: %d %s - %s", e.Op, e.StatusCode, e.Status, e.Body)
}

// TerminationError wraps a failed best-effort conversation termination.
// Callers log it and move on.
type TerminationError struct {
	ConversationID string
	Err            error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("failed to end conversation %s: %v", e.ConversationID, e.Err)
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}
