package callsession

import (
	"context"
	"errors"
	"fmt"
)

// 发送给通话组件的指令类型。
const (
	CmdJoin          = "join"
	CmdSetLocalAudio = "setLocalAudio"
	CmdSetLocalVideo = "setLocalVideo"
	CmdLeave         = "leave"
	CmdDestroy       = "destroy"
)

// 通话组件上报的事件类型。
const (
	EventJoinedMeeting      = "joined-meeting"
	EventLeftMeeting        = "left-meeting"
	EventError              = "error"
	EventParticipantUpdated = "participant-updated"
	// EventDetached is emitted by the hub when the page hosting the widget goes away.
	EventDetached = "detached"
)

var (
	// ErrSessionClosed 会话已断开或已销毁。
	ErrSessionClosed = errors.New("call session closed")
	// ErrNotJoined 尚未创建通话组件。
	ErrNotJoined = errors.New("call session has not joined")
	// ErrFrameDestroyed 通话组件已被销毁。
	ErrFrameDestroyed = errors.New("call frame destroyed")
)

// Command 一条发往通话组件的指令。
type Command struct {
	Type    string `json:"type"`
	URL     string `json:"url,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Event 一条来自通话组件的事件。
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Audio   *bool  `json:"audio,omitempty"`
	Video   *bool  `json:"video,omitempty"`
}

// Frame is the embedded call widget. Only a Session touches its frame.
type Frame interface {
	Send(cmd Command) error
	Events() <-chan Event
	Destroy()
}

// FrameFactory creates the frame a session drives.
type FrameFactory func(ctx context.Context) (Frame, error)

// WidgetError 通话组件上报的错误，只用于状态展示。
type WidgetError struct {
	Message string
}

func (e *WidgetError) Error() string {
	return fmt.Sprintf("call widget error: %s", e.Message)
}

func boolPtr(v bool) *bool {
	return &v
}
