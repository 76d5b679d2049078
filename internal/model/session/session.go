package session

import (
	"time"

	"github.com/zhouzirui/avatar-call/backend/internal/model/conversation"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
)

// Screen 页面所处的界面。
type Screen string

const (
	ScreenWelcome   Screen = "welcome"
	ScreenHairCheck Screen = "hairCheck"
	ScreenCall      Screen = "call"
)

// ConnectionStatus 通话组件的连接状态，disconnected 为终态。
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// MediaState 本地音视频开关。
type MediaState struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// CallState 通话中的组件状态，仅在 call 界面存在。
type CallState struct {
	Status ConnectionStatus `json:"status"`
	Media  MediaState       `json:"media"`
	Error  string           `json:"error,omitempty"`
}

// Snapshot 控制器状态的只读副本，视图由它渲染。
type Snapshot struct {
	ID           string                     `json:"id"`
	ProfileID    string                     `json:"profileId"`
	Screen       Screen                     `json:"screen"`
	Loading      bool                       `json:"loading"`
	Error        string                     `json:"error,omitempty"`
	Conversation *conversation.Conversation `json:"conversation,omitempty"`
	RoomURL      string                     `json:"roomUrl,omitempty"`
	Backend      persona.BackendMode        `json:"backend"`
	Call         *CallState                 `json:"call,omitempty"`
	UpdatedAt    time.Time                  `json:"updatedAt"`
}
