package view

import (
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/model/session"
)

// Action names accepted by the session routes.
const (
	ActionStart       = "start"
	ActionJoin        = "join"
	ActionCancel      = "end"
	ActionToggleAudio = "audio"
	ActionToggleVideo = "video"
	ActionLeave       = "leave"
)

// Action 界面上的一个按钮。
type Action struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

// Indicator 状态徽标，Tone 取值 ok / pending / error / info。
type Indicator struct {
	Name string `json:"name"`
	Text string `json:"text"`
	Tone string `json:"tone"`
}

// View is everything a page needs to draw the current screen.
type View struct {
	Screen     session.Screen `json:"screen"`
	Title      string         `json:"title"`
	Subtitle   string         `json:"subtitle"`
	Hint       string         `json:"hint,omitempty"`
	Primary    *Action        `json:"primary,omitempty"`
	Secondary  []Action       `json:"secondary,omitempty"`
	Indicators []Indicator    `json:"indicators,omitempty"`
	Features   []string       `json:"features,omitempty"`
	RoomURL    string         `json:"roomUrl,omitempty"`
	Error      string         `json:"error,omitempty"`
	Loading    bool           `json:"loading"`
}

// Render 根据快照生成视图，不做任何副作用。
func Render(s session.Snapshot) View {
	switch s.Screen {
	case session.ScreenHairCheck:
		return renderHairCheck(s)
	case session.ScreenCall:
		return renderCall(s)
	default:
		return renderWelcome(s)
	}
}

func renderWelcome(s session.Snapshot) View {
	label := "Start Conversation"
	if s.Loading {
		label = "Connecting..."
	}
	return View{
		Screen:   session.ScreenWelcome,
		Title:    "Meet Your AI Assistant",
		Subtitle: "Experience the future of conversation with our intelligent AI avatar",
		Hint:     "Click to begin your AI conversation experience",
		Primary:  &Action{Name: ActionStart, Label: label, Enabled: !s.Loading},
		Features: []string{"Natural Conversations", "Real-time Video", "AI Powered"},
		Error:    s.Error,
		Loading:  s.Loading,
	}
}

func renderHairCheck(s session.Snapshot) View {
	return View{
		Screen:    session.ScreenHairCheck,
		Title:     "Camera & Audio Check",
		Subtitle:  "Make sure you look and sound great before joining",
		Hint:      "Your AI assistant is waiting to chat with you",
		Primary:   &Action{Name: ActionJoin, Label: "Join Conversation", Enabled: true},
		Secondary: []Action{{Name: ActionCancel, Label: "Cancel", Enabled: true}},
		Indicators: []Indicator{
			{Name: "readiness", Text: "Ready to connect", Tone: "ok"},
			backendIndicator(s.Backend),
		},
		RoomURL: s.RoomURL,
		Error:   s.Error,
	}
}

func renderCall(s session.Snapshot) View {
	v := View{
		Screen:   session.ScreenCall,
		Title:    "AI Assistant",
		Subtitle: "Powered by Tavus AI • Secure & Private",
		Primary:  &Action{Name: ActionLeave, Label: "End Conversation", Enabled: true},
		RoomURL:  s.RoomURL,
		Error:    s.Error,
	}

	status := session.StatusConnecting
	media := session.MediaState{Audio: true, Video: true}
	if s.Call != nil {
		status = s.Call.Status
		media = s.Call.Media
		if s.Call.Error != "" && v.Error == "" {
			v.Error = s.Call.Error
		}
	}
	live := status != session.StatusDisconnected

	audioLabel, videoLabel := "Mute", "Stop Video"
	if !media.Audio {
		audioLabel = "Unmute"
	}
	if !media.Video {
		videoLabel = "Start Video"
	}
	v.Secondary = []Action{
		{Name: ActionToggleAudio, Label: audioLabel, Enabled: live},
		{Name: ActionToggleVideo, Label: videoLabel, Enabled: live},
	}

	v.Indicators = []Indicator{backendIndicator(s.Backend), connectionIndicator(status)}
	if s.Backend == persona.BackendCustom {
		v.Features = []string{"Company Knowledge Base", "Weather Information", "Mathematical Calculations"}
		v.Hint = `Try: "What's the weather in Tokyo?" or "Calculate 15 * 8"`
	}
	return v
}

// BackendText 返回后端模式对应的状态文案。
func BackendText(mode persona.BackendMode) string {
	switch mode {
	case persona.BackendCustom:
		return "Custom LLM + RAG + Tools"
	case persona.BackendBasic:
		return "Basic Replica"
	case persona.BackendStock:
		return "Stock Persona"
	default:
		return "Detecting..."
	}
}

func backendIndicator(mode persona.BackendMode) Indicator {
	tone := "info"
	switch mode {
	case persona.BackendCustom:
		tone = "ok"
	case persona.BackendBasic:
		tone = "pending"
	}
	return Indicator{Name: "backend", Text: BackendText(mode), Tone: tone}
}

func connectionIndicator(status session.ConnectionStatus) Indicator {
	switch status {
	case session.StatusConnected:
		return Indicator{Name: "connection", Text: "Connected", Tone: "ok"}
	case session.StatusDisconnected:
		return Indicator{Name: "connection", Text: "Disconnected", Tone: "error"}
	default:
		return Indicator{Name: "connection", Text: "Connecting...", Tone: "pending"}
	}
}
