package conversation

// Conversation 表示一次由 Tavus 调度的视频会话，仅在内存中短暂持有。
type Conversation struct {
	ID              string `json:"conversation_id"`
	Name            string `json:"conversation_name,omitempty"`
	PersonaID       string `json:"persona_id,omitempty"`
	ReplicaID       string `json:"replica_id,omitempty"`
	RoomURL         string `json:"room_url"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// JoinURL 返回通话组件应加入的地址，优先使用 conversation_url。
func (c Conversation) JoinURL() string {
	if c.ConversationURL != "" {
		return c.ConversationURL
	}
	return c.RoomURL
}

// Properties 会话的静态属性，超时由服务端执行。
type Properties struct {
	Language                 string `json:"language" yaml:"language"`
	EnableRecording          bool   `json:"enable_recording" yaml:"enable_recording"`
	EnableClosedCaptions     bool   `json:"enable_closed_captions" yaml:"enable_closed_captions"`
	MaxCallDuration          int    `json:"max_call_duration" yaml:"max_call_duration"`
	ParticipantLeftTimeout   int    `json:"participant_left_timeout" yaml:"participant_left_timeout"`
	ParticipantAbsentTimeout int    `json:"participant_absent_timeout" yaml:"participant_absent_timeout"`
}

// DefaultProperties 关闭录制、开启字幕，最长 30 分钟。
func DefaultProperties() Properties {
	return Properties{
		Language:                 "english",
		EnableRecording:          false,
		EnableClosedCaptions:     true,
		MaxCallDuration:          1800,
		ParticipantLeftTimeout:   60,
		ParticipantAbsentTimeout: 300,
	}
}

// CreateRequest 创建会话的请求体。
type CreateRequest struct {
	ReplicaID             string     `json:"replica_id"`
	ConversationName      string     `json:"conversation_name"`
	ConversationalContext string     `json:"conversational_context"`
	CustomGreeting        string     `json:"custom_greeting"`
	Properties            Properties `json:"properties"`
	PersonaID             string     `json:"persona_id"`
}
