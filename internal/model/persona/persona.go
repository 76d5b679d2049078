package persona

import (
	"github.com/zhouzirui/avatar-call/backend/internal/model/conversation"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
)

// BackendMode 标识会话背后的 LLM 配置，直接随 persona 返回，不再从日志文本推断。
type BackendMode string

const (
	BackendCustom  BackendMode = "custom"
	BackendBasic   BackendMode = "basic"
	BackendStock   BackendMode = "stock"
	BackendUnknown BackendMode = "unknown"
)

// Persona 是 Tavus 创建后返回的不可变 persona。
type Persona struct {
	ID      string      `json:"id"`
	Name    string      `json:"name,omitempty"`
	Backend BackendMode `json:"backend"`
}

// CreateRequest 创建 persona 的请求体。
type CreateRequest struct {
	SystemPrompt string `json:"system_prompt"`
	Context      string `json:"context"`
	PersonaName  string `json:"persona_name"`
	Layers       Layers `json:"layers"`
}

// Layers persona 的行为分层配置。
type Layers struct {
	LLM        *LLMLayer        `json:"llm,omitempty"`
	TTS        *TTSLayer        `json:"tts,omitempty"`
	STT        *STTLayer        `json:"stt,omitempty"`
	Perception *PerceptionLayer `json:"perception,omitempty"`
}

// LLMLayer 指向自定义 LLM 服务并声明可调用的工具。
type LLMLayer struct {
	Model                string             `json:"model"`
	APIKey               string             `json:"api_key,omitempty"`
	BaseURL              string             `json:"base_url,omitempty"`
	Tools                []tool.Declaration `json:"tools,omitempty"`
	SpeculativeInference bool               `json:"speculative_inference"`
}

// TTSLayer 语音合成引擎配置。
type TTSLayer struct {
	TTSEngine       string `json:"tts_engine"`
	APIKey          string `json:"api_key,omitempty"`
	ExternalVoiceID string `json:"external_voice_id,omitempty"`
}

// STTLayer 语音识别与轮次检测配置。
type STTLayer struct {
	ParticipantPauseSensitivity     string `json:"participant_pause_sensitivity"`
	ParticipantInterruptSensitivity string `json:"participant_interrupt_sensitivity"`
	SmartTurnDetection              bool   `json:"smart_turn_detection"`
	STTEngine                       string `json:"stt_engine"`
}

// PerceptionLayer 视觉感知模型配置。
type PerceptionLayer struct {
	PerceptionModel string `json:"perception_model"`
}

// Profile 是一份静态的 persona 模板，包含 persona 与会话两部分默认值。
type Profile struct {
	ID           string              `json:"id" yaml:"id"`
	Name         string              `json:"name" yaml:"name"`
	Backend      BackendMode         `json:"backend" yaml:"backend"`
	SystemPrompt string              `json:"systemPrompt" yaml:"system_prompt"`
	Context      string              `json:"context" yaml:"context"`
	LLM          LLMSettings         `json:"llm" yaml:"llm"`
	TTS          TTSSettings         `json:"tts" yaml:"tts"`
	STT          STTSettings         `json:"stt" yaml:"stt"`
	Perception   string              `json:"perception,omitempty" yaml:"perception"`
	StockPersona string              `json:"stockPersonaId,omitempty" yaml:"stock_persona_id"`
	Conversation ConversationDefault `json:"conversation" yaml:"conversation"`
}

// LLMSettings 模板中的 LLM 层参数；BaseURL 为空时使用配置中的自定义 LLM 地址。
type LLMSettings struct {
	Model                string `json:"model" yaml:"model"`
	BaseURL              string `json:"baseUrl,omitempty" yaml:"base_url"`
	Tools                bool   `json:"tools" yaml:"tools"`
	SpeculativeInference bool   `json:"speculativeInference" yaml:"speculative_inference"`
}

// TTSSettings 模板中的语音合成参数。
type TTSSettings struct {
	Engine  string `json:"engine" yaml:"engine"`
	VoiceID string `json:"voiceId" yaml:"voice_id"`
}

// STTSettings 模板中的语音识别参数。
type STTSettings struct {
	PauseSensitivity     string `json:"pauseSensitivity" yaml:"pause_sensitivity"`
	InterruptSensitivity string `json:"interruptSensitivity" yaml:"interrupt_sensitivity"`
	SmartTurnDetection   bool   `json:"smartTurnDetection" yaml:"smart_turn_detection"`
	Engine               string `json:"engine" yaml:"engine"`
}

// ConversationDefault 创建会话时使用的静态属性。
type ConversationDefault struct {
	ReplicaID  string                  `json:"replicaId,omitempty" yaml:"replica_id"`
	Name       string                  `json:"name" yaml:"name"`
	Context    string                  `json:"context" yaml:"context"`
	Greeting   string                  `json:"greeting" yaml:"greeting"`
	Properties conversation.Properties `json:"properties" yaml:"properties"`
}

// NeedsSpeechKey 表示该模板是否需要语音合成密钥。
func (p Profile) NeedsSpeechKey() bool {
	return p.Backend != BackendStock && p.TTS.Engine == "elevenlabs"
}

const (
	assistantPrompt  = "You are an intelligent AI assistant with access to a company knowledge base and various tools. You can help users with weather information, company questions, and calculations. Always be helpful, accurate, and reference your knowledge base when appropriate."
	assistantContext = "You have access to company information and various tools for weather, calculations, and company queries."
	assistantName    = "AI Assistant with RAG & Tools"
	assistantGreet   = "Hello! I'm your AI assistant with access to real-time tools and company information. I can help you with weather updates, answer questions about our company, perform calculations, and much more. How can I assist you today?"
)

// Seed provides the default profiles: the tool-calling assistant plus the
// basic replica and stock persona fallbacks.
func Seed() []Profile {
	stt := STTSettings{
		PauseSensitivity:     "high",
		InterruptSensitivity: "high",
		SmartTurnDetection:   true,
		Engine:               "tavus-advanced",
	}
	tts := TTSSettings{Engine: "elevenlabs", VoiceID: "21m00Tcm4TlvDq8ikWAM"}

	return []Profile{
		{
			ID:           "custom",
			Name:         assistantName,
			Backend:      BackendCustom,
			SystemPrompt: assistantPrompt,
			Context:      assistantContext,
			LLM: LLMSettings{
				Model:                "gpt-3.5-turbo",
				Tools:                true,
				SpeculativeInference: true,
			},
			TTS:        tts,
			STT:        stt,
			Perception: "basic",
			Conversation: ConversationDefault{
				Name:       assistantName,
				Context:    assistantPrompt,
				Greeting:   assistantGreet,
				Properties: conversation.DefaultProperties(),
			},
		},
		{
			ID:           "basic",
			Name:         "AI Assistant",
			Backend:      BackendBasic,
			SystemPrompt: "You are a friendly AI assistant. Keep answers short and conversational.",
			Context:      "A casual video chat with a visitor.",
			TTS:          tts,
			STT:          stt,
			Perception:   "basic",
			Conversation: ConversationDefault{
				Name:       "AI Assistant",
				Context:    "A casual video chat with a visitor.",
				Greeting:   "Hi there! What would you like to talk about?",
				Properties: conversation.DefaultProperties(),
			},
		},
		{
			ID:      "stock",
			Name:    "Stock Persona",
			Backend: BackendStock,
			Conversation: ConversationDefault{
				Name:       "Stock Persona Conversation",
				Properties: conversation.DefaultProperties(),
			},
		},
	}
}
