package avatar

import (
	"context"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/model/conversation"
	"github.com/zhouzirui/avatar-call/backend/internal/model/persona"
	"github.com/zhouzirui/avatar-call/backend/internal/model/tool"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

// API 抽象视频服务的三个接口，便于替换为测试桩。
type API interface {
	CreatePersona(ctx context.Context, req persona.CreateRequest) (persona.Persona, error)
	CreateConversation(ctx context.Context, req conversation.CreateRequest) (conversation.Conversation, error)
	EndConversation(ctx context.Context, conversationID string) error
}

// Service 根据 persona 模板组装请求并校验凭证。
type Service struct {
	api     API
	tavus   config.TavusConfig
	persona config.PersonaConfig
	log     *logger.Logger
}

// NewService 创建 avatar 服务。
func NewService(api API, tavusCfg config.TavusConfig, personaCfg config.PersonaConfig, log *logger.Logger) *Service {
	return &Service{
		api:     api,
		tavus:   tavusCfg,
		persona: personaCfg,
		log:     log.Named("avatar"),
	}
}

// CreatePersona creates the persona described by profile. Stock profiles
// resolve to the configured persona id without calling the API.
func (s *Service) CreatePersona(ctx context.Context, profile persona.Profile) (persona.Persona, error) {
	if err := s.tavus.CheckCredentials(profile.NeedsSpeechKey()); err != nil {
		return persona.Persona{}, err
	}

	if profile.Backend == persona.BackendStock {
		id := profile.StockPersona
		if id == "" {
			id = s.tavus.StockPersonaID
		}
		if id == "" {
			return persona.Persona{}, &config.ConfigurationError{Key: "TAVUS_STOCK_PERSONA_ID", Reason: "stock persona id is not configured"}
		}
		s.log.Infow("using stock persona", "persona_id", id)
		return persona.Persona{ID: id, Name: profile.Name, Backend: persona.BackendStock}, nil
	}

	created, err := s.api.CreatePersona(ctx, s.BuildPersonaRequest(profile))
	if err != nil {
		s.log.Errorw("create persona failed", "profile", profile.ID, "error", err)
		return persona.Persona{}, err
	}
	created.Backend = profile.Backend
	return created, nil
}

// CreateConversation 创建绑定到 personaID 的会话。
func (s *Service) CreateConversation(ctx context.Context, profile persona.Profile, personaID string) (conversation.Conversation, error) {
	if err := s.tavus.CheckCredentials(false); err != nil {
		return conversation.Conversation{}, err
	}

	conv, err := s.api.CreateConversation(ctx, s.BuildConversationRequest(profile, personaID))
	if err != nil {
		s.log.Errorw("create conversation failed", "profile", profile.ID, "persona_id", personaID, "error", err)
		return conversation.Conversation{}, err
	}
	return conv, nil
}

// EndConversation 尽力结束会话，失败只记录日志并原样返回，调用方不应据此中断流程。
func (s *Service) EndConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return nil
	}
	if err := s.api.EndConversation(ctx, conversationID); err != nil {
		s.log.Warnw("end conversation failed", "conversation_id", conversationID, "error", err)
		return err
	}
	return nil
}

// BuildPersonaRequest 把模板展开为 persona 创建请求，密钥与默认地址取自配置。
func (s *Service) BuildPersonaRequest(profile persona.Profile) persona.CreateRequest {
	req := persona.CreateRequest{
		SystemPrompt: profile.SystemPrompt,
		Context:      profile.Context,
		PersonaName:  profile.Name,
	}

	if profile.Backend == persona.BackendCustom {
		baseURL := profile.LLM.BaseURL
		if baseURL == "" {
			baseURL = s.persona.CustomLLMBaseURL
		}
		llm := &persona.LLMLayer{
			Model:                profile.LLM.Model,
			APIKey:               s.tavus.OpenAIAPIKey,
			BaseURL:              baseURL,
			SpeculativeInference: profile.LLM.SpeculativeInference,
		}
		if profile.LLM.Tools {
			llm.Tools = tool.Catalog()
		}
		req.Layers.LLM = llm
	} else if profile.LLM.Model != "" {
		req.Layers.LLM = &persona.LLMLayer{
			Model:                profile.LLM.Model,
			SpeculativeInference: profile.LLM.SpeculativeInference,
		}
	}

	if profile.TTS.Engine != "" {
		tts := &persona.TTSLayer{
			TTSEngine:       profile.TTS.Engine,
			ExternalVoiceID: profile.TTS.VoiceID,
		}
		if profile.TTS.Engine == "elevenlabs" {
			tts.APIKey = s.tavus.ElevenLabsAPIKey
		}
		req.Layers.TTS = tts
	}

	if profile.STT.Engine != "" {
		req.Layers.STT = &persona.STTLayer{
			ParticipantPauseSensitivity:     profile.STT.PauseSensitivity,
			ParticipantInterruptSensitivity: profile.STT.InterruptSensitivity,
			SmartTurnDetection:              profile.STT.SmartTurnDetection,
			STTEngine:                       profile.STT.Engine,
		}
	}

	if profile.Perception != "" {
		req.Layers.Perception = &persona.PerceptionLayer{PerceptionModel: profile.Perception}
	}
	return req
}

// BuildConversationRequest 组装会话创建请求。
func (s *Service) BuildConversationRequest(profile persona.Profile, personaID string) conversation.CreateRequest {
	replica := profile.Conversation.ReplicaID
	if replica == "" {
		replica = s.tavus.ReplicaID
	}
	return conversation.CreateRequest{
		ReplicaID:             replica,
		ConversationName:      profile.Conversation.Name,
		ConversationalContext: profile.Conversation.Context,
		CustomGreeting:        profile.Conversation.Greeting,
		Properties:            profile.Conversation.Properties,
		PersonaID:             personaID,
	}
}
