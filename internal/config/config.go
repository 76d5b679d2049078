package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Tavus   TavusConfig
	Persona PersonaConfig
	LLM     LLMServerConfig
	AI      AIConfig
	Session SessionConfig
	Debug   bool
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig("PORT", "8080")
	if err != nil {
		return nil, err
	}

	tavus, err := loadTavusConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	sessionCfg, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	debug, err := parseBoolEnv("LOG_DEBUG", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Tavus:   tavus,
		Persona: loadPersonaConfig(),
		LLM:     llm,
		AI:      ai,
		Session: sessionCfg,
		Debug:   debug,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// AllowedOrigins 允许跨域访问的来源，默认 "*"。
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址与跨域来源。
func loadServerConfig(key, defaultPort string) (ServerConfig, error) {
	origins := parseListEnv("CORS_ALLOWED_ORIGINS")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// SessionConfig 浏览器会话的回收策略。
type SessionConfig struct {
	// IdleTimeout is how long a session may go without any page or event
	// stream attached before it is closed and its conversation terminated.
	IdleTimeout time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	idle, err := parseOptionalIntEnv("SESSION_IDLE_TIMEOUT")
	if err != nil {
		return SessionConfig{}, err
	}
	idleSeconds := 120
	if idle != nil && *idle > 0 {
		idleSeconds = *idle
	}
	return SessionConfig{IdleTimeout: time.Duration(idleSeconds) * time.Second}, nil
}

// TavusConfig 描述对话式视频 API 的凭证与端点。
type TavusConfig struct {
	APIKey           string
	BaseURL          string
	Timeout          time.Duration
	ReplicaID        string
	StockPersonaID   string
	ElevenLabsAPIKey string
	OpenAIAPIKey     string
}

// CheckCredentials 校验发起会话前必须具备的密钥，缺失时返回 ConfigurationError。
// needsSpeech 为 false 时（例如使用现成 persona）不要求语音合成密钥。
func (c TavusConfig) CheckCredentials(needsSpeech bool) error {
	if c.APIKey == "" {
		return &ConfigurationError{Key: "TAVUS_API_KEY", Reason: "Tavus API key is not configured"}
	}
	if needsSpeech && c.ElevenLabsAPIKey == "" {
		return &ConfigurationError{Key: "ELEVENLABS_API_KEY", Reason: "ElevenLabs API key is not configured"}
	}
	return nil
}

func loadTavusConfig() (TavusConfig, error) {
	timeout, err := parseOptionalIntEnv("TAVUS_HTTP_TIMEOUT")
	if err != nil {
		return TavusConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil && *timeout > 0 {
		timeoutSeconds = *timeout
	}

	return TavusConfig{
		APIKey:           strings.TrimSpace(os.Getenv("TAVUS_API_KEY")),
		BaseURL:          strings.TrimRight(getEnvOrDefault("TAVUS_BASE_URL", "https://tavusapi.com"), "/"),
		Timeout:          time.Duration(timeoutSeconds) * time.Second,
		ReplicaID:        getEnvOrDefault("TAVUS_REPLICA_ID", "r79e1c033f"),
		StockPersonaID:   strings.TrimSpace(os.Getenv("TAVUS_STOCK_PERSONA_ID")),
		ElevenLabsAPIKey: strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
	}, nil
}

// PersonaConfig 描述 persona 模板的来源。
type PersonaConfig struct {
	DefaultProfile   string
	ProfileFile      string
	CustomLLMBaseURL string
}

func loadPersonaConfig() PersonaConfig {
	return PersonaConfig{
		DefaultProfile:   getEnvOrDefault("PERSONA_PROFILE", "custom"),
		ProfileFile:      strings.TrimSpace(os.Getenv("PERSONA_PROFILE_FILE")),
		CustomLLMBaseURL: getEnvOrDefault("CUSTOM_LLM_BASE_URL", "http://localhost:8001"),
	}
}

// LLMServerConfig 描述自定义 LLM 服务（OpenAI 兼容端点）的配置。
type LLMServerConfig struct {
	Server        ServerConfig
	Provider      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	MaxToolRounds int
	KnowledgeFile string
}

func loadLLMServerConfig() (LLMServerConfig, error) {
	server, err := loadServerConfig("LLM_SERVER_PORT", "8001")
	if err != nil {
		return LLMServerConfig{}, err
	}

	rounds := 3
	if override, err := parseOptionalIntEnv("LLM_MAX_TOOL_ROUNDS"); err != nil {
		return LLMServerConfig{}, err
	} else if override != nil {
		if *override < 1 {
			rounds = 1
		} else {
			rounds = *override
		}
	}

	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "openai"))
	if provider != "openai" && provider != "ark" {
		return LLMServerConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q: want openai or ark", provider)
	}

	return LLMServerConfig{
		Server:        server,
		Provider:      provider,
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		MaxToolRounds: rounds,
		KnowledgeFile: strings.TrimSpace(os.Getenv("KNOWLEDGE_FILE")),
	}, nil
}

// AIConfig 描述火山方舟大模型相关配置，作为自定义 LLM 服务的可选上游。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, &ConfigurationError{Key: "ARK_API_KEY", Reason: "Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合"}
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return chatModel, nil
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
