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

// Config aggregates every setting the service reads from the environment.
type Config struct {
	Server ServerConfig
	Relay  RelayConfig
	AI     AIConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Relay: relay, AI: ai}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RelayConfig holds the session and delivery policy constants.
type RelayConfig struct {
	// SessionCapacity caps concurrently open sessions.
	SessionCapacity int
	// MessageMaxLength bounds accepted message text, in bytes.
	MessageMaxLength int
	// SubscriberQueueSize bounds undelivered messages per subscriber before
	// it is disconnected with an overrun.
	SubscriberQueueSize int
	// SuggestionContextLimit is how many trailing transcript messages feed
	// the reply suggester.
	SuggestionContextLimit int
	// SuggestionTimeout bounds each suggester attempt.
	SuggestionTimeout time.Duration
}

func loadRelayConfig() (RelayConfig, error) {
	cfg := RelayConfig{
		SessionCapacity:        1024,
		MessageMaxLength:       2000,
		SubscriberQueueSize:    32,
		SuggestionContextLimit: 5,
		SuggestionTimeout:      8 * time.Second,
	}

	overrides := []struct {
		key string
		dst *int
	}{
		{"SESSION_CAPACITY", &cfg.SessionCapacity},
		{"MESSAGE_MAX_LENGTH", &cfg.MessageMaxLength},
		{"SUBSCRIBER_QUEUE_SIZE", &cfg.SubscriberQueueSize},
		{"SUGGESTION_CONTEXT_LIMIT", &cfg.SuggestionContextLimit},
	}
	for _, o := range overrides {
		val, err := parseOptionalIntEnv(o.key)
		if err != nil {
			return RelayConfig{}, err
		}
		if val != nil {
			if *val < 1 {
				return RelayConfig{}, fmt.Errorf("%s must be positive, got %d", o.key, *val)
			}
			*o.dst = *val
		}
	}

	if timeout, err := parseOptionalIntEnv("SUGGESTION_TIMEOUT"); err != nil {
		return RelayConfig{}, err
	} else if timeout != nil {
		if *timeout < 1 {
			return RelayConfig{}, fmt.Errorf("SUGGESTION_TIMEOUT must be at least 1 second, got %d", *timeout)
		}
		cfg.SuggestionTimeout = time.Duration(*timeout) * time.Second
	}

	return cfg, nil
}

// AIConfig describes the language model behind the reply suggester.
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

// Enabled reports whether the required credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + Model, or the AK/SK pair")
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

	return ark.NewChatModel(ctx, cfg)
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
