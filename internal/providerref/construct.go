package providerref

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
)

// ClaudeConfig mirrors the teacher's AnthropicConfig, trimmed to what a
// summarization-only call needs (no Thinking/Bedrock knobs — those are
// a streaming-completion concern the core itself never performs).
type ClaudeConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewClaudeSummarizer builds a Summarizer backed by Anthropic Claude via
// eino-ext's claude chat model.
func NewClaudeSummarizer(ctx context.Context, cfg ClaudeConfig) (*ChatModelSummarizer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("providerref: ANTHROPIC_API_KEY not set")
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "claude-3-5-haiku-20241022"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	chatModelCfg := &claude.Config{APIKey: apiKey, Model: modelID, MaxTokens: maxTokens}
	if cfg.BaseURL != "" {
		chatModelCfg.BaseURL = &cfg.BaseURL
	}

	cm, err := claude.NewChatModel(ctx, chatModelCfg)
	if err != nil {
		return nil, fmt.Errorf("providerref: failed to create claude chat model: %w", err)
	}
	return NewChatModelSummarizer(cm), nil
}

// OpenAIConfig mirrors the teacher's OpenAIConfig, trimmed the same way.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAISummarizer builds a Summarizer backed by an OpenAI-compatible
// chat model via eino-ext's openai chat model.
func NewOpenAISummarizer(ctx context.Context, cfg OpenAIConfig) (*ChatModelSummarizer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("providerref: OPENAI_API_KEY not set")
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	chatModelCfg := &openai.ChatModelConfig{APIKey: apiKey, Model: modelID, MaxCompletionTokens: &maxTokens}
	if cfg.BaseURL != "" {
		chatModelCfg.BaseURL = cfg.BaseURL
	}

	cm, err := openai.NewChatModel(ctx, chatModelCfg)
	if err != nil {
		return nil, fmt.Errorf("providerref: failed to create openai chat model: %w", err)
	}
	return NewChatModelSummarizer(cm), nil
}

// ArkConfig mirrors the teacher's ArkConfig.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewArkSummarizer builds a Summarizer backed by a Volcengine ARK
// endpoint via eino-ext's ark chat model.
func NewArkSummarizer(ctx context.Context, cfg ArkConfig) (*ChatModelSummarizer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ARK_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("providerref: ARK_API_KEY not set")
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = os.Getenv("ARK_MODEL_ID")
	}
	if modelID == "" {
		return nil, fmt.Errorf("providerref: ARK_MODEL_ID not set")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("ARK_BASE_URL")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	chatModelCfg := &ark.ChatModelConfig{APIKey: apiKey, Model: modelID, MaxTokens: &maxTokens}
	if baseURL != "" {
		chatModelCfg.BaseURL = baseURL
	}

	cm, err := ark.NewChatModel(ctx, chatModelCfg)
	if err != nil {
		return nil, fmt.Errorf("providerref: failed to create ark chat model: %w", err)
	}
	return NewChatModelSummarizer(cm), nil
}
