package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/valpere/doktran/internal/postprocess"
)

const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIService translates with any OpenAI-compatible chat completion
// endpoint (OpenAI, Azure OpenAI proxies, OpenRouter, local gateways).
type OpenAIService struct {
	cfg    ServiceConfig
	client *openai.Client
}

func NewOpenAIService(cfg ServiceConfig) *OpenAIService {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIService{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (s *OpenAIService) Name() string {
	return "openai"
}

func (s *OpenAIService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if s.cfg.APIKey == "" {
		result.Error = "OpenAI API key required"
		return result, fmt.Errorf("OpenAI API key required")
	}

	model := s.cfg.Model
	if cfg.Model != "" {
		model = cfg.Model
	}

	sourceLang := req.SourceLang
	if isAuto(sourceLang) {
		sourceLang = "the detected language"
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(sourceLang, req.TargetLang, req.PreviousContext, req.Instructions)},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
		Temperature: 0.3,
	}

	resp, err := s.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		result.Error = fmt.Sprintf("OpenAI API error: %v", err)
		return result, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		result.Error = "empty response from API"
		return result, fmt.Errorf("empty response from API")
	}

	result.TranslatedText = postprocess.Clean(resp.Choices[0].Message.Content)
	result.Confidence = 0.7
	result.Metadata = map[string]string{
		"model":             resp.Model,
		"prompt_tokens":     fmt.Sprintf("%d", resp.Usage.PromptTokens),
		"completion_tokens": fmt.Sprintf("%d", resp.Usage.CompletionTokens),
	}

	return result, nil
}

func (s *OpenAIService) IsAvailable(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}
	return nil
}

func (s *OpenAIService) SupportedLanguages(ctx context.Context) ([]string, error) {
	return []string{"en", "es", "fr", "de", "it", "pt", "ru", "zh-Hans", "ja", "ko", "ar", "uk", "pl", "nl", "tr"}, nil
}

// buildSystemPrompt constructs the system prompt, optionally injecting a
// sliding-window context and extra instructions.
func buildSystemPrompt(sourceLang, targetLang, previousContext, instructions string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are a professional translator. Translate the following text from %s to %s.\n", sourceLang, targetLang))
	sb.WriteString("Only respond with the translation, nothing else. No explanations, no quotes, just the translation.")

	if instructions != "" {
		sb.WriteString(" ")
		sb.WriteString(instructions)
	}

	if previousContext != "" {
		sb.WriteString(fmt.Sprintf("\n\nCONTEXT (previous passage, do NOT retranslate this):\n...%s", previousContext))
	}

	return sb.String()
}
