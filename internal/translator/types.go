package translator

import (
	"context"
	"errors"
	"time"
)

// ErrDetectionUnsupported is returned by Detect when the wrapped provider
// cannot identify languages.
var ErrDetectionUnsupported = errors.New("language detection not supported")

type ServiceConfig struct {
	Credentials string        `mapstructure:"credentials" json:"credentials"`
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Region      string        `mapstructure:"region" json:"region"`
	Email       string        `mapstructure:"email" json:"email"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	ProjectID   string        `mapstructure:"project_id" json:"project_id"`
}

// merge fills empty fields of c from base.
func (c ServiceConfig) merge(base ServiceConfig) ServiceConfig {
	if c.Credentials == "" {
		c.Credentials = base.Credentials
	}
	if c.APIKey == "" {
		c.APIKey = base.APIKey
	}
	if c.Model == "" {
		c.Model = base.Model
	}
	if c.BaseURL == "" {
		c.BaseURL = base.BaseURL
	}
	if c.Region == "" {
		c.Region = base.Region
	}
	if c.Email == "" {
		c.Email = base.Email
	}
	if c.Timeout == 0 {
		c.Timeout = base.Timeout
	}
	if c.ProjectID == "" {
		c.ProjectID = base.ProjectID
	}
	return c
}

type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`

	// PreviousContext is the tail of the preceding chunk. Only LLM providers
	// use it.
	PreviousContext string `json:"previous_context,omitempty"`

	// Instructions are appended to LLM prompts, e.g. the glossary marker hint.
	Instructions string `json:"instructions,omitempty"`
}

type ServiceResult struct {
	ServiceName    string            `json:"service_name"`
	TranslatedText string            `json:"translated_text"`
	DetectedLang   string            `json:"detected_lang,omitempty"`
	Confidence     float64           `json:"confidence"`
	Metadata       map[string]string `json:"metadata"`
	Latency        time.Duration     `json:"latency"`
	Error          string            `json:"error,omitempty"`
}

type TranslationService interface {
	Name() string
	Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error)
	IsAvailable(ctx context.Context) error
	SupportedLanguages(ctx context.Context) ([]string, error)
}

// LanguageDetector is implemented by providers that can identify the
// language of a text. score is in [0, 1].
type LanguageDetector interface {
	Detect(ctx context.Context, text string) (lang string, score float64, err error)
}

func isAuto(lang string) bool {
	return lang == "" || lang == "auto"
}
