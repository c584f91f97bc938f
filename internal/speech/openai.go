package speech

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const openAIMaxChars = 4000

// OpenAISynthesizer uses the OpenAI audio/speech endpoint.
type OpenAISynthesizer struct {
	cfg    Config
	client *openai.Client
}

func NewOpenAISynthesizer(cfg Config) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAISynthesizer{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

func (s *OpenAISynthesizer) Name() string {
	return "openai"
}

func (s *OpenAISynthesizer) IsAvailable(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}
	return nil
}

func responseFormat(format string) (openai.SpeechResponseFormat, error) {
	switch format {
	case "", "mp3":
		return openai.SpeechResponseFormatMp3, nil
	case "wav":
		return openai.SpeechResponseFormatWav, nil
	case "opus":
		return openai.SpeechResponseFormatOpus, nil
	case "aac":
		return openai.SpeechResponseFormatAac, nil
	case "flac":
		return openai.SpeechResponseFormatFlac, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
}

// Synthesize ignores Lang; the model infers pronunciation from the text.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*Audio, error) {
	if err := s.IsAvailable(ctx); err != nil {
		return nil, err
	}

	format, err := responseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	voice := req.Voice
	if voice == "" {
		voice = s.cfg.Voice
	}

	response, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: format,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI TTS API error: %w", err)
	}
	defer response.Close()

	data, err := io.ReadAll(response)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	return &Audio{
		Data:        data,
		Format:      string(format),
		ContentType: ContentType(string(format)),
		Provider:    s.Name(),
		Voice:       voice,
	}, nil
}
