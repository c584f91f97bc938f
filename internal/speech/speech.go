// Package speech synthesizes audio from translated text through swappable
// text-to-speech providers.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valpere/doktran/internal"
	"github.com/valpere/doktran/internal/chunker"
	"github.com/valpere/doktran/internal/metrics"
)

const DefaultFormat = "mp3"

// ErrUnsupportedFormat is returned for audio formats a provider cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// SpeechRequest describes one synthesis call. Voice is provider specific;
// empty picks a default voice for Lang.
type SpeechRequest struct {
	Text   string `json:"text"`
	Lang   string `json:"lang"`
	Voice  string `json:"voice,omitempty"`
	Format string `json:"format,omitempty"`
}

// Audio is synthesized speech.
type Audio struct {
	Data        []byte
	Format      string
	ContentType string
	Provider    string
	Voice       string
}

// Synthesizer is a text-to-speech provider.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SpeechRequest) (*Audio, error)
	IsAvailable(ctx context.Context) error
}

// Config selects and configures a provider.
type Config struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	Region      string        `mapstructure:"region"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Voice       string        `mapstructure:"voice"`
	Credentials string        `mapstructure:"credentials"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// MaxChars overrides the provider's per-request text limit.
	MaxChars int `mapstructure:"max_chars"`
}

// New creates the provider named in cfg.Provider wrapped so long texts are
// split and their audio concatenated.
func New(cfg Config) (Synthesizer, error) {
	var s Synthesizer
	var limit int
	switch cfg.Provider {
	case "azure":
		s, limit = NewAzureSynthesizer(cfg), azureMaxChars
	case "openai":
		s, limit = NewOpenAISynthesizer(cfg), openAIMaxChars
	case "google":
		s, limit = NewGoogleSynthesizer(cfg), googleMaxChars
	default:
		return nil, fmt.Errorf("unknown speech provider: %s (supported: azure, openai, google)", cfg.Provider)
	}
	if cfg.MaxChars > 0 {
		limit = cfg.MaxChars
	}
	return NewChunked(s, limit), nil
}

// ContentType maps an audio format to its MIME type.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus", "ogg":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// Chunked splits text longer than the provider limit at sentence
// boundaries and concatenates the resulting audio. Only MP3 frames
// concatenate into a valid stream, so other formats must fit one request.
type Chunked struct {
	Synthesizer
	maxChars int
}

func NewChunked(s Synthesizer, maxChars int) *Chunked {
	return &Chunked{Synthesizer: s, maxChars: maxChars}
}

func (c *Chunked) Synthesize(ctx context.Context, req SpeechRequest) (*Audio, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, internal.ErrEmptyText
	}
	if req.Format == "" {
		req.Format = DefaultFormat
	}

	pieces := chunker.Chunk(req.Text, c.maxChars)
	if len(pieces) > 1 && req.Format != "mp3" {
		return nil, fmt.Errorf("%w: text needs %d requests and only mp3 output can be concatenated", ErrUnsupportedFormat, len(pieces))
	}

	var out *Audio
	var buf bytes.Buffer
	for i, piece := range pieces {
		part := req
		part.Text = piece
		audio, err := c.Synthesizer.Synthesize(ctx, part)
		metrics.RecordSpeech(c.Name(), err == nil)
		if err != nil {
			return nil, fmt.Errorf("segment %d/%d: %w", i+1, len(pieces), err)
		}
		buf.Write(audio.Data)
		out = audio
	}

	out.Data = buf.Bytes()
	return out, nil
}
