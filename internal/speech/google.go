package speech

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

// Google limits input to 5000 bytes; 1500 runes stays below that for
// any script.
const googleMaxChars = 1500

// GoogleSynthesizer uses Cloud Text-to-Speech.
type GoogleSynthesizer struct {
	cfg Config
}

func NewGoogleSynthesizer(cfg Config) *GoogleSynthesizer {
	return &GoogleSynthesizer{cfg: cfg}
}

func (s *GoogleSynthesizer) Name() string {
	return "google"
}

func (s *GoogleSynthesizer) IsAvailable(ctx context.Context) error {
	return nil
}

var googleEncodings = map[string]texttospeechpb.AudioEncoding{
	"mp3":  texttospeechpb.AudioEncoding_MP3,
	"wav":  texttospeechpb.AudioEncoding_LINEAR16,
	"opus": texttospeechpb.AudioEncoding_OGG_OPUS,
}

func (s *GoogleSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*Audio, error) {
	format := req.Format
	if format == "" {
		format = DefaultFormat
	}
	encoding, ok := googleEncodings[format]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}

	var opts []option.ClientOption
	if s.cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(s.cfg.Credentials))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	voice := req.Voice
	if voice == "" {
		voice = s.cfg.Voice
	}
	lang := req.Lang
	if lang == "" {
		lang = "en-US"
	}

	resp, err := client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text}},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         voice,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{AudioEncoding: encoding},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	return &Audio{
		Data:        resp.AudioContent,
		Format:      format,
		ContentType: ContentType(format),
		Provider:    s.Name(),
		Voice:       voice,
	}, nil
}
