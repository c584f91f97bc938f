package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const azureMaxChars = 3000

// azureVoices are neural voices used when the request names none.
var azureVoices = map[string]string{
	"en":      "en-US-JennyNeural",
	"zh-Hans": "zh-CN-XiaoxiaoNeural",
	"zh-Hant": "zh-TW-HsiaoChenNeural",
	"zh":      "zh-CN-XiaoxiaoNeural",
	"fi":      "fi-FI-NooraNeural",
	"uk":      "uk-UA-PolinaNeural",
	"de":      "de-DE-KatjaNeural",
	"fr":      "fr-FR-DeniseNeural",
	"es":      "es-ES-ElviraNeural",
	"it":      "it-IT-ElsaNeural",
	"pt":      "pt-BR-FranciscaNeural",
	"ja":      "ja-JP-NanamiNeural",
	"ko":      "ko-KR-SunHiNeural",
	"pl":      "pl-PL-ZofiaNeural",
	"ru":      "ru-RU-SvetlanaNeural",
}

var azureOutputFormats = map[string]string{
	"mp3":  "audio-24khz-96kbitrate-mono-mp3",
	"wav":  "riff-24khz-16bit-mono-pcm",
	"opus": "ogg-24khz-16bit-mono-opus",
}

// AzureSynthesizer calls the Cognitive Services text-to-speech REST API
// with SSML.
type AzureSynthesizer struct {
	cfg    Config
	client *http.Client
}

func NewAzureSynthesizer(cfg Config) *AzureSynthesizer {
	if cfg.BaseURL == "" && cfg.Region != "" {
		cfg.BaseURL = fmt.Sprintf("https://%s.tts.speech.microsoft.com", cfg.Region)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AzureSynthesizer{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (s *AzureSynthesizer) Name() string {
	return "azure"
}

func (s *AzureSynthesizer) IsAvailable(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("Azure Speech key not configured")
	}
	if s.cfg.BaseURL == "" {
		return fmt.Errorf("Azure Speech region not configured")
	}
	return nil
}

// azureVoice picks the voice for lang: explicit, exact tag, then base
// language.
func azureVoice(voice, fallback, lang string) string {
	if voice != "" {
		return voice
	}
	if v, ok := azureVoices[lang]; ok {
		return v
	}
	if tag, err := language.Parse(lang); err == nil {
		base, _ := tag.Base()
		if v, ok := azureVoices[base.String()]; ok {
			return v
		}
	}
	if fallback != "" {
		return fallback
	}
	return azureVoices["en"]
}

func buildSSML(text, lang, voice string) (string, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return "", err
	}
	if lang == "" {
		lang = "en-US"
	}
	return fmt.Sprintf(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		lang, voice, escaped.String()), nil
}

func (s *AzureSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*Audio, error) {
	if err := s.IsAvailable(ctx); err != nil {
		return nil, err
	}

	format := req.Format
	if format == "" {
		format = DefaultFormat
	}
	outputFormat, ok := azureOutputFormats[format]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}

	voice := azureVoice(req.Voice, s.cfg.Voice, req.Lang)
	ssml, err := buildSSML(req.Text, req.Lang, voice)
	if err != nil {
		return nil, fmt.Errorf("failed to build SSML: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/cognitiveservices/v1"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", outputFormat)
	httpReq.Header.Set("User-Agent", "doktran")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return &Audio{
		Data:        data,
		Format:      format,
		ContentType: ContentType(format),
		Provider:    s.Name(),
		Voice:       voice,
	}, nil
}
