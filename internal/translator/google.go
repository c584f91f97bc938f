package translator

import (
	"context"
	"fmt"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

type GoogleService struct {
	cfg ServiceConfig
}

func NewGoogleService(cfg ServiceConfig) *GoogleService {
	return &GoogleService{cfg: cfg}
}

func (s *GoogleService) Name() string {
	return "google"
}

func (s *GoogleService) newClient(ctx context.Context, cfg ServiceConfig) (*translate.Client, error) {
	var opts []option.ClientOption
	switch {
	case cfg.Credentials != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (s *GoogleService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	cfg = cfg.merge(s.cfg)

	targetLangTag, err := language.Parse(req.TargetLang)
	if err != nil {
		result.Error = fmt.Sprintf("invalid target language: %v", err)
		return result, fmt.Errorf("invalid target language: %w", err)
	}

	var opts *translate.Options
	if !isAuto(req.SourceLang) {
		sourceLangTag, err := language.Parse(req.SourceLang)
		if err != nil {
			result.Error = fmt.Sprintf("invalid source language: %v", err)
			return result, fmt.Errorf("invalid source language: %w", err)
		}
		opts = &translate.Options{Source: sourceLangTag, Format: translate.Text}
	} else {
		opts = &translate.Options{Format: translate.Text}
	}

	client, err := s.newClient(ctx, cfg)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	defer client.Close()

	translations, err := client.Translate(ctx, []string{req.Text}, targetLangTag, opts)
	if err != nil {
		result.Error = fmt.Sprintf("translation failed: %v", err)
		return result, fmt.Errorf("translation failed: %w", err)
	}

	if len(translations) == 0 {
		result.Error = "no translation returned"
		return result, fmt.Errorf("no translation returned")
	}

	result.TranslatedText = translations[0].Text
	result.Confidence = 1.0
	if src := translations[0].Source; src != language.Und {
		result.DetectedLang = src.String()
	}

	return result, nil
}

// Detect uses the DetectLanguage API and returns the most confident guess.
func (s *GoogleService) Detect(ctx context.Context, text string) (string, float64, error) {
	client, err := s.newClient(ctx, s.cfg)
	if err != nil {
		return "", 0, err
	}
	defer client.Close()

	detections, err := client.DetectLanguage(ctx, []string{text})
	if err != nil {
		return "", 0, fmt.Errorf("detection failed: %w", err)
	}
	if len(detections) == 0 || len(detections[0]) == 0 {
		return "", 0, fmt.Errorf("no language detected")
	}

	best := detections[0][0]
	for _, d := range detections[0][1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best.Language.String(), best.Confidence, nil
}

func (s *GoogleService) IsAvailable(ctx context.Context) error {
	return nil
}

func (s *GoogleService) SupportedLanguages(ctx context.Context) ([]string, error) {
	client, err := s.newClient(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	langs, err := client.SupportedLanguages(ctx, language.English)
	if err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}
	codes := make([]string, 0, len(langs))
	for _, l := range langs {
		codes = append(codes, l.Tag.String())
	}
	return codes, nil
}
