package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	AzureDefaultEndpoint = "https://api.cognitive.microsofttranslator.com"
	azureAPIVersion      = "3.0"
)

// AzureService talks to the Azure Translator v3 REST API.
type AzureService struct {
	cfg    ServiceConfig
	client *http.Client
}

func NewAzureService(cfg ServiceConfig) *AzureService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = AzureDefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AzureService{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *AzureService) Name() string {
	return "azure"
}

type azureText struct {
	Text string `json:"Text"`
}

type azureDetection struct {
	Language string  `json:"language"`
	Score    float64 `json:"score"`
}

type azureTranslateResponse []struct {
	DetectedLanguage *azureDetection `json:"detectedLanguage"`
	Translations     []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

type azureErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *AzureService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	cfg = cfg.merge(s.cfg)
	if cfg.APIKey == "" {
		result.Error = "Azure Translator key required"
		return result, fmt.Errorf("Azure Translator key required")
	}

	query := url.Values{}
	query.Set("to", req.TargetLang)
	if !isAuto(req.SourceLang) {
		query.Set("from", req.SourceLang)
	}

	var resp azureTranslateResponse
	traceID, err := s.post(ctx, cfg, "/translate", query, []azureText{{Text: req.Text}}, &resp)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	if len(resp) == 0 || len(resp[0].Translations) == 0 {
		result.Error = "no translation returned"
		return result, fmt.Errorf("no translation returned")
	}

	result.TranslatedText = resp[0].Translations[0].Text
	result.Confidence = 1.0
	result.Metadata = map[string]string{"trace_id": traceID}
	if d := resp[0].DetectedLanguage; d != nil {
		result.DetectedLang = d.Language
		result.Confidence = d.Score
	}

	return result, nil
}

// Detect calls the /detect endpoint.
func (s *AzureService) Detect(ctx context.Context, text string) (string, float64, error) {
	if s.cfg.APIKey == "" {
		return "", 0, fmt.Errorf("Azure Translator key required")
	}

	var resp []azureDetection
	if _, err := s.post(ctx, s.cfg, "/detect", url.Values{}, []azureText{{Text: text}}, &resp); err != nil {
		return "", 0, err
	}
	if len(resp) == 0 || resp[0].Language == "" {
		return "", 0, fmt.Errorf("no language detected")
	}
	return resp[0].Language, resp[0].Score, nil
}

// post sends body to the given API path and decodes the JSON reply into out.
// It returns the client trace id sent with the request.
func (s *AzureService) post(ctx context.Context, cfg ServiceConfig, path string, query url.Values, body, out any) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	query.Set("api-version", azureAPIVersion)
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + path + "?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	traceID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", cfg.APIKey)
	if cfg.Region != "" {
		httpReq.Header.Set("Ocp-Apim-Subscription-Region", cfg.Region)
	}
	httpReq.Header.Set("X-ClientTraceId", traceID)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return traceID, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return traceID, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr azureErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return traceID, fmt.Errorf("API returned status %d: %s (code %d)", resp.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
		}
		return traceID, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return traceID, fmt.Errorf("failed to decode response: %w", err)
	}
	return traceID, nil
}

func (s *AzureService) IsAvailable(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("Azure Translator key not configured")
	}
	return nil
}

// SupportedLanguages lists translation language codes. The /languages
// endpoint needs no subscription key.
func (s *AzureService) SupportedLanguages(ctx context.Context) ([]string, error) {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/languages?api-version=" + azureAPIVersion + "&scope=translation"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var languages struct {
		Translation map[string]json.RawMessage `json:"translation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&languages); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	codes := make([]string, 0, len(languages.Translation))
	for code := range languages.Translation {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}
