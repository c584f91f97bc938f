package internal

import "time"

// Version is reported by the CLI and the HTTP welcome page.
const Version = "0.3.0"

// TranslationRecord is one persisted translation request and its outcome.
type TranslationRecord struct {
	ID                string    `json:"id"`
	User              string    `json:"user"`
	Filename          string    `json:"filename,omitempty"`
	SourceLang        string    `json:"source_lang"`
	DetectedLang      string    `json:"detected_lang,omitempty"`
	TargetLang        string    `json:"target_lang"`
	SourceText        string    `json:"source_text"`
	TranslatedText    string    `json:"translated_text"`
	PrimaryService    string    `json:"primary_service"`
	ComparisonService string    `json:"comparison_service,omitempty"`
	ComparisonText    string    `json:"comparison_text,omitempty"`
	ComparisonError   string    `json:"comparison_error,omitempty"`
	SourceURL         string    `json:"source_url,omitempty"`
	AudioURL          string    `json:"audio_url,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
