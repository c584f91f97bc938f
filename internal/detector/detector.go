// Package detector identifies the language of a text locally, without a
// network round trip. It is the fallback when the translation provider
// cannot detect the source language itself.
package detector

import (
	"context"
	"errors"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// ErrUndetermined is returned when the text is empty or ambiguous.
var ErrUndetermined = errors.New("language could not be determined")

// Detector wraps a lingua language detector. Building one loads language
// models into memory, so a single instance should be shared.
type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over all languages lingua knows.
func New() *Detector {
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build(),
	}
}

// NewFor builds a detector restricted to the given ISO 639-1 codes. Unknown
// codes are ignored; fewer than two known codes falls back to all languages.
func NewFor(codes ...string) *Detector {
	var langs []lingua.Language
	for _, code := range codes {
		lang := lingua.GetLanguageFromIsoCode639_1(lingua.GetIsoCode639_1FromValue(strings.ToLower(code)))
		if lang != lingua.Unknown {
			langs = append(langs, lang)
		}
	}
	if len(langs) < 2 {
		return New()
	}
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(langs...).
			Build(),
	}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lowercase ISO 639-1 code of text.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// DetectLanguage reports the language of text and lingua's confidence in it.
// The context is accepted so the detector can stand in for a remote provider.
func (d *Detector) DetectLanguage(_ context.Context, text string) (string, float64, error) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", 0, ErrUndetermined
	}
	score := d.detector.ComputeLanguageConfidence(text, lang)
	return strings.ToLower(lang.IsoCode639_1().String()), score, nil
}
