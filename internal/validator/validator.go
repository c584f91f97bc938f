// Package validator checks that a translation result is in the expected target language.
package validator

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/valpere/doktran/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// Validator checks that a translation result is written in the expected target language.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator on top of an existing detector.
func New(det *detector.Detector) *Validator {
	if det == nil {
		det = detector.New()
	}
	return &Validator{det: det}
}

// IsValid returns true when translatedText appears to be written in targetLang.
//
// targetLang may be a full BCP 47 tag ("zh-Hans", "pt-BR"); only its base
// language is compared. Short texts and texts whose language cannot be
// determined pass without error.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	if targetLang == "" {
		return true, nil
	}

	text := strings.TrimSpace(translatedText)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}

	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	want := BaseLanguage(targetLang)
	if !strings.EqualFold(detected, want) {
		return false, fmt.Errorf("expected %s but detected %s", want, detected)
	}
	return true, nil
}

// BaseLanguage reduces a BCP 47 tag to its ISO 639 base ("zh-Hans" -> "zh").
// Tags x/text cannot parse are returned lowercased up to the first separator.
func BaseLanguage(tag string) string {
	if t, err := language.Parse(tag); err == nil {
		base, _ := t.Base()
		return base.String()
	}
	tag = strings.ToLower(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}
