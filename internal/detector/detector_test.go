package detector

import (
	"context"
	"errors"
	"testing"
)

// One shared instance: building a detector over all languages is slow.
var shared = New()

func TestDetector_DetectISO(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCode string
		wantOK   bool
	}{
		{"empty text", "", "", false},
		{"whitespace", "   \n", "", false},
		{"english text", "Hello, this is a test in English.", "en", true},
		{"ukrainian text", "Привіт, це тест українською мовою.", "uk", true},
		{"german text", "Hallo, das ist ein Test auf Deutsch.", "de", true},
		{"finnish text", "Tämä on testi suomen kielellä, kiitos paljon.", "fi", true},
		{"spanish text", "Hola, esto es una prueba en español.", "es", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := shared.DetectISO(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("DetectISO(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if tt.wantOK && code != tt.wantCode {
				t.Errorf("DetectISO(%q) = %q, want %q", tt.text, code, tt.wantCode)
			}
		})
	}
}

func TestDetector_DetectLanguage(t *testing.T) {
	lang, score, err := shared.DetectLanguage(context.Background(), "Bonjour, ceci est un test en français.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lang != "fr" {
		t.Errorf("expected fr, got %q", lang)
	}
	if score <= 0 || score > 1 {
		t.Errorf("confidence out of range: %v", score)
	}
}

func TestDetector_DetectLanguage_Empty(t *testing.T) {
	_, _, err := shared.DetectLanguage(context.Background(), "")
	if !errors.Is(err, ErrUndetermined) {
		t.Errorf("expected ErrUndetermined, got %v", err)
	}
}

func TestNewFor_Restricted(t *testing.T) {
	d := NewFor("en", "zh", "fi")
	code, ok := d.DetectISO("Hyvää huomenta, miten voit tänään?")
	if !ok || code != "fi" {
		t.Errorf("expected fi, got %q (ok=%v)", code, ok)
	}
}

func TestNewFor_FallsBackToAll(t *testing.T) {
	d := NewFor("xx")
	if d == nil || d.detector == nil {
		t.Fatal("expected a usable detector")
	}
}
