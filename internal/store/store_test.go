package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/valpere/doktran/internal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_New_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	rec := &internal.TranslationRecord{SourceLang: "en", TargetLang: "fr", SourceText: "Hi", TranslatedText: "Salut", PrimaryService: "azure"}
	if err := s.SaveRecord(context.Background(), rec); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	if _, err := s.GetRecord(context.Background(), rec.ID, ""); err != nil {
		t.Errorf("record lost after reopen: %v", err)
	}
}

func TestStore_SaveAndGetRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &internal.TranslationRecord{
		User:              "alice@example.com",
		Filename:          "letter.docx",
		SourceLang:        "auto",
		DetectedLang:      "en",
		TargetLang:        "uk",
		SourceText:        "Hello world",
		TranslatedText:    "Привіт, світе",
		PrimaryService:    "azure",
		ComparisonService: "openai",
		ComparisonText:    "Привіт світ",
		AudioURL:          "/files/audio/x.mp3",
	}
	if err := s.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated ID")
	}
	if rec.Timestamp.IsZero() {
		t.Fatal("expected generated timestamp")
	}

	got, err := s.GetRecord(ctx, rec.ID, "")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.TranslatedText != rec.TranslatedText || got.DetectedLang != "en" || got.ComparisonText != rec.ComparisonText {
		t.Errorf("unexpected record %+v", got)
	}
	if got.AudioURL != rec.AudioURL || got.Filename != "letter.docx" {
		t.Errorf("unexpected urls/filename %+v", got)
	}
}

func TestStore_GetRecord_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRecord(context.Background(), "missing", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_GetRecord_OtherUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &internal.TranslationRecord{User: "alice", SourceLang: "en", TargetLang: "de", SourceText: "a", TranslatedText: "b", PrimaryService: "azure"}
	if err := s.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	if _, err := s.GetRecord(ctx, rec.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}
	if _, err := s.GetRecord(ctx, rec.ID, "alice"); err != nil {
		t.Errorf("expected owner to see record, got %v", err)
	}
}

func TestStore_ListRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, user := range []string{"alice", "bob", "alice", "alice"} {
		rec := &internal.TranslationRecord{
			User:           user,
			SourceLang:     "en",
			TargetLang:     "fr",
			SourceText:     "text",
			TranslatedText: "texte",
			PrimaryService: "azure",
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveRecord(ctx, rec); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	all, err := s.ListRecords(ctx, 0, 0, "")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 records, got %d", len(all))
	}
	if !all[0].Timestamp.After(all[3].Timestamp) {
		t.Error("expected newest first")
	}

	alice, err := s.ListRecords(ctx, 2, 0, "alice")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(alice) != 2 {
		t.Fatalf("expected 2 records with limit, got %d", len(alice))
	}
	for _, r := range alice {
		if r.User != "alice" {
			t.Errorf("unexpected user %q", r.User)
		}
	}

	page2, err := s.ListRecords(ctx, 2, 2, "alice")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(page2) != 1 {
		t.Errorf("expected 1 record on second page, got %d", len(page2))
	}
}

func TestStore_DeleteRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &internal.TranslationRecord{User: "alice", SourceLang: "en", TargetLang: "fr", SourceText: "a", TranslatedText: "b", PrimaryService: "azure"}
	if err := s.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	if err := s.DeleteRecord(ctx, rec.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting another user's record, got %v", err)
	}
	if err := s.DeleteRecord(ctx, rec.ID, "alice"); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if err := s.DeleteRecord(ctx, rec.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStore_GetCachedTranslation_Miss(t *testing.T) {
	s := newTestStore(t)

	text, found, err := s.GetCachedTranslation(context.Background(), "Hello", "en", "uk")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if found {
		t.Error("expected not found for uncached translation")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestStore_GetCachedTranslation_Hit(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveToMemory(context.Background(), "Hello", "en", "uk", "Привіт", "azure")
	if err != nil {
		t.Fatalf("SaveToMemory failed: %v", err)
	}

	// Whitespace differences share the cache key.
	text, found, err := s.GetCachedTranslation(context.Background(), "  Hello\n", "en", "uk")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if !found {
		t.Error("expected to find cached translation")
	}
	if text != "Привіт" {
		t.Errorf("expected 'Привіт', got %q", text)
	}

	entries, _ := s.ListMemory(context.Background())
	if len(entries) != 1 || entries[0].UsageCount != 2 {
		t.Errorf("expected usage count 2 after hit, got %+v", entries)
	}
}

func TestStore_GetCachedTranslation_Invalidated(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveToMemory(context.Background(), "Hello", "en", "uk", "Привіт", "azure")
	if err != nil {
		t.Fatalf("SaveToMemory failed: %v", err)
	}

	entries, err := s.ListMemory(context.Background())
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	err = s.InvalidateMemory(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("InvalidateMemory failed: %v", err)
	}

	text, found, err := s.GetCachedTranslation(context.Background(), "Hello", "en", "uk")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if found {
		t.Error("expected not found for invalidated translation")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Errorf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 0 {
		t.Errorf("expected 0 total entries, got %d", stats.TotalEntries)
	}

	s.SaveToMemory(context.Background(), "Hello", "en", "uk", "Привіт", "azure")
	s.SaveToMemory(context.Background(), "World", "en", "uk", "Світ", "azure")

	stats, err = s.Stats(context.Background())
	if err != nil {
		t.Errorf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 2 {
		t.Errorf("expected 2 total entries, got %d", stats.TotalEntries)
	}
	if stats.ActiveEntries != 2 {
		t.Errorf("expected 2 active entries, got %d", stats.ActiveEntries)
	}
}

func TestStore_DeleteMemory(t *testing.T) {
	s := newTestStore(t)

	s.SaveToMemory(context.Background(), "Hello", "en", "uk", "Привіт", "azure")

	entries, err := s.ListMemory(context.Background())
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	if err := s.DeleteMemory(context.Background(), entries[0].ID); err != nil {
		t.Errorf("DeleteMemory failed: %v", err)
	}
	if err := s.DeleteMemory(context.Background(), entries[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	entries, err = s.ListMemory(context.Background())
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries after delete, got %d", len(entries))
	}
}

func TestStore_ClearMemory(t *testing.T) {
	s := newTestStore(t)

	s.SaveToMemory(context.Background(), "Hello", "en", "uk", "Привіт", "azure")
	s.SaveToMemory(context.Background(), "World", "en", "uk", "Світ", "azure")

	count, err := s.ClearMemory(context.Background())
	if err != nil {
		t.Errorf("ClearMemory failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 cleared, got %d", count)
	}

	entries, err := s.ListMemory(context.Background())
	if err != nil {
		t.Fatalf("ListMemory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries after clear, got %d", len(entries))
	}
}

func TestStore_MultipleLanguagePairs(t *testing.T) {
	s := newTestStore(t)

	s.SaveToMemory(context.Background(), "Hello", "en", "uk", "Привіт", "azure")
	s.SaveToMemory(context.Background(), "Hello", "en", "de", "Hallo", "azure")
	s.SaveToMemory(context.Background(), "Hello", "en", "fr", "Bonjour", "azure")

	text, found, _ := s.GetCachedTranslation(context.Background(), "Hello", "en", "uk")
	if !found || text != "Привіт" {
		t.Errorf("en->uk: expected found=true and 'Привіт', got found=%v and %q", found, text)
	}

	text, found, _ = s.GetCachedTranslation(context.Background(), "Hello", "en", "de")
	if !found || text != "Hallo" {
		t.Errorf("en->de: expected found=true and 'Hallo', got found=%v and %q", found, text)
	}

	_, found, _ = s.GetCachedTranslation(context.Background(), "Hello", "en", "es")
	if found {
		t.Error("en->es: expected not found")
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Hello  ", "Hello"},
		{"e\u0301", "\u00e9"}, // NFC composes e + combining acute
		{"\t\nHello\t\n", "Hello"},
		{"", ""},
	}

	for _, tt := range tests {
		result := normalizeText(tt.input)
		if result != tt.expected {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
