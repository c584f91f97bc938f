package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/valpere/doktran/internal"
	"github.com/valpere/doktran/internal/auth"
	"github.com/valpere/doktran/internal/blob"
	"github.com/valpere/doktran/internal/config"
	"github.com/valpere/doktran/internal/extract"
	"github.com/valpere/doktran/internal/orchestrator"
	"github.com/valpere/doktran/internal/speech"
	"github.com/valpere/doktran/internal/spreadsheet"
	"github.com/valpere/doktran/internal/store"
	"github.com/valpere/doktran/internal/translator"
)

type fakeTranslator struct {
	name string
	fail bool
}

func (f *fakeTranslator) Name() string { return f.name }

func (f *fakeTranslator) Translate(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	if f.fail {
		return &translator.ServiceResult{ServiceName: f.name, Error: "upstream down"}, errors.New("upstream down")
	}
	return &translator.ServiceResult{ServiceName: f.name, TranslatedText: "[" + req.TargetLang + "] " + req.Text}, nil
}

func (f *fakeTranslator) IsAvailable(ctx context.Context) error { return nil }

func (f *fakeTranslator) SupportedLanguages(ctx context.Context) ([]string, error) {
	return []string{"en", "de"}, nil
}

type fakeSynth struct {
	last speech.SpeechRequest
}

func (*fakeSynth) Name() string                          { return "fake" }
func (*fakeSynth) IsAvailable(ctx context.Context) error { return nil }

func (f *fakeSynth) Synthesize(ctx context.Context, req speech.SpeechRequest) (*speech.Audio, error) {
	f.last = req
	if strings.TrimSpace(req.Text) == "" {
		return nil, internal.ErrEmptyText
	}
	if req.Format != "" && req.Format != "mp3" {
		return nil, fmt.Errorf("%w %q", speech.ErrUnsupportedFormat, req.Format)
	}
	return &speech.Audio{Data: []byte("ID3" + req.Text), Format: "mp3", ContentType: "audio/mpeg", Provider: "fake"}, nil
}

type fixture struct {
	handler http.Handler
	store   *store.Store
	cfg     *config.Config
}

func newFixture(t *testing.T, mutate ...func(*config.Config, *Deps)) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.NewLocalStore(t.TempDir(), "/files/")
	require.NoError(t, err)

	authn, err := auth.New(context.Background(), auth.Config{}, log)
	require.NoError(t, err)

	reg := &translator.Registry{}
	reg.Add(&fakeTranslator{name: "primary"})
	reg.Add(&fakeTranslator{name: "second"})
	reg.Add(&fakeTranslator{name: "broken", fail: true})

	cfg := &config.Config{
		Server:    config.ServerConfig{MaxUploadBytes: 1 << 20, CORSOrigins: []string{"*"}},
		Translate: config.TranslateConfig{SourceLang: "auto", TargetLang: "en", Comparison: "second"},
		Excel:     config.ExcelConfig{Columns: []int{1}, TargetLang: "zh-Hans", SkipHeader: true},
	}
	deps := Deps{
		Config: cfg,
		Store:  st,
		Blobs:  blobs,
		Speech: &fakeSynth{},
		Auth:   authn,
		Logger: log,
	}
	for _, m := range mutate {
		m(cfg, &deps)
	}
	deps.Orchestrator = orchestrator.New(reg, st, orchestrator.Config{
		Primary:        "primary",
		Timeout:        5 * time.Second,
		SkipValidation: true,
	}, log)

	return &fixture{handler: New(deps).Router(), store: st, cfg: cfg}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		fw.Write(content)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestWelcomeAndHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome")

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTranslate_JSONAndHistory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{
		"text":        "Hello",
		"source_lang": "en",
		"target_lang": "de",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp translateResponse
	decode(t, rec, &resp)
	assert.Equal(t, "[de] Hello", resp.TranslatedText)
	assert.Equal(t, "primary", resp.Service)
	assert.Empty(t, resp.Warnings)
	require.NotEmpty(t, resp.ID)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/history/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stored internal.TranslationRecord
	decode(t, rec, &stored)
	assert.Equal(t, "Hello", stored.SourceText)
	assert.Equal(t, "[de] Hello", stored.TranslatedText)
	assert.Equal(t, auth.Anonymous, stored.User)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/history?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Records []internal.TranslationRecord `json:"records"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Records, 1)

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/history/"+resp.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/history/"+resp.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/history?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranslate_Validation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{"text": "Hello"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["error"], "target_lang")

	rec = f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{"target_lang": "de"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader("{not json"))
	rec = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{
		"text": "Hello", "target_lang": "de", "service": "deepl",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranslate_FileUpload(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, multipartRequest(t, "/api/translate", "notes.txt", []byte("Hello file"), map[string]string{
		"target_lang": "de",
		"source_lang": "en",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp translateResponse
	decode(t, rec, &resp)
	assert.Equal(t, "[de] Hello file", resp.TranslatedText)
	assert.Equal(t, "notes.txt", resp.Filename)
	require.True(t, strings.HasPrefix(resp.SourceURL, "/files/uploads/"), resp.SourceURL)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, resp.SourceURL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello file", rec.Body.String())
}

func TestFiles_ServedAsAttachments(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, multipartRequest(t, "/api/translate", "evil.html", []byte("<p>Hello</p><script>alert(1)</script>"), map[string]string{
		"target_lang": "de",
		"source_lang": "en",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp translateResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.SourceURL)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, resp.SourceURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment"), rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "sandbox", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/files/uploads/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTranslate_InvalidDocuments(t *testing.T) {
	f := newFixture(t)

	for name, content := range map[string][]byte{
		"bad.txt":  {0xff, 0xfe, 0x61},
		"bad.docx": []byte("not a zip"),
	} {
		rec := f.do(t, multipartRequest(t, "/api/translate", name, content, map[string]string{"target_lang": "de"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name+": "+rec.Body.String())
	}

	rec := f.do(t, multipartRequest(t, "/api/translate/excel", "book.xlsx", []byte("corrupt workbook"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestOversizedJSONBodies(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config, _ *Deps) {
		cfg.Server.MaxUploadBytes = 16
	})
	huge := strings.Repeat("a", multipartSlack+1024)

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/glossary", map[string]string{
		"source_lang": "en", "target_lang": "de", "source_term": huge, "target_term": "x",
	}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = f.do(t, jsonRequest(t, http.MethodPost, "/api/speech", map[string]string{"text": huge}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestTranslate_FileErrors(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config, _ *Deps) {
		cfg.Server.MaxUploadBytes = 16
	})

	rec := f.do(t, multipartRequest(t, "/api/translate", "image.png", []byte("png"), map[string]string{"target_lang": "de"}))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = f.do(t, multipartRequest(t, "/api/translate", "big.txt", bytes.Repeat([]byte("a"), 100), map[string]string{"target_lang": "de"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestTranslate_Comparison(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{
		"text": "Hello", "source_lang": "en", "target_lang": "de", "compare": true,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp translateResponse
	decode(t, rec, &resp)
	require.NotNil(t, resp.Comparison)
	assert.Equal(t, "second", resp.Comparison.Service)
	assert.Equal(t, "[de] Hello", resp.Comparison.TranslatedText)

	rec = f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{
		"text": "Hello", "source_lang": "en", "target_lang": "de", "comparison_service": "broken",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &resp)
	require.NotNil(t, resp.Comparison)
	assert.Contains(t, resp.Comparison.Error, "upstream down")

	rec2, err := f.store.GetRecord(context.Background(), resp.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "broken", rec2.ComparisonService)
	assert.NotEmpty(t, rec2.ComparisonError)
}

func TestTranslate_ProviderFailure(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{
		"text": "Hello", "source_lang": "en", "target_lang": "de", "service": "broken",
	}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTranslate_WithSpeech(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{
		"text": "Hello", "source_lang": "en", "target_lang": "de", "speech": true,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp translateResponse
	decode(t, rec, &resp)
	require.True(t, strings.HasPrefix(resp.AudioURL, "/files/audio/"), resp.AudioURL)
	assert.True(t, strings.HasSuffix(resp.AudioURL, ".mp3"))

	rec = f.do(t, httptest.NewRequest(http.MethodGet, resp.AudioURL, nil))
	assert.Equal(t, "ID3[de] Hello", rec.Body.String())
}

func TestTranslate_SpeechVoiceLeftToSynthesizer(t *testing.T) {
	synth := &fakeSynth{}
	f := newFixture(t, func(cfg *config.Config, d *Deps) {
		cfg.Speech.Voice = "en-US-JennyNeural"
		d.Speech = synth
	})

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/translate", map[string]any{
		"text": "Hello", "source_lang": "en", "target_lang": "zh-Hans", "speech": true,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "zh-Hans", synth.last.Lang)
	assert.Empty(t, synth.last.Voice)
}

func TestSpeech(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/speech", map[string]any{"text": "Hei", "lang": "fi"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ID3Hei", rec.Body.String())

	rec = f.do(t, jsonRequest(t, http.MethodPost, "/api/speech", map[string]any{"text": " "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, jsonRequest(t, http.MethodPost, "/api/speech", map[string]any{"text": "Hei", "format": "xyz"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	disabled := newFixture(t, func(_ *config.Config, d *Deps) { d.Speech = nil })
	rec = disabled.do(t, jsonRequest(t, http.MethodPost, "/api/speech", map[string]any{"text": "Hei"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTranslateHTML(t *testing.T) {
	f := newFixture(t)

	page := `<html><head><title>T</title></head><body><p>Hello</p><script>var x = 1;</script></body></html>`
	rec := f.do(t, multipartRequest(t, "/api/translate/html", "page.html", []byte(page), map[string]string{
		"source_lang": "en",
		"target_lang": "de",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		TranslatedHTML string `json:"translated_html"`
	}
	decode(t, rec, &body)
	assert.Contains(t, body.TranslatedHTML, "<p>[de] Hello</p>")
	assert.Contains(t, body.TranslatedHTML, "<script>var x = 1;</script>")
	assert.Contains(t, body.TranslatedHTML, "<title>T</title>")

	rec = f.do(t, multipartRequest(t, "/api/translate/html", "", nil, map[string]string{"target_lang": "de"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()
	wb.SetCellValue("Sheet1", "A1", "ID")
	wb.SetCellValue("Sheet1", "B1", "Comment")
	wb.SetCellValue("Sheet1", "A2", "1")
	wb.SetCellValue("Sheet1", "B2", "Good")
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestTranslateExcel(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, multipartRequest(t, "/api/translate/excel", "book.xlsx", buildWorkbook(t), map[string]string{"source_lang": "en"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "translated_book.xlsx")
	assert.NotEmpty(t, rec.Header().Get("X-Result-URL"))

	out, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer out.Close()
	header, _ := out.GetCellValue("Sheet1", "B1")
	cell, _ := out.GetCellValue("Sheet1", "B2")
	assert.Equal(t, "Comment", header)
	assert.Equal(t, "[zh-Hans] Good", cell)

	rec = f.do(t, multipartRequest(t, "/api/translate/excel", "book.xlsx", buildWorkbook(t), map[string]string{"columns": "13,14"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing columns")

	rec = f.do(t, multipartRequest(t, "/api/translate/excel", "book.csv", []byte("a,b"), nil))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestGlossaryEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, jsonRequest(t, http.MethodPost, "/api/glossary", map[string]string{
		"source_lang": "en", "target_lang": "de", "source_term": "pull request", "target_term": "Pull-Request",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry store.GlossaryEntry
	decode(t, rec, &entry)
	require.NotEmpty(t, entry.ID)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/glossary?target_lang=de", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Terms []store.GlossaryEntry `json:"terms"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Terms, 1)

	rec = f.do(t, jsonRequest(t, http.MethodPost, "/api/glossary", map[string]string{"source_lang": "en", "target_lang": "de"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/glossary/"+entry.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/glossary/"+entry.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLanguages(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/languages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Service   string   `json:"service"`
		Languages []string `json:"languages"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "primary", body.Service)
	assert.Equal(t, []string{"en", "de"}, body.Languages)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/api/languages?service=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthEndpoints_Disabled(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), auth.Anonymous)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", errBadRequest), http.StatusBadRequest},
		{internal.ErrEmptyText, http.StatusBadRequest},
		{&spreadsheet.MissingColumnsError{Columns: []int{9}}, http.StatusBadRequest},
		{fmt.Errorf("record: %w", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("extract a.docx: %w: %w", extract.ErrInvalidDocument, errors.New("zip: not a valid zip file")), http.StatusBadRequest},
		{spreadsheet.ErrInvalidWorkbook, http.StatusBadRequest},
		{spreadsheet.ErrNoColumns, http.StatusBadRequest},
		{fmt.Errorf("%w %q", speech.ErrUnsupportedFormat, "xyz"), http.StatusBadRequest},
		{extract.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{extract.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{&orchestrator.ProviderError{Service: "azure", Err: errors.New("x")}, http.StatusBadGateway},
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
