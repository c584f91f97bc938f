package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/valpere/doktran/internal"
	"github.com/valpere/doktran/internal/auth"
	"github.com/valpere/doktran/internal/blob"
	"github.com/valpere/doktran/internal/extract"
	"github.com/valpere/doktran/internal/htmldoc"
	"github.com/valpere/doktran/internal/orchestrator"
	"github.com/valpere/doktran/internal/speech"
	"github.com/valpere/doktran/internal/spreadsheet"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	multipartMemory = 32 << 20
)

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Service    string `json:"service"`
	Compare    bool   `json:"compare"`
	Comparison string `json:"comparison_service"`
	Speech     bool   `json:"speech"`
	Voice      string `json:"voice"`
	NoCache    bool   `json:"no_cache"`

	filename string
	data     []byte
}

type comparisonResponse struct {
	Service        string `json:"service"`
	TranslatedText string `json:"translated_text,omitempty"`
	Error          string `json:"error,omitempty"`
}

type translateResponse struct {
	ID             string              `json:"id,omitempty"`
	TranslatedText string              `json:"translated_text"`
	SourceLang     string              `json:"source_lang"`
	DetectedLang   string              `json:"detected_lang,omitempty"`
	TargetLang     string              `json:"target_lang"`
	Service        string              `json:"service"`
	Cached         bool                `json:"cached"`
	Chunks         int                 `json:"chunks"`
	Filename       string              `json:"filename,omitempty"`
	SourceURL      string              `json:"source_url,omitempty"`
	AudioURL       string              `json:"audio_url,omitempty"`
	Comparison     *comparisonResponse `json:"comparison,omitempty"`
	Warnings       []string            `json:"warnings"`
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func formBool(r *http.Request, key string, def bool) bool {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// parseForm parses multipart or urlencoded bodies, surfacing size errors
// unchanged so they map to 413.
func parseForm(r *http.Request) error {
	var err error
	if isMultipart(r) {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err == nil {
		return nil
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// readUpload returns the named multipart file, or ok=false when absent.
func (s *Server) readUpload(r *http.Request, field string) (name string, data []byte, ok bool, err error) {
	file, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer file.Close()

	data, err = extract.ReadLimited(file, s.cfg.Server.MaxUploadBytes)
	if err != nil {
		return "", nil, false, err
	}
	return filepath.Base(hdr.Filename), data, true, nil
}

func (s *Server) parseTranslateRequest(r *http.Request) (*translateRequest, error) {
	req := &translateRequest{}

	if isMultipart(r) || isForm(r) {
		if err := parseForm(r); err != nil {
			return nil, err
		}
		req.Text = r.FormValue("text")
		req.SourceLang = r.FormValue("source_lang")
		req.TargetLang = r.FormValue("target_lang")
		req.Service = r.FormValue("service")
		req.Comparison = r.FormValue("comparison_service")
		req.Voice = r.FormValue("voice")
		req.Compare = formBool(r, "compare", false)
		req.Speech = formBool(r, "speech", false)
		req.NoCache = formBool(r, "no_cache", false)

		if isMultipart(r) {
			name, data, ok, err := s.readUpload(r, "file")
			if err != nil {
				return nil, err
			}
			if ok {
				req.filename, req.data = name, data
			}
		}
	} else {
		if err := decodeJSON(r, req); err != nil {
			return nil, err
		}
	}

	if req.TargetLang == "" {
		return nil, fmt.Errorf("%w: target_lang is required", errBadRequest)
	}
	if req.SourceLang == "" {
		req.SourceLang = s.cfg.Translate.SourceLang
	}
	if req.data == nil && strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: provide a file or text", errBadRequest)
	}
	if req.Comparison == "" && req.Compare {
		req.Comparison = s.cfg.Translate.Comparison
		if req.Comparison == "" {
			return nil, fmt.Errorf("%w: no comparison service configured", errBadRequest)
		}
	}
	return req, nil
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := s.parseTranslateRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	log := s.log.WithField("user", auth.UserFrom(ctx).ID)
	rec := &internal.TranslationRecord{
		User:       auth.UserFrom(ctx).ID,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
	}
	warnings := []string{}

	text := req.Text
	if req.data != nil {
		doc, err := extract.Extract(ctx, req.filename, req.data)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		text = doc.Text
		rec.Filename = req.filename

		url, err := s.blobs.Put(ctx, blob.NewKey("uploads", req.filename), contentTypeFor(req.filename), req.data)
		if err != nil {
			log.WithError(err).Warn("Failed to store upload")
			warnings = append(warnings, "source document was not stored")
		} else {
			rec.SourceURL = url
		}
	}

	outcome, err := s.orch.Translate(ctx, orchestrator.Job{
		Text:       text,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Service:    req.Service,
		Comparison: req.Comparison,
		SkipMemory: req.NoCache,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	warnings = append(warnings, outcome.Warnings...)

	rec.SourceText = text
	rec.TranslatedText = outcome.Text
	rec.DetectedLang = outcome.DetectedLang
	rec.PrimaryService = outcome.Service
	if outcome.Comparison != nil {
		rec.ComparisonService = outcome.Comparison.ServiceName
		rec.ComparisonText = outcome.Comparison.TranslatedText
		rec.ComparisonError = outcome.Comparison.Error
	}

	if req.Speech {
		url, err := s.synthesizeAndStore(ctx, outcome.Text, req.TargetLang, req.Voice)
		if err != nil {
			log.WithError(err).Warn("Speech synthesis failed")
			warnings = append(warnings, "speech: "+err.Error())
		} else {
			rec.AudioURL = url
		}
	}

	if err := s.store.SaveRecord(ctx, rec); err != nil {
		log.WithError(err).Warn("Failed to save translation record")
		warnings = append(warnings, "translation was not saved to history")
		rec.ID = ""
	}

	resp := translateResponse{
		ID:             rec.ID,
		TranslatedText: outcome.Text,
		SourceLang:     outcome.SourceLang,
		DetectedLang:   outcome.DetectedLang,
		TargetLang:     req.TargetLang,
		Service:        outcome.Service,
		Cached:         outcome.Cached,
		Chunks:         outcome.Chunks,
		Filename:       rec.Filename,
		SourceURL:      rec.SourceURL,
		AudioURL:       rec.AudioURL,
		Warnings:       warnings,
	}
	if outcome.Comparison != nil {
		resp.Comparison = &comparisonResponse{
			Service:        outcome.Comparison.ServiceName,
			TranslatedText: outcome.Comparison.TranslatedText,
			Error:          outcome.Comparison.Error,
		}
	}
	jsonResponse(w, resp, http.StatusOK)
}

var errSpeechDisabled = errors.New("speech synthesis is not configured")

func (s *Server) synthesize(ctx context.Context, text, lang, voice, format string) (*speech.Audio, error) {
	if s.synth == nil {
		return nil, errSpeechDisabled
	}
	return s.synth.Synthesize(ctx, speech.SpeechRequest{Text: text, Lang: lang, Voice: voice, Format: format})
}

func (s *Server) synthesizeAndStore(ctx context.Context, text, lang, voice string) (string, error) {
	audio, err := s.synthesize(ctx, text, lang, voice, "")
	if err != nil {
		return "", err
	}
	return s.blobs.Put(ctx, blob.NewKey("audio", "speech."+audio.Format), audio.ContentType, audio.Data)
}

type speechRequest struct {
	Text   string `json:"text"`
	Lang   string `json:"lang"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	audio, err := s.synthesize(r.Context(), req.Text, req.Lang, req.Voice, req.Format)
	if errors.Is(err, errSpeechDisabled) {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			s.log.WithError(err).Warn("Speech synthesis failed")
			jsonError(w, err.Error(), http.StatusBadGateway)
			return
		}
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="speech.%s"`, audio.Format))
	w.Write(audio.Data)
}

func (s *Server) handleTranslateHTML(w http.ResponseWriter, r *http.Request) {
	var data []byte
	var ok bool
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/html") {
		data, err = extract.ReadLimited(r.Body, s.cfg.Server.MaxUploadBytes)
		ok = err == nil
	} else if err = parseForm(r); err == nil {
		_, data, ok, err = s.readUpload(r, "file")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		if v := r.FormValue("html"); v != "" {
			data = []byte(v)
		} else {
			s.fail(w, r, fmt.Errorf("%w: file is required", errBadRequest))
			return
		}
	}

	job := orchestrator.Job{
		SourceLang: orDefault(r.FormValue("source_lang"), s.cfg.Translate.SourceLang, "auto"),
		TargetLang: orDefault(r.FormValue("target_lang"), s.cfg.Translate.TargetLang),
		Service:    r.FormValue("service"),
	}
	res, err := htmldoc.Translate(r.Context(), data, s.orch.CellFunc(job))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, map[string]any{
		"translated_html": res.HTML,
		"segments":        res.Segments,
	}, http.StatusOK)
}

func parseColumns(v string) ([]int, error) {
	var cols []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid column %q", errBadRequest, part)
		}
		cols = append(cols, n)
	}
	return cols, nil
}

func (s *Server) handleTranslateExcel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := parseForm(r); err != nil {
		s.fail(w, r, err)
		return
	}
	name, data, ok, err := s.readUpload(r, "file")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: file is required", errBadRequest))
		return
	}
	if format, err := extract.Detect(name); err != nil || format != extract.FormatSpreadsheet {
		s.fail(w, r, fmt.Errorf("%w: expected an .xlsx workbook", extract.ErrUnsupportedFormat))
		return
	}

	job := orchestrator.Job{
		SourceLang: orDefault(r.FormValue("source_lang"), s.cfg.Translate.SourceLang),
		TargetLang: orDefault(r.FormValue("target_lang"), s.cfg.Excel.TargetLang),
		Service:    r.FormValue("service"),
	}
	fn := s.orch.CellFunc(job)

	var res *spreadsheet.Result
	if formBool(r, "highlighted", false) {
		res, err = spreadsheet.TranslateHighlighted(ctx, data, fn)
	} else {
		cols := s.cfg.Excel.Columns
		if v := r.FormValue("columns"); v != "" {
			if cols, err = parseColumns(v); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		res, err = spreadsheet.TranslateColumns(ctx, data, cols, formBool(r, "skip_header", s.cfg.Excel.SkipHeader), fn)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	outName := "translated_" + name
	if url, err := s.blobs.Put(ctx, blob.NewKey("outputs", outName), xlsxContentType, res.Data); err != nil {
		s.log.WithError(err).Warn("Failed to store translated workbook")
	} else {
		w.Header().Set("X-Result-URL", url)
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, outName))
	w.Header().Set("X-Translated-Cells", strconv.Itoa(res.Cells))
	w.Write(res.Data)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	service := orDefault(r.URL.Query().Get("service"), s.orch.Primary())
	langs, err := s.orch.Languages(r.Context(), service)
	if err != nil {
		if !errors.Is(err, orchestrator.ErrUnknownService) {
			err = &orchestrator.ProviderError{Service: service, Err: err}
		}
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, map[string]any{"service": service, "languages": langs}, http.StatusOK)
}

func orDefault(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
