// Package orchestrator runs the translation pipeline: language resolution,
// glossary protection, chunked translation with the primary provider, an
// optional concurrent comparison provider and target-language validation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/doktran/internal"
	"github.com/valpere/doktran/internal/chunker"
	"github.com/valpere/doktran/internal/detector"
	"github.com/valpere/doktran/internal/glossary"
	"github.com/valpere/doktran/internal/metrics"
	"github.com/valpere/doktran/internal/translator"
	"github.com/valpere/doktran/internal/validator"
)

const (
	DefaultTimeout = 60 * time.Second

	// detectionSample bounds the text sent for language detection.
	detectionSample = 1000
)

var (
	ErrInvalidJob     = errors.New("invalid translation job")
	ErrUnknownService = errors.New("unknown translation service")
)

// ProviderError reports a failed primary translation.
type ProviderError struct {
	Service string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s translation failed: %v", e.Service, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Storage is the persistence the pipeline reads glossary terms from and
// caches finished translations in. *store.Store implements it.
type Storage interface {
	GetGlossaryTerms(ctx context.Context, sourceLang, targetLang string) (map[string]string, error)
	GetCachedTranslation(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error)
	SaveToMemory(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error
}

type Config struct {
	// Primary is the default provider; empty picks the first registered one.
	Primary string
	// Timeout bounds each provider call.
	Timeout        time.Duration
	MaxChunkChars  int
	ContextWords   int
	SkipValidation bool
	SkipMemory     bool
	// DetectLanguages restricts local detection to these ISO 639-1 codes;
	// fewer than two means every language.
	DetectLanguages []string
}

// Job is one translation request.
type Job struct {
	Text       string
	SourceLang string
	TargetLang string
	// Service overrides Config.Primary.
	Service string
	// Comparison names a second provider to translate the same text.
	Comparison     string
	SkipMemory     bool
	SkipValidation bool
}

type Outcome struct {
	Text         string
	SourceLang   string
	DetectedLang string
	Confidence   float64
	Service      string
	Chunks       int
	Cached       bool
	Latency      time.Duration

	// Comparison is set when the job asked for one; its Error field carries
	// the failure, if any.
	Comparison *translator.ServiceResult

	Warnings []string
}

type Orchestrator struct {
	registry  *translator.Registry
	storage   Storage
	detector  *detector.Detector
	validator *validator.Validator
	config    Config
	log       *logrus.Logger
}

// New builds an Orchestrator. storage may be nil, which disables glossary
// lookup and translation memory.
func New(registry *translator.Registry, storage Storage, config Config, log *logrus.Logger) *Orchestrator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxChunkChars <= 0 {
		config.MaxChunkChars = chunker.DefaultMaxChars
	}
	if config.ContextWords <= 0 {
		config.ContextWords = chunker.DefaultContextWords
	}
	if config.Primary == "" {
		if names := registry.Names(); len(names) > 0 {
			config.Primary = names[0]
		}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	det := detector.NewFor(config.DetectLanguages...)
	o := &Orchestrator{
		registry: registry,
		storage:  storage,
		detector: det,
		config:   config,
		log:      log,
	}
	if !config.SkipValidation {
		o.validator = validator.New(det)
	}
	return o
}

// Primary returns the name of the default provider.
func (o *Orchestrator) Primary() string {
	return o.config.Primary
}

func (o *Orchestrator) service(name string) (translator.TranslationService, error) {
	if name == "" {
		name = o.config.Primary
	}
	svc, err := o.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return svc, nil
}

// Languages lists the language codes the named provider supports.
func (o *Orchestrator) Languages(ctx context.Context, service string) ([]string, error) {
	svc, err := o.service(service)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()
	return svc.SupportedLanguages(ctx)
}

func (o *Orchestrator) Translate(ctx context.Context, job Job) (*Outcome, error) {
	start := time.Now()

	if strings.TrimSpace(job.Text) == "" {
		return nil, internal.ErrEmptyText
	}
	if strings.TrimSpace(job.TargetLang) == "" {
		return nil, fmt.Errorf("%w: target language is required", ErrInvalidJob)
	}
	if job.SourceLang == "" {
		job.SourceLang = "auto"
	}

	primary, err := o.service(job.Service)
	if err != nil {
		return nil, err
	}
	var comparison translator.TranslationService
	if job.Comparison != "" {
		if comparison, err = o.service(job.Comparison); err != nil {
			return nil, err
		}
	}

	outcome := &Outcome{
		SourceLang: job.SourceLang,
		Service:    primary.Name(),
	}
	defer func() {
		outcome.Latency = time.Since(start)
	}()

	log := o.log.WithFields(logrus.Fields{
		"service":     primary.Name(),
		"source_lang": job.SourceLang,
		"target_lang": job.TargetLang,
		"chars":       len([]rune(job.Text)),
	})

	if job.SourceLang == "auto" {
		o.resolveSource(ctx, primary, job.Text, outcome)
		log = log.WithField("detected_lang", outcome.DetectedLang)
	}

	useMemory := o.storage != nil && !o.config.SkipMemory && !job.SkipMemory
	if useMemory && comparison == nil {
		cached, ok, err := o.storage.GetCachedTranslation(ctx, job.Text, outcome.SourceLang, job.TargetLang)
		if err != nil {
			log.WithError(err).Warn("Translation memory lookup failed")
		}
		metrics.RecordCacheLookup(ok)
		if ok {
			log.Debug("Served from translation memory")
			outcome.Text = cached
			outcome.Cached = true
			return outcome, nil
		}
	}

	text := job.Text
	var markers glossary.Markers
	if o.storage != nil && outcome.SourceLang != "auto" {
		terms, err := o.storage.GetGlossaryTerms(ctx, outcome.SourceLang, job.TargetLang)
		if err != nil {
			log.WithError(err).Warn("Failed to load glossary")
		} else if len(terms) > 0 {
			text, markers = glossary.Protect(text, glossary.Terms(terms))
		}
	}

	chunks := chunker.Chunk(text, o.config.MaxChunkChars)
	outcome.Chunks = len(chunks)

	g, gctx := errgroup.WithContext(ctx)

	var translated string
	g.Go(func() error {
		res, err := o.translateChunks(gctx, primary, chunks, text, outcome.SourceLang, job.TargetLang, markers)
		if err != nil {
			return &ProviderError{Service: primary.Name(), Err: err}
		}
		translated = res.TranslatedText
		if outcome.DetectedLang == "" && res.DetectedLang != "" {
			outcome.DetectedLang = res.DetectedLang
			outcome.Confidence = res.Confidence
		}
		return nil
	})

	if comparison != nil {
		g.Go(func() error {
			res, err := o.translateChunks(gctx, comparison, chunks, text, outcome.SourceLang, job.TargetLang, markers)
			if err != nil {
				log.WithError(err).WithField("comparison", comparison.Name()).Warn("Comparison translation failed")
				res = &translator.ServiceResult{ServiceName: comparison.Name(), Error: err.Error()}
			}
			outcome.Comparison = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Translation failed")
		return nil, err
	}

	if missing := glossary.Missing(translated, markers); len(missing) > 0 {
		terms := make([]string, 0, len(missing))
		for _, i := range missing {
			terms = append(terms, markers[i].Source)
		}
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("glossary terms dropped by %s: %s", primary.Name(), strings.Join(terms, ", ")))
	}
	outcome.Text = glossary.Restore(translated, markers)
	if outcome.Comparison != nil && outcome.Comparison.Error == "" {
		outcome.Comparison.TranslatedText = glossary.Restore(outcome.Comparison.TranslatedText, markers)
	}

	if o.validator != nil && !job.SkipValidation {
		if ok, err := o.validator.IsValid(outcome.Text, job.TargetLang); !ok {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("validation: %v", err))
		}
	}

	if useMemory && len(outcome.Warnings) == 0 {
		if err := o.storage.SaveToMemory(ctx, job.Text, outcome.SourceLang, job.TargetLang, outcome.Text, primary.Name()); err != nil {
			log.WithError(err).Warn("Failed to save to translation memory")
		}
	}

	log.WithFields(logrus.Fields{
		"chunks":   outcome.Chunks,
		"warnings": len(outcome.Warnings),
	}).Info("Translation completed")

	return outcome, nil
}

// resolveSource asks the provider to detect the language and falls back to
// local detection. When both fail the source stays "auto" and the provider
// detects during translation.
func (o *Orchestrator) resolveSource(ctx context.Context, svc translator.TranslationService, text string, outcome *Outcome) {
	sample := text
	if r := []rune(text); len(r) > detectionSample {
		sample = string(r[:detectionSample])
	}

	if det, ok := svc.(translator.LanguageDetector); ok {
		dctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
		lang, score, err := det.Detect(dctx, sample)
		cancel()
		if err == nil && lang != "" {
			outcome.SourceLang, outcome.DetectedLang, outcome.Confidence = lang, lang, score
			return
		}
		if !errors.Is(err, translator.ErrDetectionUnsupported) {
			o.log.WithError(err).WithField("service", svc.Name()).Warn("Provider language detection failed")
		}
	}

	lang, score, err := o.detector.DetectLanguage(ctx, sample)
	if err != nil {
		o.log.WithError(err).Debug("Local language detection failed")
		return
	}
	outcome.SourceLang, outcome.DetectedLang, outcome.Confidence = lang, lang, score
}

// translateChunks translates chunks in order with svc, handing each call the
// tail of the previous translation.
func (o *Orchestrator) translateChunks(ctx context.Context, svc translator.TranslationService, chunks []string, source, sourceLang, targetLang string, markers glossary.Markers) (*translator.ServiceResult, error) {
	var instructions string
	if len(markers) > 0 {
		instructions = glossary.InstructionHint()
	}

	out := &translator.ServiceResult{ServiceName: svc.Name(), Metadata: map[string]string{}}
	parts := make([]string, 0, len(chunks))
	var previous string

	for i, chunk := range chunks {
		cctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
		res, err := svc.Translate(cctx, translator.ServiceConfig{}, translator.TranslateRequest{
			Text:            chunk,
			SourceLang:      sourceLang,
			TargetLang:      targetLang,
			PreviousContext: previous,
			Instructions:    instructions,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if res.Error != "" {
			return nil, fmt.Errorf("chunk %d/%d: %s", i+1, len(chunks), res.Error)
		}

		if i == 0 {
			out.DetectedLang = res.DetectedLang
			out.Confidence = res.Confidence
			for k, v := range res.Metadata {
				out.Metadata[k] = v
			}
		}
		out.Latency += res.Latency
		parts = append(parts, res.TranslatedText)
		previous = chunker.ExtractContext(res.TranslatedText, o.config.ContextWords)
	}

	out.TranslatedText = chunker.Join(chunks, parts, source)
	return out, nil
}

// CellFunc adapts the pipeline to the per-segment callbacks used by the
// spreadsheet and HTML translators. Segments are short, so validation is
// skipped.
func (o *Orchestrator) CellFunc(job Job) func(ctx context.Context, text string) (string, error) {
	return func(ctx context.Context, text string) (string, error) {
		j := job
		j.Text = text
		j.Comparison = ""
		j.SkipValidation = true
		outcome, err := o.Translate(ctx, j)
		if err != nil {
			return "", err
		}
		return outcome.Text, nil
	}
}
