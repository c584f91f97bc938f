package translator

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/valpere/doktran/internal/metrics"
)

// BreakerSettings configures the circuit breaker placed in front of every
// provider.
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker.
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// Breaker wraps a TranslationService with a circuit breaker and provider
// metrics. While open, calls fail immediately with gobreaker.ErrOpenState.
type Breaker struct {
	svc TranslationService
	cb  *gobreaker.CircuitBreaker
}

func NewBreaker(svc TranslationService, settings BreakerSettings, log *logrus.Logger) *Breaker {
	b := &Breaker{svc: svc}
	if settings.FailureThreshold == 0 {
		return b
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        svc.Name(),
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		// The caller giving up is not the vendor's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			if log != nil {
				log.WithFields(logrus.Fields{
					"service": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state changed")
			}
		},
	})
	return b
}

func (b *Breaker) Name() string {
	return b.svc.Name()
}

func (b *Breaker) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	start := time.Now()
	result, err := b.execute(func() (*ServiceResult, error) {
		return b.svc.Translate(ctx, cfg, req)
	})
	metrics.RecordProviderRequest(b.Name(), time.Since(start), err == nil, utf8.RuneCountInString(req.Text))

	if result == nil {
		result = &ServiceResult{ServiceName: b.Name()}
	}
	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}
	return result, err
}

func (b *Breaker) execute(fn func() (*ServiceResult, error)) (*ServiceResult, error) {
	if b.cb == nil {
		return fn()
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	result, _ := out.(*ServiceResult)
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		return result, fmt.Errorf("%s unavailable: %w", b.Name(), err)
	}
	return result, err
}

// Detect delegates to the wrapped service when it can detect languages.
func (b *Breaker) Detect(ctx context.Context, text string) (string, float64, error) {
	det, ok := b.svc.(LanguageDetector)
	if !ok {
		return "", 0, ErrDetectionUnsupported
	}
	if b.cb == nil {
		return det.Detect(ctx, text)
	}

	type detection struct {
		lang  string
		score float64
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		lang, score, err := det.Detect(ctx, text)
		return detection{lang, score}, err
	})
	if err != nil {
		return "", 0, err
	}
	d := out.(detection)
	return d.lang, d.score, nil
}

func (b *Breaker) IsAvailable(ctx context.Context) error {
	if b.cb != nil && b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s circuit breaker is open", b.Name())
	}
	return b.svc.IsAvailable(ctx)
}

func (b *Breaker) SupportedLanguages(ctx context.Context) ([]string, error) {
	return b.svc.SupportedLanguages(ctx)
}
