package translator

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// ServiceType names a translation backend.
type ServiceType string

const (
	ServiceAzure    ServiceType = "azure"
	ServiceGoogle   ServiceType = "google"
	ServiceOpenAI   ServiceType = "openai"
	ServiceMyMemory ServiceType = "mymemory"
)

// ParseServiceType parses a string into a ServiceType.
func ParseServiceType(s string) (ServiceType, error) {
	switch ServiceType(s) {
	case ServiceAzure, ServiceGoogle, ServiceOpenAI, ServiceMyMemory:
		return ServiceType(s), nil
	default:
		return "", fmt.Errorf("unknown translation service: %s (supported: azure, google, openai, mymemory)", s)
	}
}

// New creates an unwrapped provider.
func New(t ServiceType, cfg ServiceConfig) (TranslationService, error) {
	switch t {
	case ServiceAzure:
		return NewAzureService(cfg), nil
	case ServiceGoogle:
		return NewGoogleService(cfg), nil
	case ServiceOpenAI:
		return NewOpenAIService(cfg), nil
	case ServiceMyMemory:
		return NewMyMemoryService(cfg), nil
	default:
		return nil, fmt.Errorf("unknown translation service: %s", t)
	}
}

// Registry holds the configured providers, each behind a Breaker.
type Registry struct {
	services map[string]TranslationService
}

// NewRegistry builds every provider named in cfgs. Unknown names are logged
// and skipped; an empty result is an error.
func NewRegistry(cfgs map[string]ServiceConfig, breaker BreakerSettings, log *logrus.Logger) (*Registry, error) {
	r := &Registry{services: make(map[string]TranslationService)}

	for name, cfg := range cfgs {
		t, err := ParseServiceType(name)
		if err != nil {
			log.WithField("service", name).Warn("Skipping unknown translation service")
			continue
		}
		svc, err := New(t, cfg)
		if err != nil {
			return nil, err
		}
		r.services[name] = NewBreaker(svc, breaker, log)
		log.WithFields(logrus.Fields{
			"service":  name,
			"base_url": cfg.BaseURL,
		}).Debug("Translation service registered")
	}

	if len(r.services) == 0 {
		return nil, fmt.Errorf("no translation services configured")
	}
	return r, nil
}

// Add registers svc under its own name, replacing any previous entry.
func (r *Registry) Add(svc TranslationService) {
	if r.services == nil {
		r.services = make(map[string]TranslationService)
	}
	r.services[svc.Name()] = svc
}

func (r *Registry) Get(name string) (TranslationService, error) {
	svc, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("translation service %q is not configured", name)
	}
	return svc, nil
}

// Names returns the registered service names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
