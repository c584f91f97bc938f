/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/valpere/doktran/internal/config"
	"github.com/valpere/doktran/internal/logging"
	"github.com/valpere/doktran/internal/orchestrator"
	"github.com/valpere/doktran/internal/speech"
	"github.com/valpere/doktran/internal/store"
	"github.com/valpere/doktran/internal/translator"
)

// app carries the configuration and logger every command starts from.
type app struct {
	cfg *config.Config
	log *logrus.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) openStore() (*store.Store, error) {
	st, err := store.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

// openStore is the shortcut used by the maintenance commands, which need no
// providers.
func openStore() (*store.Store, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	return a.openStore()
}

// buildOrchestrator creates the provider registry and the pipeline on top of
// st.
func (a *app) buildOrchestrator(st *store.Store) (*orchestrator.Orchestrator, error) {
	reg, err := translator.NewRegistry(a.cfg.Services, a.cfg.Translate.Breaker, a.log)
	if err != nil {
		return nil, err
	}

	primary := a.cfg.Translate.Primary
	if _, err := reg.Get(primary); err != nil {
		a.log.WithField("service", primary).Warn("Primary service not configured, using the first available")
		primary = ""
	}

	return orchestrator.New(reg, st, orchestrator.Config{
		Primary:         primary,
		Timeout:         a.cfg.Translate.Timeout,
		MaxChunkChars:   a.cfg.Translate.MaxChunkChars,
		ContextWords:    a.cfg.Translate.ContextWords,
		DetectLanguages: a.cfg.Translate.DetectLanguages,
		SkipValidation:  a.cfg.Translate.SkipValidation,
		SkipMemory:      a.cfg.Translate.NoCache,
	}, a.log), nil
}

// synthesizer returns nil when no speech provider is configured.
func (a *app) synthesizer() (speech.Synthesizer, error) {
	if a.cfg.Speech.Provider == "" {
		return nil, nil
	}
	cfg := a.cfg.Speech
	if cfg.Provider == "openai" && cfg.APIKey == "" {
		cfg.APIKey = a.cfg.Services["openai"].APIKey
	}
	s, err := speech.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.IsAvailable(context.Background()); err != nil {
		return nil, fmt.Errorf("speech provider %s: %w", s.Name(), err)
	}
	return s, nil
}
