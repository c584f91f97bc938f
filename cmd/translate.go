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
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/doktran/internal"
	"github.com/valpere/doktran/internal/extract"
	"github.com/valpere/doktran/internal/htmldoc"
	"github.com/valpere/doktran/internal/orchestrator"
	"github.com/valpere/doktran/internal/speech"
)

var (
	inputFile   string
	outputFile  string
	sourceLang  string
	targetLang  string
	serviceName string
	compareWith string
	speechFile  string
	voiceName   string
	noCache     bool
	noHistory   bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a document",
	Long: `Translate a document with the configured provider and write the result.

Text is extracted from .txt, .md, .pdf, .docx, .xlsx and .csv inputs and the
translation is written as plain text. HTML inputs keep their markup.

Examples:
  doktran translate -i report.pdf -o report.uk.txt -t uk
  doktran translate -i page.html -o page.fi.html -s en -t fi
  doktran translate -i notes.md -o notes.de.txt -t de --compare openai --speech notes.mp3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		if len(a.cfg.Services) == 0 {
			return fmt.Errorf("no translation services configured (set AZURE_TRANSLATION_KEY or services.<name>)")
		}

		data, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		if limit := a.cfg.Server.MaxUploadBytes; limit > 0 && int64(len(data)) > limit {
			return fmt.Errorf("%s: %w", inputFile, extract.ErrTooLarge)
		}

		ctx := context.Background()

		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		orch, err := a.buildOrchestrator(st)
		if err != nil {
			return err
		}

		job := orchestrator.Job{
			SourceLang: sourceLang,
			TargetLang: targetLang,
			Service:    serviceName,
			Comparison: compareWith,
			SkipMemory: noCache,
		}

		format, err := extract.Detect(inputFile)
		if err != nil {
			return err
		}
		if format == extract.FormatHTML {
			res, err := htmldoc.Translate(ctx, data, orch.CellFunc(job))
			if err != nil {
				return err
			}
			if err := writeOutput(outputFile, []byte(res.HTML)); err != nil {
				return err
			}
			fmt.Printf("Successfully translated %d HTML segments to %s\n", res.Segments, targetLang)
			return nil
		}

		doc, err := extract.Extract(ctx, inputFile, data)
		if err != nil {
			return err
		}
		job.Text = doc.Text

		outcome, err := orch.Translate(ctx, job)
		if err != nil {
			return err
		}
		for _, w := range outcome.Warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}

		if err := writeOutput(outputFile, []byte(outcome.Text)); err != nil {
			return err
		}

		rec := &internal.TranslationRecord{
			User:           cliUser(),
			Filename:       filepath.Base(inputFile),
			SourceLang:     sourceLang,
			DetectedLang:   outcome.DetectedLang,
			TargetLang:     targetLang,
			SourceText:     doc.Text,
			TranslatedText: outcome.Text,
			PrimaryService: outcome.Service,
		}

		if c := outcome.Comparison; c != nil {
			rec.ComparisonService, rec.ComparisonText, rec.ComparisonError = c.ServiceName, c.TranslatedText, c.Error
			if c.Error != "" {
				fmt.Fprintf(os.Stderr, "Comparison (%s) failed: %s\n", c.ServiceName, c.Error)
			} else {
				fmt.Fprintf(os.Stderr, "--- %s ---\n%s\n", c.ServiceName, c.TranslatedText)
			}
		}

		if speechFile != "" {
			synth, err := a.synthesizer()
			if err != nil {
				return err
			}
			if synth == nil {
				return fmt.Errorf("--speech needs speech.provider to be configured")
			}
			audio, err := synth.Synthesize(ctx, speech.SpeechRequest{
				Text:   outcome.Text,
				Lang:   targetLang,
				Voice:  voiceName,
				Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(speechFile)), "."),
			})
			if err != nil {
				return fmt.Errorf("speech synthesis failed: %w", err)
			}
			if err := writeOutput(speechFile, audio.Data); err != nil {
				return err
			}
			rec.AudioURL = speechFile
			fmt.Printf("Speech written to %s (%s, %s)\n", speechFile, audio.Provider, audio.Voice)
		}

		if !noHistory {
			if err := st.SaveRecord(ctx, rec); err != nil {
				a.log.WithError(err).Warn("Failed to save translation record")
			}
		}

		from := outcome.SourceLang
		if outcome.Cached {
			fmt.Printf("Successfully translated %s to %s (from cache)\n", from, targetLang)
		} else {
			fmt.Printf("Successfully translated %s to %s with %s (%d chunks)\n", from, targetLang, outcome.Service, outcome.Chunks)
		}
		return nil
	},
}

func writeOutput(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func cliUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file to translate (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for translation (required)")
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", "auto", "Source language code")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code (required)")
	translateCmd.Flags().StringVar(&serviceName, "service", "", "Translation service (default translate.primary)")
	translateCmd.Flags().StringVar(&compareWith, "compare", "", "Second service to translate the same text for comparison")
	translateCmd.Flags().StringVar(&speechFile, "speech", "", "Write synthesized speech of the translation to this file")
	translateCmd.Flags().StringVar(&voiceName, "voice", "", "Speech voice (default per language)")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass translation memory")
	translateCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the translation in history")

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("output")
	translateCmd.MarkFlagRequired("target")
}
