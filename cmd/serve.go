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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/doktran/internal"
	"github.com/valpere/doktran/internal/auth"
	"github.com/valpere/doktran/internal/blob"
	"github.com/valpere/doktran/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the translation HTTP API.

Endpoints:
  POST /api/translate         document or text translation
  POST /api/translate/html    HTML translation keeping markup
  POST /api/translate/excel   XLSX column or highlighted-cell translation
  POST /api/speech            text to speech
  GET  /api/history           translation history
  GET  /api/glossary          glossary terms
  GET  /health, /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		orch, err := a.buildOrchestrator(st)
		if err != nil {
			return err
		}
		synth, err := a.synthesizer()
		if err != nil {
			return err
		}
		blobs, err := blob.New(ctx, a.cfg.Blob)
		if err != nil {
			return err
		}
		authn, err := auth.New(ctx, a.cfg.Auth, a.log)
		if err != nil {
			return err
		}

		a.log.WithField("version", internal.Version).
			WithField("primary", orch.Primary()).
			WithField("auth", authn.Enabled()).
			WithField("speech", synth != nil).
			Info("Starting doktran")

		return server.New(server.Deps{
			Config:       a.cfg,
			Orchestrator: orch,
			Store:        st,
			Blobs:        blobs,
			Speech:       synth,
			Auth:         authn,
			Logger:       a.log,
		}).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("primary", "azure", "Primary translation service")
	serveCmd.Flags().String("comparison", "", "Comparison translation service")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("translate.primary", serveCmd.Flags().Lookup("primary"))
	viper.BindPFlag("translate.comparison", serveCmd.Flags().Lookup("comparison"))
}
