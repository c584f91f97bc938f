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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/doktran/internal"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "doktran",
	Short: "Document translation service",
	Long: `doktran translates documents (text, Markdown, PDF, DOCX, HTML, XLSX, CSV)
or pasted text through a cloud translation provider, optionally compares the
result with a second provider, synthesizes speech and keeps a history.

Run "doktran serve" for the HTTP API or use the offline commands:
  doktran translate -i report.pdf -o report.de.txt -t de
  doktran excel -i book.xlsx -t zh-Hans --columns 13,14,15

Configuration comes from flags, a YAML file (--config) and DOKTRAN_* environment
variables. AZURE_TRANSLATION_KEY, AZURE_TRANSLATION_ENDPOINT,
AZURE_TRANSLATION_LOCATION and OPENAI_API_KEY are honoured as well.`,
	Version:      internal.Version,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./doktran.yaml or $HOME/.doktran.yaml)")
	rootCmd.PersistentFlags().String("db", "doktran.db", "SQLite database path")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("doktran")
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Failed to read config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	} else {
		viper.SetConfigName(".doktran")
		if err := viper.ReadInConfig(); err == nil {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
