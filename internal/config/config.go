// Package config loads doktran settings from flags, an optional YAML file
// and the environment through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/doktran/internal/auth"
	"github.com/valpere/doktran/internal/blob"
	"github.com/valpere/doktran/internal/logging"
	"github.com/valpere/doktran/internal/speech"
	"github.com/valpere/doktran/internal/translator"
)

const EnvPrefix = "DOKTRAN"

type Config struct {
	Server    ServerConfig                        `mapstructure:"server"`
	Log       logging.Config                      `mapstructure:"log"`
	Database  DatabaseConfig                      `mapstructure:"database"`
	Translate TranslateConfig                     `mapstructure:"translate"`
	Services  map[string]translator.ServiceConfig `mapstructure:"services"`
	Speech    speech.Config                       `mapstructure:"speech"`
	Blob      blob.Config                         `mapstructure:"blob"`
	Auth      auth.Config                         `mapstructure:"auth"`
	Excel     ExcelConfig                         `mapstructure:"excel"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type TranslateConfig struct {
	Primary        string                     `mapstructure:"primary"`
	Comparison     string                     `mapstructure:"comparison"`
	SourceLang     string                     `mapstructure:"source_lang"`
	TargetLang     string                     `mapstructure:"target_lang"`
	Timeout        time.Duration              `mapstructure:"timeout"`
	MaxChunkChars  int                        `mapstructure:"max_chunk_chars"`
	ContextWords   int                        `mapstructure:"context_words"`
	SkipValidation bool                       `mapstructure:"skip_validation"`
	NoCache        bool                       `mapstructure:"no_cache"`
	Breaker        translator.BreakerSettings `mapstructure:"breaker"`
	// DetectLanguages narrows local language detection, e.g. [en, fi, de].
	DetectLanguages []string `mapstructure:"detect_languages"`
}

type ExcelConfig struct {
	Columns    []int  `mapstructure:"columns"`
	TargetLang string `mapstructure:"target_lang"`
	SkipHeader bool   `mapstructure:"skip_header"`
}

// vendorEnv maps settings to the environment variables the vendors document,
// checked after the DOKTRAN_ ones.
var vendorEnv = map[string]string{
	"services.azure.api_key":  "AZURE_TRANSLATION_KEY",
	"services.azure.base_url": "AZURE_TRANSLATION_ENDPOINT",
	"services.azure.region":   "AZURE_TRANSLATION_LOCATION",
	"services.openai.api_key": "OPENAI_API_KEY",
	"speech.api_key":          "AZURE_SPEECH_KEY",
	"speech.region":           "AZURE_SPEECH_REGION",
	"blob.connection_string":  "AZURE_STORAGE_CONNECTION_STRING",
}

// SetDefaults registers every default and the environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_bytes", 20<<20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.path", "doktran.db")

	v.SetDefault("translate.primary", "azure")
	v.SetDefault("translate.comparison", "")
	v.SetDefault("translate.source_lang", "auto")
	v.SetDefault("translate.target_lang", "en")
	v.SetDefault("translate.timeout", 60*time.Second)
	v.SetDefault("translate.max_chunk_chars", 10000)
	v.SetDefault("translate.context_words", 25)
	v.SetDefault("translate.skip_validation", false)
	v.SetDefault("translate.no_cache", false)
	v.SetDefault("translate.breaker.failure_threshold", 5)
	v.SetDefault("translate.breaker.open_timeout", 30*time.Second)

	v.SetDefault("speech.provider", "")
	v.SetDefault("speech.voice", "")

	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.dir", "data/files")
	v.SetDefault("blob.base_url", "/files/")
	v.SetDefault("blob.container", "doktran")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.session_ttl", auth.DefaultSessionTTL)
	v.SetDefault("auth.after_login_url", "/")

	v.SetDefault("excel.columns", []int{13, 14, 15})
	v.SetDefault("excel.target_lang", "zh-Hans")
	v.SetDefault("excel.skip_header", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range vendorEnv {
		v.BindEnv(key, envName(key), env)
	}
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load applies defaults to v and decodes it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if cfg.Services == nil {
		cfg.Services = map[string]translator.ServiceConfig{}
	}
	return &cfg, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	if len(c.Services) == 0 {
		errs = append(errs, errors.New("no translation services configured (set AZURE_TRANSLATION_KEY or services.<name>)"))
	}
	for name := range c.Services {
		if _, err := translator.ParseServiceType(name); err != nil {
			errs = append(errs, fmt.Errorf("services.%s: %w", name, err))
		}
	}
	if c.Translate.Primary != "" {
		if _, ok := c.Services[c.Translate.Primary]; !ok && len(c.Services) > 0 {
			errs = append(errs, fmt.Errorf("translate.primary %q is not configured under services", c.Translate.Primary))
		}
	}
	if c.Translate.Comparison != "" {
		if _, ok := c.Services[c.Translate.Comparison]; !ok {
			errs = append(errs, fmt.Errorf("translate.comparison %q is not configured under services", c.Translate.Comparison))
		}
	}
	if c.Translate.TargetLang == "" {
		errs = append(errs, errors.New("translate.target_lang is required"))
	}
	if c.Translate.Timeout < 0 {
		errs = append(errs, errors.New("translate.timeout must not be negative"))
	}

	switch c.Speech.Provider {
	case "", "azure", "openai", "google":
	default:
		errs = append(errs, fmt.Errorf("speech.provider %q is not supported (azure, openai, google)", c.Speech.Provider))
	}

	switch c.Blob.Backend {
	case "", "local":
	case "azure":
		if c.Blob.ConnectionString == "" && (c.Blob.AccountName == "" || c.Blob.AccountKey == "") {
			errs = append(errs, errors.New("blob.backend azure needs blob.connection_string or blob.account_name and blob.account_key"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.backend %q is not supported (local, azure)", c.Blob.Backend))
	}

	if c.Auth.Enabled {
		for key, val := range map[string]string{
			"auth.issuer":        c.Auth.Issuer,
			"auth.client_id":     c.Auth.ClientID,
			"auth.client_secret": c.Auth.ClientSecret,
			"auth.redirect_url":  c.Auth.RedirectURL,
		} {
			if val == "" {
				errs = append(errs, fmt.Errorf("%s is required when auth is enabled", key))
			}
		}
		if len(c.Auth.SessionSecret) < 32 {
			errs = append(errs, errors.New("auth.session_secret must be at least 32 characters"))
		}
	}

	for _, col := range c.Excel.Columns {
		if col < 0 {
			errs = append(errs, fmt.Errorf("excel.columns: invalid column %d", col))
		}
	}

	return errors.Join(errs...)
}
