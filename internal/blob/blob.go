// Package blob stores uploaded documents and synthesized audio and hands
// back a URL for each object.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("blob not found")

// Store is an object store.
type Store interface {
	// Put stores data under key and returns the URL clients use to fetch it.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config selects the backend.
type Config struct {
	Backend string `mapstructure:"backend"`

	// local
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`

	// azure: a connection string, or account name + key.
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ServiceURL       string `mapstructure:"service_url"`
	Container        string `mapstructure:"container"`
}

// New builds the configured backend. The Azure container is created when
// missing.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Dir, cfg.BaseURL)
	case "azure":
		return NewAzureStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s (supported: local, azure)", cfg.Backend)
	}
}

// NewKey returns a unique object key under prefix keeping the extension of
// filename, e.g. "uploads/0b6c…-report.pdf".
func NewKey(prefix, filename string) string {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	stem := sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	name := uuid.NewString()
	if stem != "" {
		name += "-" + stem
	}
	return path.Join(prefix, name+ext)
}

// sanitize keeps letters, digits, '-' and '_' and caps the length.
func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ' || r == '.':
			sb.WriteByte('_')
		}
		if sb.Len() >= 40 {
			break
		}
	}
	return sb.String()
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return clean, nil
}
