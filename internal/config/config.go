// Package config loads client configuration from a TOML file with
// sensible defaults and flag-style overrides applied by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultServerURL    = "http://localhost:8080/v1"
	DefaultWebsocketURL = "ws://localhost:8080/v1"

	defaultRequestTimeout = 15 * time.Second
)

type Config struct {
	// ServerURL is the REST base, including the version prefix.
	ServerURL string
	// WebsocketURL is the live feed base; room subscriptions append
	// /rooms/{id}.
	WebsocketURL string
	// RequestTimeout bounds every REST call.
	RequestTimeout time.Duration
	// DataDir holds the credential store. Defaults to the user config
	// dir.
	DataDir string
}

// NewConfig validates and normalizes a configuration.
func NewConfig(serverURL, websocketURL, dataDir string, requestTimeout time.Duration) (*Config, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	if websocketURL == "" {
		return nil, fmt.Errorf("websocket URL cannot be empty")
	}

	if u, err := url.Parse(serverURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid server URL %q", serverURL)
	}
	if u, err := url.Parse(websocketURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("invalid websocket URL %q", websocketURL)
	}

	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	if dataDir == "" {
		var err error
		if dataDir, err = defaultDataDir(); err != nil {
			return nil, err
		}
	}

	return &Config{
		ServerURL:      serverURL,
		WebsocketURL:   websocketURL,
		RequestTimeout: requestTimeout,
		DataDir:        dataDir,
	}, nil
}

// Load reads the TOML file at path, falling back to defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	raw := struct {
		ServerURL      string `toml:"server_url"`
		WebsocketURL   string `toml:"websocket_url"`
		RequestTimeout string `toml:"request_timeout"`
		DataDir        string `toml:"data_dir"`
	}{
		ServerURL:    DefaultServerURL,
		WebsocketURL: DefaultWebsocketURL,
	}

	if _, err := toml.DecodeFile(path, &raw); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	var timeout time.Duration
	if raw.RequestTimeout != "" {
		var err error
		if timeout, err = time.ParseDuration(raw.RequestTimeout); err != nil {
			return nil, fmt.Errorf("parse request_timeout: %w", err)
		}
	}

	return NewConfig(raw.ServerURL, raw.WebsocketURL, raw.DataDir, timeout)
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}

	return filepath.Join(dir, "lumaclient", "config.toml"), nil
}

func defaultDataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}

	return filepath.Join(dir, "lumaclient"), nil
}
