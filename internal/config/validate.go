package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values. Site names are not
// checked against the extractor registry here: an unknown name is skipped
// with a warning at run time instead of aborting the whole run.
func Validate(cfg *Config) error {
	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0, got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Engine.RetryDelay < 0 {
		return fmt.Errorf("engine.retry_delay must be >= 0")
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	for i, p := range cfg.Fetcher.Proxies {
		if err := validateProxyURL(p); err != nil {
			return fmt.Errorf("fetcher.proxies[%d]: %w", i, err)
		}
	}
	if r := cfg.Fetcher.ProxyRotation; r != "" && r != "round_robin" && r != "random" {
		return fmt.Errorf("fetcher.proxy_rotation must be round_robin or random, got %q", r)
	}

	outputs := make(map[string]string, len(cfg.Sites))
	for i, site := range cfg.Sites {
		if site.Name == "" {
			return fmt.Errorf("sites[%d].name must not be empty", i)
		}
		if err := ValidateURL(site.BaseURL); err != nil {
			return fmt.Errorf("sites[%d].base_url: %w", i, err)
		}
		if site.OutputFile == "" {
			return fmt.Errorf("sites[%d].output_file must not be empty", i)
		}
		if prev, dup := outputs[site.OutputFile]; dup {
			return fmt.Errorf("sites %q and %q share output_file %q", prev, site.Name, site.OutputFile)
		}
		outputs[site.OutputFile] = site.Name
	}

	validStorageTypes := map[string]bool{
		"text": true, "json": true, "jsonl": true, "csv": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: text, json, jsonl, csv)", cfg.Storage.Type)
	}
	if cfg.Storage.Mongo.Enabled && cfg.Storage.Mongo.URI == "" {
		return fmt.Errorf("storage.mongo.uri must be set when mongo is enabled")
	}
	if cfg.Storage.SQLite.Enabled && cfg.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path must be set when sqlite is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a site base URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func validateProxyURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("proxy scheme must be http, https or socks5, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
