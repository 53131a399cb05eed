package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for marketscrape. It is loaded once per
// run and treated as read-only afterwards.
type Config struct {
	Sites   []SiteConfig  `mapstructure:"sites"   yaml:"sites"`
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Verbose bool          `mapstructure:"verbose" yaml:"verbose"`
}

// SiteConfig describes one source to scrape. Name selects the extractor and
// the search URL rule, so it must match a registered site.
type SiteConfig struct {
	Name       string `mapstructure:"name"        yaml:"name"`
	BaseURL    string `mapstructure:"base_url"    yaml:"base_url"`
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
}

// EngineConfig controls the run orchestrator.
type EngineConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"     yaml:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	SearchTerm     string        `mapstructure:"search_term"     yaml:"search_term"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	UserAgent       string `mapstructure:"user_agent"       yaml:"user_agent"`
	Referer         string `mapstructure:"referer"          yaml:"referer"`
	Accept          string `mapstructure:"accept"           yaml:"accept"`
	AcceptLanguage  string `mapstructure:"accept_language"  yaml:"accept_language"`
	FollowRedirects bool   `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects    int    `mapstructure:"max_redirects"    yaml:"max_redirects"`
	MaxBodySize     int64  `mapstructure:"max_body_size"    yaml:"max_body_size"`
	TLSInsecure     bool   `mapstructure:"tls_insecure"     yaml:"tls_insecure"`

	// Proxies, when set, are used in turn for outgoing requests.
	Proxies       []string `mapstructure:"proxies"        yaml:"proxies"`
	ProxyRotation string   `mapstructure:"proxy_rotation" yaml:"proxy_rotation"` // round_robin, random
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Type      string       `mapstructure:"type"       yaml:"type"`
	OutputDir string       `mapstructure:"output_dir" yaml:"output_dir"`
	DebugHTML bool         `mapstructure:"debug_html" yaml:"debug_html"`
	Mongo     MongoConfig  `mapstructure:"mongo"      yaml:"mongo"`
	SQLite    SQLiteConfig `mapstructure:"sqlite"     yaml:"sqlite"`
}

// MongoConfig enables the optional MongoDB backend.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// SQLiteConfig enables the optional SQLite backend.
type SQLiteConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultSites returns the three marketplaces the scraper ships with.
func DefaultSites() []SiteConfig {
	return []SiteConfig{
		{Name: "Mercado Livre", BaseURL: "https://lista.mercadolivre.com.br/", OutputFile: "mercado_livre_data.txt"},
		{Name: "OLX", BaseURL: "https://www.olx.com.br/brasil", OutputFile: "olx_data.txt"},
		{Name: "Amazon", BaseURL: "https://www.amazon.com.br/s", OutputFile: "amazon_data.txt"},
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sites: DefaultSites(),
		Engine: EngineConfig{
			MaxRetries:     3,
			RetryDelay:     2 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Fetcher: FetcherConfig{
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
			Referer:         "https://www.amazon.com.br/",
			Accept:          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			AcceptLanguage:  "pt-BR,pt;q=0.8,en-US;q=0.5,en;q=0.3",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			ProxyRotation:   "round_robin",
		},
		Storage: StorageConfig{
			Type:      "text",
			OutputDir: "./output",
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "marketscrape",
				Collection: "listings",
			},
			SQLite: SQLiteConfig{
				Path: "./output/listings.db",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
