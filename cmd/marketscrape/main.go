package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/marketscrape/internal/config"
	"github.com/IshaanNene/marketscrape/internal/engine"
	"github.com/IshaanNene/marketscrape/internal/fetcher"
	"github.com/IshaanNene/marketscrape/internal/observability"
	"github.com/IshaanNene/marketscrape/internal/storage"
)

var (
	cfgFile     string
	verbose     bool
	outputDir   string
	outputType  string
	maxRetries  = -1
	timeout     time.Duration
	debugHTML   bool
	searchSites []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marketscrape",
		Short: "marketscrape scrapes product listings from Brazilian marketplaces",
		Long: `marketscrape fetches search-result pages from Mercado Livre, OLX and Amazon
and writes the title, price and URL of every listing it finds to one
output file per site.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file path")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVarP(&outputDir, "output", "o", "", "output directory (default from config: ./output)")
	flags.StringVarP(&outputType, "format", "f", "", "output format: text, json, jsonl, csv")
	flags.IntVar(&maxRetries, "retries", -1, "retries per page after the first attempt (-1 = use config default of 3)")
	flags.DurationVar(&timeout, "timeout", 0, "request timeout (0 = use config default of 30s)")
	flags.BoolVar(&debugHTML, "debug-html", false, "also save each fetched page as <site>_debug_page.html")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(sitesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scrape every configured site",
		Long:  "Fetch each configured site's base URL as-is and write its listings.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scrape("", nil)
		},
	}
}

// searchCmd creates the "search" subcommand.
func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search every configured site for a term",
		Long: `Compose each site's search URL from the term and scrape it.

  Mercado Livre  base URL + term with spaces replaced by '-'
  Amazon         base URL + ?k=<term>
  OLX            base URL + ?q=<term>`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return scrape(strings.Join(args, " "), searchSites)
		},
	}
	cmd.Flags().StringSliceVarP(&searchSites, "site", "s", nil, "only search these sites (repeatable)")
	return cmd
}

// scrape loads the configuration, wires the run and executes it.
func scrape(term string, only []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	cfg.Engine.SearchTerm = term

	if cfg.Sites, err = selectSites(cfg.Sites, only); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg)
	runID := uuid.NewString()

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, logger, fetcher.WithMetrics(metrics))
	if err != nil {
		logger.Error("fetch client could not be created, aborting run", "error", err)
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer httpFetcher.Close()

	store, err := storage.New(cfg, runID, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("storage close error", "error", err)
		}
	}()

	runner, err := engine.New(cfg, httpFetcher, store, logger,
		engine.WithMetrics(metrics),
		engine.WithRunID(runID),
	)
	if err != nil {
		logger.Error("run could not start", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if !runner.Run(ctx) {
		return errors.New("run interrupted")
	}

	snap := metrics.Snapshot()
	fmt.Printf("\n✅ Run %s complete in %s\n", runID, time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Sites:     %d scraped, %d failed, %d skipped\n", snap["sites_scraped"], snap["sites_failed"], snap["sites_skipped"])
	fmt.Printf("   Listings:  %d extracted, %d stored\n", snap["listings_extracted"], snap["listings_stored"])
	fmt.Printf("   Requests:  %d sent, %d retried\n", snap["requests_total"], snap["requests_retried"])
	fmt.Printf("   Output:    %s\n", cfg.Storage.OutputDir)
	return nil
}

// selectSites keeps the configured sites named in only, in configuration
// order. An empty only keeps them all.
func selectSites(all []config.SiteConfig, only []string) ([]config.SiteConfig, error) {
	if len(only) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[strings.TrimSpace(name)] = true
	}

	var out []config.SiteConfig
	for _, s := range all {
		if wanted[s.Name] {
			out = append(out, s)
			delete(wanted, s.Name)
		}
	}
	for _, name := range only {
		if name = strings.TrimSpace(name); wanted[name] {
			return nil, fmt.Errorf("site %q is not configured", name)
		}
	}
	return out, nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "marketscrape %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			applyCLIOverrides(cfg)

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if verbose {
		cfg.Verbose = true
	}
	if outputDir != "" {
		cfg.Storage.OutputDir = outputDir
	}
	if outputType != "" {
		cfg.Storage.Type = strings.ToLower(outputType)
	}
	if maxRetries >= 0 {
		cfg.Engine.MaxRetries = maxRetries
	}
	if timeout > 0 {
		cfg.Engine.RequestTimeout = timeout
	}
	if debugHTML {
		cfg.Storage.DebugHTML = true
	}
}
