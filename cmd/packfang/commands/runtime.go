// Package commands implements CLI command handlers for packfang.
package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/config"
	"github.com/Sumatoshi-tech/packfang/pkg/observability"
	"github.com/Sumatoshi-tech/packfang/pkg/progress"
)

const (
	serviceName = "packfang"

	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 3 * time.Second
)

// configLoader resolves the effective configuration for one command run.
// Commands take it as a dependency so tests can inject fixed configs.
type configLoader func(configPath string) (*config.Config, error)

// commonFlags are shared by every engine command. A flag explicitly set on
// the command line overrides the loaded configuration.
type commonFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	quiet      bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "Config file path (default: discover packfang.yaml)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format: text, json")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Suppress progress logging")
}

func (f *commonFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}

	if cmd.Flags().Changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
}

// engineFlags size the worker pool and caches of the parallel engines.
type engineFlags struct {
	threads   int
	chunkSize int
	cacheSize string
	format    string
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.threads, "threads", 0, "Worker goroutine cap (0 = one per core)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 0, "Work items per worker chunk (0 = auto)")
	cmd.Flags().StringVar(&f.cacheSize, "cache", "", "Per-worker decode cache budget, e.g. '64MiB' ('0' disables)")
	cmd.Flags().StringVar(&f.format, "format", "", "Report format: table, yaml")
}

func (f *engineFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("threads") {
		cfg.Runtime.ThreadLimit = f.threads
	}

	if flags.Changed("chunk-size") {
		cfg.Runtime.ChunkSize = f.chunkSize
	}

	if flags.Changed("cache") {
		cfg.Cache.DecodeSize = f.cacheSize
	}

	if flags.Changed("format") {
		cfg.Output.Format = f.format
	}
}

// newRunLogger builds the command logger from the logging configuration.
// Quiet runs log errors only, which also silences progress messages.
func newRunLogger(cfg *config.Config, command string, quiet bool, out io.Writer) (*slog.Logger, error) {
	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	if quiet {
		level = slog.LevelError
	}

	return observability.NewLogger(observability.Config{
		Output:  out,
		Service: serviceName,
		Command: command,
		Level:   level,
		JSON:    cfg.Logging.Format == "json",
	}), nil
}

// newRunProgress builds the run's progress root. A non-nil counter mirrors
// every increment into the metrics.
func newRunProgress(name string, logger *slog.Logger, counter prometheus.Counter) progress.Progress {
	var prog progress.Progress = progress.NewRoot(name, logger)

	if counter != nil {
		prog = observability.CountProgress(prog, counter)
	}

	return prog
}

// decodeCacheFactory builds the per-worker decode cache constructor from the
// configured budget. A zero budget disables caching and returns nil.
func decodeCacheFactory(cfg *config.Config) (func() cache.DecodeEntry, error) {
	budget, err := cfg.Cache.DecodeBytes()
	if err != nil {
		return nil, err
	}

	if budget <= 0 {
		return nil, nil
	}

	compress := cfg.Cache.Compress

	return func() cache.DecodeEntry {
		return cache.NewLRU(budget, compress)
	}, nil
}

// metricsAddr resolves where to expose the scrape endpoint; the flag wins
// over the configuration whenever it was set.
func metricsAddr(cfg *config.Config, flagAddr string, flagSet bool) (string, bool) {
	if flagSet {
		return flagAddr, flagAddr != ""
	}

	return cfg.Metrics.Addr, cfg.Metrics.Enabled
}

// serveMetrics exposes the scrape handler on addr until stop is called.
// Serving is best-effort: a bind failure surfaces in the log, not as a run
// error.
func serveMetrics(addr string, metrics *observability.Metrics, logger *slog.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		_ = server.Shutdown(ctx)
	}
}
