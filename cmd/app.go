package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teemow/newsdigest/internal/config"
	"github.com/teemow/newsdigest/internal/instrumentation"
	"github.com/teemow/newsdigest/internal/logging"
)

// app is the state every command starts from: validated configuration,
// the process logger and the instrumentation provider.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	textfile string
}

// newApp loads the configuration, applies flag overrides and sets up
// logging and instrumentation. Logs go to stderr; stdout is reserved for
// command output and the stdio protocol stream.
func newApp(ctx context.Context, opts globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if opts.metricsTextfile != "" {
		instrConfig.Enabled = true
		instrConfig.MetricsExporter = instrumentation.ExporterPrometheus
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		textfile: opts.metricsTextfile,
	}, nil
}

// metrics returns the metrics recorder, nil when instrumentation is off.
func (a *app) metrics() *instrumentation.Metrics {
	if !a.provider.Enabled() {
		return nil
	}
	return a.provider.Metrics()
}

// auditLogger returns the tool audit logger, nil when disabled.
func (a *app) auditLogger() *instrumentation.AuditLogger {
	if !a.provider.Enabled() {
		return nil
	}
	return instrumentation.NewAuditLogger(a.logger, instrumentation.DefaultConfig().AuditLogging)
}

// close writes the metrics textfile, if requested, and flushes telemetry.
// Only a failed textfile write is returned; exporter shutdown problems are
// logged.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if a.textfile != "" {
		err = a.provider.WriteTextfile(a.textfile)
	}
	if shutdownErr := a.provider.Shutdown(ctx); shutdownErr != nil {
		a.logger.Warn("instrumentation shutdown failed", logging.Err(shutdownErr))
	}
	return err
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withApp runs fn with a fresh app and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	return errors.Join(fn(ctx, a), a.close())
}
