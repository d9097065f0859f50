package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/teemow/newsdigest/internal/config"
	"github.com/teemow/newsdigest/internal/credential"
	"github.com/teemow/newsdigest/internal/digest"
	"github.com/teemow/newsdigest/internal/gmail"
	"github.com/teemow/newsdigest/internal/google"
	"github.com/teemow/newsdigest/internal/instrumentation"
	"github.com/teemow/newsdigest/internal/llm"
	"github.com/teemow/newsdigest/internal/logging"
)

// ErrShutdown is returned once the server context has been shut down.
var ErrShutdown = errors.New("server is shutting down")

// FetcherFactory creates a mailbox fetcher for an account.
type FetcherFactory func(ctx context.Context, account string) (digest.Fetcher, error)

// CompleterFactory creates the language model client.
type CompleterFactory func() (llm.Completer, error)

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithLogger sets the logger handed to clients and tools.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithMetrics sets the metrics recorded by clients and tools.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger sets the tool audit logger.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.auditLogger = al }
}

// WithFetcherFactory replaces how mailbox fetchers are built.
func WithFetcherFactory(f FetcherFactory) Option {
	return func(sc *ServerContext) { sc.newFetcher = f }
}

// WithCompleterFactory replaces how the language model client is built.
func WithCompleterFactory(f CompleterFactory) Option {
	return func(sc *ServerContext) { sc.newCompleter = f }
}

// ServerContext holds the configuration and cached clients of a running
// server.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config

	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	newFetcher   FetcherFactory
	newCompleter CompleterFactory

	mu        sync.Mutex
	fetchers  map[string]digest.Fetcher
	completer llm.Completer
	shutdown  bool
}

// NewServerContext creates a server context for cfg. Clients are created on
// first use.
func NewServerContext(ctx context.Context, cfg *config.Config, opts ...Option) (*ServerContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logging.Discard(),
		fetchers: make(map[string]digest.Fetcher),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.newFetcher == nil {
		sc.newFetcher = func(ctx context.Context, account string) (digest.Fetcher, error) {
			c, err := NewGmailClient(ctx, cfg, account, sc.logger, sc.metrics)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	if sc.newCompleter == nil {
		sc.newCompleter = func() (llm.Completer, error) {
			c, err := NewLLMClient(cfg, sc.logger, sc.metrics)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return sc, nil
}

// Context returns the server context, cancelled on Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the configuration the server was started with.
func (sc *ServerContext) Config() *config.Config {
	return sc.cfg
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the tool audit logger, possibly nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// DefaultAccount returns the configured mailbox account.
func (sc *ServerContext) DefaultAccount() string {
	if sc.cfg.Google.Account == "" {
		return google.DefaultAccount
	}
	return sc.cfg.Google.Account
}

// Fetcher returns the cached fetcher for account, creating it if needed.
// Creating it may run the interactive authorization flow.
func (sc *ServerContext) Fetcher(account string) (digest.Fetcher, error) {
	if account == "" {
		account = sc.DefaultAccount()
	}

	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil, ErrShutdown
	}
	if f, ok := sc.fetchers[account]; ok {
		sc.mu.Unlock()
		return f, nil
	}
	sc.mu.Unlock()

	// Built unlocked: authorization may wait on the browser.
	f, err := sc.newFetcher(sc.ctx, account)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return nil, ErrShutdown
	}
	if existing, ok := sc.fetchers[account]; ok {
		return existing, nil
	}
	sc.fetchers[account] = f
	return f, nil
}

// Completer returns the cached language model client, creating it if
// needed.
func (sc *ServerContext) Completer() (llm.Completer, error) {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil, ErrShutdown
	}
	if sc.completer != nil {
		c := sc.completer
		sc.mu.Unlock()
		return c, nil
	}
	sc.mu.Unlock()

	c, err := sc.newCompleter()
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return nil, ErrShutdown
	}
	if sc.completer != nil {
		return sc.completer, nil
	}
	sc.completer = c
	return c, nil
}

// Pipeline returns a digest pipeline for account. Model stages are only
// wired when withModel is set, so mailbox-only tools work without an API
// key.
func (sc *ServerContext) Pipeline(account string, withModel bool) (*digest.Pipeline, error) {
	f, err := sc.Fetcher(account)
	if err != nil {
		return nil, err
	}
	var c llm.Completer
	if withModel {
		if c, err = sc.Completer(); err != nil {
			return nil, err
		}
	}
	return digest.New(f, c, sc.logger, sc.metrics), nil
}

// CredentialStatus reports which credentials are available, without
// creating any client.
func (sc *ServerContext) CredentialStatus() map[string]string {
	status := map[string]string{
		"google_token": healthStatusMissing,
		"openai_key":   healthStatusMissing,
	}
	if google.NewTokenStore(sc.cfg.Google.TokenDir).Has(sc.DefaultAccount()) {
		status["google_token"] = healthStatusOK
	}
	if ResolveOpenAIKey(sc.cfg) != "" {
		status["openai_key"] = healthStatusOK
	}
	return status
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.shutdown
}

// Shutdown cancels the server context and drops cached clients.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.fetchers = nil
	sc.completer = nil
	sc.cancel()
	return nil
}

// NewGmailClient authenticates account and returns a Gmail client for it.
func NewGmailClient(ctx context.Context, cfg *config.Config, account string, logger *slog.Logger, metrics *instrumentation.Metrics) (*gmail.Client, error) {
	auth, err := NewAuthenticator(cfg, account, logger, metrics)
	if err != nil {
		return nil, err
	}
	httpClient, err := auth.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return gmail.NewClient(ctx, httpClient,
		gmail.WithAccount(auth.Account()),
		gmail.WithLogger(logger),
		gmail.WithMetrics(metrics),
	)
}

// NewAuthenticator returns the Google authenticator for account as
// configured in cfg. The consent URL is written to stderr so it never
// mixes with command output or the stdio protocol stream.
func NewAuthenticator(cfg *config.Config, account string, logger *slog.Logger, metrics *instrumentation.Metrics) (*google.Authenticator, error) {
	if account == "" {
		account = cfg.Google.Account
	}
	return google.NewAuthenticator(google.Options{
		Account:           account,
		ClientSecretsFile: cfg.Google.ClientSecrets,
		TokenDir:          cfg.Google.TokenDir,
		Logger:            logging.NewSlogAdapter(logger),
		Metrics:           metrics,
		OpenBrowser:       google.OpenBrowser,
		Prompt:            os.Stderr,
	})
}

// ResolveOpenAIKey returns the configured API key, falling back to the OS
// keyring.
func ResolveOpenAIKey(cfg *config.Config) string {
	if cfg.OpenAI.APIKey != "" {
		return cfg.OpenAI.APIKey
	}
	return credential.Lookup(credential.OpenAIKey)
}

// NewLLMClient returns the language model client configured in cfg.
func NewLLMClient(cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) (*llm.Client, error) {
	return llm.NewClient(llm.Config{
		APIKey:  ResolveOpenAIKey(cfg),
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Logger:  logger,
		Metrics: metrics,
	})
}

// DigestOptions returns the pipeline options configured in cfg.
func DigestOptions(cfg *config.Config) digest.Options {
	return digest.Options{
		Fetch: gmail.FetchOptions{
			Query:      cfg.Gmail.Query,
			WindowDays: cfg.Gmail.WindowDays,
			AllPages:   cfg.Gmail.AllPages,
		},
		Paragraphs:          cfg.Digest.Paragraphs,
		TopicInstructions:   cfg.Digest.TopicInstructions,
		SummaryInstructions: cfg.Digest.SummaryInstructions,
		TopicsMaxTokens:     cfg.OpenAI.TopicsMaxTokens,
		SummaryMaxTokens:    cfg.OpenAI.SummaryMaxTokens,
	}
}
