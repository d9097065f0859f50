package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/newsdigest/internal/extract"
	"github.com/teemow/newsdigest/internal/gmail"
	"github.com/teemow/newsdigest/internal/instrumentation"
	"github.com/teemow/newsdigest/internal/llm"
	"github.com/teemow/newsdigest/internal/logging"
)

// ErrNoCompleter is returned when a model stage is requested on a pipeline
// built without a language model client.
var ErrNoCompleter = errors.New("no language model client configured")

// Fetcher returns decoded message bodies. *gmail.Client implements it.
type Fetcher interface {
	FetchBodies(ctx context.Context, opts gmail.FetchOptions) ([]gmail.Body, error)
}

// Options controls a single Run.
type Options struct {
	Fetch gmail.FetchOptions

	// Paragraphs is the requested summary length.
	Paragraphs int

	TopicInstructions   []string
	SummaryInstructions []string
	TopicsMaxTokens     int
	SummaryMaxTokens    int

	SkipTopics  bool
	SkipSummary bool
}

// Result is the outcome of a Run. Topics and Summary are empty when the
// stage was skipped or there were no articles.
type Result struct {
	Emails   int               `json:"emails"`
	Articles []extract.Article `json:"articles"`
	Topics   string            `json:"topics,omitempty"`
	Summary  string            `json:"summary,omitempty"`
}

// Pipeline wires a Fetcher to a language model.
type Pipeline struct {
	fetcher   Fetcher
	completer llm.Completer
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
}

// New creates a Pipeline. completer may be nil when only Articles is used.
func New(fetcher Fetcher, completer llm.Completer, logger *slog.Logger, metrics *instrumentation.Metrics) *Pipeline {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		fetcher:   fetcher,
		completer: completer,
		logger:    logger,
		metrics:   metrics,
	}
}

// Bodies fetches the decoded message bodies.
func (p *Pipeline) Bodies(ctx context.Context, opts gmail.FetchOptions) (bodies []gmail.Body, err error) {
	ctx, span := instrumentation.StartSpan(ctx, "digest.fetch")
	defer func() { instrumentation.EndSpan(span, err) }()

	bodies, err = p.fetcher.FetchBodies(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("fetching newsletters: %w", err)
	}
	span.SetAttributes(attribute.Int("newsdigest.emails", len(bodies)))
	return bodies, nil
}

// Articles fetches the bodies and extracts the articles with content. It
// returns the number of emails fetched alongside the articles.
func (p *Pipeline) Articles(ctx context.Context, opts gmail.FetchOptions) (int, []extract.Article, error) {
	bodies, err := p.Bodies(ctx, opts)
	if err != nil {
		return 0, nil, err
	}

	_, span := instrumentation.StartSpan(ctx, "digest.extract")
	markup := make([]string, len(bodies))
	for i, b := range bodies {
		markup[i] = b.Markup()
	}
	articles := extract.FormatEmailsWithLogger(p.logger, markup)
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrArticles, len(articles)))
	instrumentation.EndSpan(span, nil)

	p.metrics.RecordDigestArticles(ctx, len(articles))
	return len(bodies), articles, nil
}

// Topics clusters the article titles into a markdown bullet list.
func (p *Pipeline) Topics(ctx context.Context, articles []extract.Article, opts Options) (string, error) {
	if p.completer == nil {
		return "", ErrNoCompleter
	}
	return llm.ClusterTopics(ctx, p.completer, articles, opts.TopicInstructions, opts.TopicsMaxTokens)
}

// Summary writes an opts.Paragraphs-long digest of the articles.
func (p *Pipeline) Summary(ctx context.Context, articles []extract.Article, opts Options) (string, error) {
	if p.completer == nil {
		return "", ErrNoCompleter
	}
	return llm.Summarize(ctx, p.completer, articles, opts.Paragraphs, opts.SummaryInstructions, opts.SummaryMaxTokens)
}

// Run executes every stage in order. With no articles it returns early
// without contacting the model.
func (p *Pipeline) Run(ctx context.Context, opts Options) (res *Result, err error) {
	ctx, span := instrumentation.StartSpan(ctx, "digest.run")
	defer func() { instrumentation.EndSpan(span, err) }()

	log := logging.WithOperation(p.logger, "digest.run")

	if !opts.SkipSummary && opts.Paragraphs < 1 {
		return nil, fmt.Errorf("paragraph count must be at least 1, got %d", opts.Paragraphs)
	}

	emails, articles, err := p.Articles(ctx, opts.Fetch)
	if err != nil {
		return nil, err
	}
	res = &Result{Emails: emails, Articles: articles}
	if len(articles) == 0 {
		log.Info("no articles to digest", logging.Count(emails))
		return res, nil
	}

	if !opts.SkipTopics {
		if res.Topics, err = p.Topics(ctx, articles, opts); err != nil {
			return nil, err
		}
	}
	if !opts.SkipSummary {
		if res.Summary, err = p.Summary(ctx, articles, opts); err != nil {
			return nil, err
		}
	}

	log.Info("digest complete", logging.Count(len(articles)))
	return res, nil
}
