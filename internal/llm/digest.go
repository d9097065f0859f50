package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/teemow/newsdigest/internal/extract"
	"github.com/teemow/newsdigest/internal/instrumentation"
)

// Default output bounds for the two requests.
const (
	DefaultTopicsMaxTokens  = 500
	DefaultSummaryMaxTokens = 1000
)

// ClusterTopics asks the model for a single-level markdown bullet list of
// topics covering the article titles. maxTokens <= 0 selects
// DefaultTopicsMaxTokens.
func ClusterTopics(ctx context.Context, c Completer, articles []extract.Article, instructions []string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultTopicsMaxTokens
	}
	reply, err := c.Complete(ctx, Request{
		Kind:      instrumentation.CompletionTopics,
		Messages:  TopicsPrompt(articles, instructions),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("clustering topics: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// Summarize asks the model for a paragraphs-long digest of the articles.
// maxTokens <= 0 selects DefaultSummaryMaxTokens.
func Summarize(ctx context.Context, c Completer, articles []extract.Article, paragraphs int, instructions []string, maxTokens int) (string, error) {
	if paragraphs < 1 {
		return "", fmt.Errorf("paragraph count must be at least 1, got %d", paragraphs)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultSummaryMaxTokens
	}
	reply, err := c.Complete(ctx, Request{
		Kind:      instrumentation.CompletionSummary,
		Messages:  SummaryPrompt(articles, paragraphs, instructions),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarizing articles: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
