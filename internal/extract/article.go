package extract

import (
	"fmt"
	"log/slog"
	"strings"
)

// Class names marking article parts in the newsletter markup.
const (
	TitleClass   = "content-title"
	ContentClass = "news-rsf-news-body"
)

// Article is one newsletter issue reduced to its headline text and body text.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Extract scans src once and returns the article it contains. Elements
// nest as written in the source, so a block element inside a <p> stays
// inside it. Missing elements yield empty fields; Extract never fails.
func Extract(src string) Article {
	title, content := collectByClass(src, TitleClass, ContentClass)
	return Article{
		Title:   joinText(title),
		Content: joinText(content),
	}
}

func joinText(parts []*strings.Builder) string {
	texts := make([]string, len(parts))
	for i, b := range parts {
		texts[i] = b.String()
	}
	return strings.TrimSpace(strings.Join(texts, " "))
}

// FormatEmails extracts an article from every body and keeps those with
// non-empty content, preserving input order.
func FormatEmails(bodies []string) []Article {
	return FormatEmailsWithLogger(slog.Default(), bodies)
}

// FormatEmailsWithLogger is FormatEmails reporting to logger.
func FormatEmailsWithLogger(logger *slog.Logger, bodies []string) []Article {
	articles := make([]Article, 0, len(bodies))
	for _, body := range bodies {
		a := Extract(body)
		if a.Content == "" {
			continue
		}
		articles = append(articles, a)
	}

	logger.Info(fmt.Sprintf("total %d news articles have been retrieved", len(articles)),
		slog.Int("count", len(articles)),
		slog.Int("emails", len(bodies)),
	)
	return articles
}

// Titles returns the article titles in order.
func Titles(articles []Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.Title
	}
	return out
}
