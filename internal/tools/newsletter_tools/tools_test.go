package newsletter_tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/newsdigest/internal/config"
	"github.com/teemow/newsdigest/internal/digest"
	"github.com/teemow/newsdigest/internal/gmail"
	"github.com/teemow/newsdigest/internal/llm"
	"github.com/teemow/newsdigest/internal/server"
	"github.com/teemow/newsdigest/internal/tools/common"
)

type fakeFetcher struct {
	bodies []gmail.Body
	err    error
	got    []gmail.FetchOptions
}

func (f *fakeFetcher) FetchBodies(_ context.Context, opts gmail.FetchOptions) ([]gmail.Body, error) {
	f.got = append(f.got, opts)
	return f.bodies, f.err
}

type fakeCompleter struct {
	requests []llm.Request
	err      error
}

func (c *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return "", c.err
	}
	return "- " + req.Kind, nil
}

func newsletter(title, content string) gmail.Body {
	src := `<div class="content-title">` + title + `</div><div class="news-rsf-news-body">` + content + `</div>`
	return gmail.Body{Kind: gmail.KindHTML, Text: title + " " + content, Raw: src, HTML: src}
}

type fixture struct {
	sc        *server.ServerContext
	fetcher   *fakeFetcher
	completer *fakeCompleter
	accounts  []string
}

func newFixture(t *testing.T, bodies ...gmail.Body) *fixture {
	t.Helper()
	f := &fixture{
		fetcher:   &fakeFetcher{bodies: bodies},
		completer: &fakeCompleter{},
	}
	sc, err := server.NewServerContext(context.Background(), config.Default(),
		server.WithFetcherFactory(func(_ context.Context, account string) (digest.Fetcher, error) {
			f.accounts = append(f.accounts, account)
			return f.fetcher, nil
		}),
		server.WithCompleterFactory(func() (llm.Completer, error) {
			return f.completer, nil
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	f.sc = sc
	return f
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestRegisterNewsletterTools(t *testing.T) {
	f := newFixture(t)
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
	assert.NoError(t, RegisterNewsletterTools(s, f.sc))
}

func TestHandleFetch(t *testing.T) {
	f := newFixture(t, gmail.Body{Kind: gmail.KindPlain, Text: "Hello readers", Raw: "Hello readers"})

	result, err := handleFetch(context.Background(), call(map[string]interface{}{
		"account":  "work",
		"query":    "from:digest",
		"days":     float64(3),
		"allPages": true,
	}), f.sc)
	require.NoError(t, err)
	require.False(t, result.IsError, common.ResultText(result))

	text := common.ResultText(result)
	assert.Contains(t, text, "Found 1 emails")
	assert.Contains(t, text, "(plain)")
	assert.Contains(t, text, "Hello readers")

	assert.Equal(t, []string{"work"}, f.accounts)
	assert.Equal(t, []gmail.FetchOptions{{Query: "from:digest", WindowDays: 3, AllPages: true}}, f.fetcher.got)
}

func TestHandleFetch_Defaults(t *testing.T) {
	f := newFixture(t)

	result, err := handleFetch(context.Background(), call(nil), f.sc)
	require.NoError(t, err)
	assert.Equal(t, noMessages, common.ResultText(result))

	cfg := config.Default()
	assert.Equal(t, []string{cfg.Google.Account}, f.accounts)
	assert.Equal(t, cfg.Gmail.Query, f.fetcher.got[0].Query)
	assert.Equal(t, cfg.Gmail.WindowDays, f.fetcher.got[0].WindowDays)
}

func TestHandleArticles(t *testing.T) {
	f := newFixture(t, newsletter("Storm", "Rain."), gmail.Body{Kind: gmail.KindNone})

	result, err := handleArticles(context.Background(), call(nil), f.sc)
	require.NoError(t, err)
	require.False(t, result.IsError, common.ResultText(result))

	var got digest.Result
	require.NoError(t, json.Unmarshal([]byte(common.ResultText(result)), &got))
	assert.Equal(t, 2, got.Emails)
	require.Len(t, got.Articles, 1)
	assert.Equal(t, "Storm", got.Articles[0].Title)
	assert.Empty(t, f.completer.requests)
}

func TestHandleTopicsAndSummary(t *testing.T) {
	f := newFixture(t, newsletter("Storm", "Rain."), newsletter("Vote", "Counted."))

	result, err := handleTopics(context.Background(), call(nil), f.sc)
	require.NoError(t, err)
	assert.Equal(t, "- topics", common.ResultText(result))

	result, err = handleSummary(context.Background(), call(map[string]interface{}{"paragraphs": float64(2)}), f.sc)
	require.NoError(t, err)
	assert.Equal(t, "- summary", common.ResultText(result))

	require.Len(t, f.completer.requests, 2)
	assert.Contains(t, f.completer.requests[1].Messages[1].Content, "2-paragraph summary")
	assert.Contains(t, f.completer.requests[0].Messages[1].Content, "Storm\nVote")
}

func TestHandleTopics_NoArticlesSkipsModel(t *testing.T) {
	f := newFixture(t, gmail.Body{Kind: gmail.KindPlain, Text: "plain", Raw: "plain"})

	result, err := handleTopics(context.Background(), call(nil), f.sc)
	require.NoError(t, err)
	assert.Equal(t, noArticles, common.ResultText(result))
	assert.Empty(t, f.completer.requests)
}

func TestHandlers_ToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		handler func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error)
		args    map[string]interface{}
		want    string
	}{
		{
			name:    "fetch failure",
			setup:   func(f *fixture) { f.fetcher.err = gmail.ErrAPI },
			handler: handleFetch,
			want:    "gmail api request failed",
		},
		{
			name:    "invalid days",
			handler: handleArticles,
			args:    map[string]interface{}{"days": float64(0)},
			want:    "'days' must be at least 1",
		},
		{
			name:    "fractional days",
			handler: handleFetch,
			args:    map[string]interface{}{"days": 1.5},
			want:    "whole number",
		},
		{
			name:    "invalid paragraphs",
			handler: handleSummary,
			args:    map[string]interface{}{"paragraphs": float64(0)},
			want:    "'paragraphs' must be at least 1",
		},
		{
			name: "model failure",
			setup: func(f *fixture) {
				f.fetcher.bodies = []gmail.Body{newsletter("Storm", "Rain.")}
				f.completer.err = errors.Join(llm.ErrAPI, errors.New("rate limited"))
			},
			handler: handleTopics,
			want:    "rate limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			result, err := tt.handler(context.Background(), call(tt.args), f.sc)
			require.NoError(t, err, "failures must be tool errors")
			require.True(t, result.IsError)
			assert.True(t, strings.Contains(common.ResultText(result), tt.want), "got %q", common.ResultText(result))
		})
	}
}

func TestHandleSummary_MissingAPIKey(t *testing.T) {
	f := newFixture(t, newsletter("Storm", "Rain."))
	sc, err := server.NewServerContext(context.Background(), config.Default(),
		server.WithFetcherFactory(func(context.Context, string) (digest.Fetcher, error) { return f.fetcher, nil }),
		server.WithCompleterFactory(func() (llm.Completer, error) { return nil, llm.ErrMissingAPIKey }),
	)
	require.NoError(t, err)
	defer sc.Shutdown()

	result, err := handleSummary(context.Background(), call(nil), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, common.ResultText(result), "no OpenAI API key configured")
}
