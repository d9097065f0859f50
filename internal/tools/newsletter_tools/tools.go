package newsletter_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/newsdigest/internal/digest"
	"github.com/teemow/newsdigest/internal/extract"
	"github.com/teemow/newsdigest/internal/gmail"
	"github.com/teemow/newsdigest/internal/server"
	"github.com/teemow/newsdigest/internal/tools/common"
)

// Tool names.
const (
	ToolFetch    = "newsletter_fetch"
	ToolArticles = "newsletter_articles"
	ToolTopics   = "newsletter_topics"
	ToolSummary  = "newsletter_summary"
)

const (
	noMessages = "No newsletter emails matched the query."
	noArticles = "No newsletter articles found."
)

func selectionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("account",
			mcp.Description("Account name (default: the configured account). Selects which stored Google token is used."),
		),
		mcp.WithString("query",
			mcp.Description("Gmail search query selecting the newsletters (default: the configured query)"),
		),
		mcp.WithNumber("days",
			mcp.Description("Only consider emails from the trailing number of days (default: 7)"),
		),
		mcp.WithBoolean("allPages",
			mcp.Description("Follow result pages beyond the first (default: false)"),
		),
	}
}

func newTool(name, description string, extra ...mcp.ToolOption) mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription(description)}, selectionOptions()...)
	return mcp.NewTool(name, append(opts, extra...)...)
}

// RegisterNewsletterTools registers the newsletter tools with the MCP server.
func RegisterNewsletterTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	s.AddTool(
		newTool(ToolFetch, "Fetch the decoded text bodies of recent newsletter emails"),
		common.InstrumentedToolHandler(ToolFetch, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFetch(ctx, request, sc)
		}),
	)

	s.AddTool(
		newTool(ToolArticles, "Extract the articles (title and content) from recent newsletter emails as JSON"),
		common.InstrumentedToolHandler(ToolArticles, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleArticles(ctx, request, sc)
		}),
	)

	s.AddTool(
		newTool(ToolTopics, "Cluster the titles of recent newsletter articles into a markdown list of topics"),
		common.InstrumentedToolHandler(ToolTopics, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleTopics(ctx, request, sc)
		}),
	)

	s.AddTool(
		newTool(ToolSummary, "Write a markdown digest of recent newsletter articles",
			mcp.WithNumber("paragraphs",
				mcp.Description("Number of paragraphs in the summary (default: the configured value)"),
			),
		),
		common.InstrumentedToolHandler(ToolSummary, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSummary(ctx, request, sc)
		}),
	)

	return nil
}

// selection is the parsed selection common to every tool.
type selection struct {
	account string
	opts    digest.Options
}

func parseRequest(req mcp.CallToolRequest, sc *server.ServerContext) (selection, error) {
	args := req.GetArguments()
	opts := server.DigestOptions(sc.Config())

	opts.Fetch.Query = common.GetStringArg(args, "query", opts.Fetch.Query)
	opts.Fetch.AllPages = common.GetBoolArg(args, "allPages", opts.Fetch.AllPages)

	days, err := common.GetIntArg(args, "days", opts.Fetch.WindowDays)
	if err != nil {
		return selection{}, err
	}
	if days < 1 {
		return selection{}, fmt.Errorf("'days' must be at least 1, got %d", days)
	}
	opts.Fetch.WindowDays = days

	paragraphs, err := common.GetIntArg(args, "paragraphs", opts.Paragraphs)
	if err != nil {
		return selection{}, err
	}
	opts.Paragraphs = paragraphs

	return selection{
		account: common.GetAccountFromArgs(args, sc.DefaultAccount()),
		opts:    opts,
	}, nil
}

func handleFetch(ctx context.Context, req mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	r, err := parseRequest(req, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := sc.Pipeline(r.account, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to access mailbox: %v", err)), nil
	}

	bodies, err := p.Bodies(ctx, r.opts.Fetch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatBodies(bodies)), nil
}

func formatBodies(bodies []gmail.Body) string {
	if len(bodies) == 0 {
		return noMessages
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d emails:\n", len(bodies))
	for i, body := range bodies {
		fmt.Fprintf(&b, "\n--- email %d (%s) ---\n%s\n", i+1, body.Kind, body.Text)
	}
	return b.String()
}

func articles(ctx context.Context, r selection, sc *server.ServerContext, withModel bool) (*digest.Pipeline, int, []extract.Article, error) {
	p, err := sc.Pipeline(r.account, withModel)
	if err != nil {
		return nil, 0, nil, err
	}
	emails, found, err := p.Articles(ctx, r.opts.Fetch)
	if err != nil {
		return nil, 0, nil, err
	}
	return p, emails, found, nil
}

func handleArticles(ctx context.Context, req mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	r, err := parseRequest(req, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, emails, found, err := articles(ctx, r, sc, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := json.MarshalIndent(digest.Result{Emails: emails, Articles: found}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode articles: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func handleTopics(ctx context.Context, req mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	r, err := parseRequest(req, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, _, found, err := articles(ctx, r, sc, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(found) == 0 {
		return mcp.NewToolResultText(noArticles), nil
	}

	topics, err := p.Topics(ctx, found, r.opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(topics), nil
}

func handleSummary(ctx context.Context, req mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	r, err := parseRequest(req, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if r.opts.Paragraphs < 1 {
		return mcp.NewToolResultError(fmt.Sprintf("'paragraphs' must be at least 1, got %d", r.opts.Paragraphs)), nil
	}
	p, _, found, err := articles(ctx, r, sc, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(found) == 0 {
		return mcp.NewToolResultText(noArticles), nil
	}

	summary, err := p.Summary(ctx, found, r.opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(summary), nil
}
