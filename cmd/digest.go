package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/newsdigest/internal/digest"
	"github.com/teemow/newsdigest/internal/llm"
	"github.com/teemow/newsdigest/internal/server"
)

func newDigestCmd() *cobra.Command {
	var (
		sel         selectionFlags
		paragraphs  int
		skipTopics  bool
		skipSummary bool
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Summarize recent newsletter emails",
		Long: `Fetch recent newsletter emails, extract their articles and ask the
language model for a clustered topic list and a multi-paragraph summary.

The OpenAI API key is read from openai.api_key, OPENAI_API_KEY or the OS
keyring (see 'newsdigest auth openai').`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				account, fetch, err := sel.apply(cmd, a)
				if err != nil {
					return err
				}
				opts := server.DigestOptions(a.cfg)
				opts.Fetch = fetch
				opts.SkipTopics = skipTopics
				opts.SkipSummary = skipSummary
				if cmd.Flags().Changed("paragraphs") {
					opts.Paragraphs = paragraphs
				}
				if !opts.SkipSummary && opts.Paragraphs < 1 {
					return fmt.Errorf("--paragraphs must be at least 1, got %d", opts.Paragraphs)
				}

				var completer llm.Completer
				if !skipTopics || !skipSummary {
					c, err := server.NewLLMClient(a.cfg, a.logger, a.metrics())
					if err != nil {
						return err
					}
					completer = c
				}

				client, err := server.NewGmailClient(ctx, a.cfg, account, a.logger, a.metrics())
				if err != nil {
					return fmt.Errorf("failed to create Gmail client for account %s: %w", account, err)
				}

				res, err := digest.New(client, completer, a.logger, a.metrics()).Run(ctx, opts)
				if err != nil {
					return err
				}
				if jsonOut {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}
				return digest.Render(os.Stdout, res)
			})
		},
	}

	sel.register(cmd)
	cmd.Flags().IntVar(&paragraphs, "paragraphs", 0, "Number of summary paragraphs (default: digest.paragraphs)")
	cmd.Flags().BoolVar(&skipTopics, "skip-topics", false, "Do not generate the topic list")
	cmd.Flags().BoolVar(&skipSummary, "skip-summary", false, "Do not generate the summary")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")

	return cmd
}
