package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/newsdigest/internal/gmail"
	"github.com/teemow/newsdigest/internal/server"
)

// selectionFlags are the flags choosing which emails to read.
type selectionFlags struct {
	account  string
	query    string
	days     int
	allPages bool
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.account, "account", "", "Google account name (default: google.account)")
	cmd.Flags().StringVar(&f.query, "query", "", "Gmail search query (default: gmail.query)")
	cmd.Flags().IntVar(&f.days, "days", 0, "Only read emails from the trailing number of days (default: gmail.window_days)")
	cmd.Flags().BoolVar(&f.allPages, "all-pages", false, "Follow result pages beyond the first")
}

// apply overlays the flags that were set on the configured selection.
func (f *selectionFlags) apply(cmd *cobra.Command, a *app) (string, gmail.FetchOptions, error) {
	opts := server.DigestOptions(a.cfg).Fetch
	account := a.cfg.Google.Account

	if cmd.Flags().Changed("account") {
		account = f.account
	}
	if cmd.Flags().Changed("query") {
		opts.Query = f.query
	}
	if cmd.Flags().Changed("days") {
		if f.days < 1 {
			return "", opts, fmt.Errorf("--days must be at least 1, got %d", f.days)
		}
		opts.WindowDays = f.days
	}
	if cmd.Flags().Changed("all-pages") {
		opts.AllPages = f.allPages
	}
	return account, opts, nil
}

func newFetchCmd() *cobra.Command {
	var (
		sel      selectionFlags
		jsonOut  bool
		htmlBody bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Print the decoded bodies of recent newsletter emails",
		Long: `Authenticate with Gmail, search for newsletter emails from the trailing
window and print the decoded body of each one.

On first use a browser window opens for Google authorization; the token is
stored and refreshed automatically afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				account, opts, err := sel.apply(cmd, a)
				if err != nil {
					return err
				}
				client, err := server.NewGmailClient(ctx, a.cfg, account, a.logger, a.metrics())
				if err != nil {
					return fmt.Errorf("failed to create Gmail client for account %s: %w", account, err)
				}
				bodies, err := client.FetchBodies(ctx, opts)
				if err != nil {
					return err
				}
				return printBodies(os.Stdout, bodies, jsonOut, htmlBody)
			})
		},
	}

	sel.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the bodies as a JSON array of strings")
	cmd.Flags().BoolVar(&htmlBody, "html", false, "Print the HTML source instead of the text when a message has one")

	return cmd
}

func printBodies(w io.Writer, bodies []gmail.Body, jsonOut, htmlBody bool) error {
	texts := make([]string, len(bodies))
	for i, b := range bodies {
		texts[i] = b.Text
		if htmlBody {
			texts[i] = b.Markup()
		}
	}

	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(texts)
	}
	for i, t := range texts {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, t); err != nil {
			return err
		}
	}
	return nil
}
