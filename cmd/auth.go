package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/newsdigest/internal/credential"
	"github.com/teemow/newsdigest/internal/server"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}
	cmd.AddCommand(newAuthGoogleCmd())
	cmd.AddCommand(newAuthOpenAICmd())
	return cmd
}

func newAuthGoogleCmd() *cobra.Command {
	var (
		account string
		reset   bool
	)

	cmd := &cobra.Command{
		Use:   "google",
		Short: "Authorize read-only Gmail access and store the token",
		Long: `Run the Google authorization flow for an account and store the token.

A browser window opens on the consent page; after approval the token is
written to the token directory. An existing valid token is reused unless
--reset is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if !cmd.Flags().Changed("account") {
					account = a.cfg.Google.Account
				}
				auth, err := server.NewAuthenticator(a.cfg, account, a.logger, a.metrics())
				if err != nil {
					return err
				}
				if reset {
					if err := auth.Forget(); err != nil {
						return err
					}
				}
				if _, err := auth.TokenSource(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Google account %q authorized; token stored in %s\n", auth.Account(), auth.TokenPath())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Google account name (default: google.account)")
	cmd.Flags().BoolVar(&reset, "reset", false, "Discard the stored token and authorize again")

	return cmd
}

func newAuthOpenAICmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "openai [api-key]",
		Short: "Store the OpenAI API key in the OS keyring",
		Long: `Store the OpenAI API key in the OS keyring. Without an argument the key
is read from the first line of standard input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remove {
				if err := credential.Delete(credential.OpenAIKey); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "OpenAI API key removed from the keyring")
				return nil
			}

			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				fmt.Fprint(cmd.ErrOrStderr(), "OpenAI API key: ")
				var err error
				if key, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if err := credential.Set(credential.OpenAIKey, strings.TrimSpace(key)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OpenAI API key stored in the keyring")
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the stored key instead")

	return cmd
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if sc.Scan() {
		return sc.Text(), nil
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return "", nil
}
