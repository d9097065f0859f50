package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the newsdigest application
var rootCmd = &cobra.Command{
	Use:   "newsdigest",
	Short: "Summarizes newsletter emails from Gmail",
	Long: `newsdigest reads recent newsletter emails from Gmail, extracts the
articles they contain and asks a language model for a topic list and a
short digest.

It can run as:
  - A standalone CLI tool (default)
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath      string
	logLevel        string
	logFormat       string
	metricsTextfile string
}

var globals globalOptions

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "newsdigest version %s\n" .Version}}`)

	// If no subcommand is provided, run the fetch command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "fetch")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globals.configPath, "config", "", "Path to the YAML config file (default: $XDG_CONFIG_HOME/newsdigest/config.yaml)")
	pf.StringVar(&globals.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides log.level)")
	pf.StringVar(&globals.logFormat, "log-format", "", "Log format: text or json (overrides log.format)")
	pf.StringVar(&globals.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file when the command finishes")

	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newDigestCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
