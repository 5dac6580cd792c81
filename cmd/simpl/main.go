package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gitea.knapp/jacoknapp/simpl/internal/bootstrap"
)

var (
	Version = "dev"

	flagConfig string
	flagJSON   bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simpl",
		Short: "Database wrapper with a query result cache",
		Long: `simpl runs statements against a MySQL or SQLite database through a
lazily connected wrapper that counts queries, switches schemas on demand and
caches SELECT results.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", getenv("SIMPL_CONFIG_PATH", "/data/simpl.yaml"), "Config file (or SIMPL_CONFIG_PATH env var)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")

	root.AddCommand(serveCmd(), queryCmd(), cacheCmd(), sessionCmd())
	return root
}

// loadRuntime bootstraps from --config. Logs go to stderr so stdout stays
// clean for command output.
func loadRuntime(ctx context.Context) (*bootstrap.Runtime, error) {
	rt, err := bootstrap.EnsureFirstRun(ctx, flagConfig, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return rt, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
