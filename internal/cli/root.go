// Package cli provides the command-line interface for kgforge.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kgforge/internal/client"
	"github.com/raphaelgruber/kgforge/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string
	userID    string

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kgforge",
	Short: "Build knowledge graphs from documents",
	Long: `kgforge uploads documents to a kgforge server, which extracts
entity-relation triples into a graph space and stores chunk vectors
for retrieval.

Text files are read by a language model; spreadsheets can be mapped
to triples directly with a column mapping.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		url := serverURL
		if url == "" {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			url = cfg.ServerURL
		}
		apiClient = client.New(url)
		slog.Debug("using server", "url", url)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// An interrupt cancels the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $KGFORGE_URL or http://localhost:8484)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id sent with requests")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(spacesCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(promptsCmd)
}
