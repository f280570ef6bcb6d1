// Package main provides insightctl, a command-line client that runs the
// resolution and analytics engine in-process: load spreadsheets, ask
// questions one at a time or in batches, and inspect dataset versions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/app"
	"github.com/ekaya-inc/ekaya-insight/pkg/config"
)

var version = "dev"

// cli carries the global flags and the engine factory shared by subcommands.
type cli struct {
	configPath string
	output     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "insightctl",
		Short: "Ask questions about uploaded spreadsheets",
		Long: `insightctl runs the insight engine locally against the configured row store.

Load a spreadsheet, then ask questions such as "GST on 12 Jan 2025" or
"monthly sales trend for Acme". With the default in-memory store nothing
survives between invocations, so pass --file to ask and batch.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := parseOutputFormat(c.output)
			return err
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "config.yaml", "Path to config.yaml; environment variables override it")
	rootCmd.PersistentFlags().StringVarP(&c.output, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log engine activity to stderr")

	rootCmd.AddCommand(newLoadCmd(c))
	rootCmd.AddCommand(newAskCmd(c))
	rootCmd.AddCommand(newBatchCmd(c))
	rootCmd.AddCommand(newVersionsCmd(c))

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// engine loads configuration and starts an engine. Callers must Close it.
func (c *cli) engine(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadFile(c.configPath, version)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if c.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
	}

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("starting engine: %w", err)
	}
	return engine, nil
}

func (c *cli) format() outputFormat {
	f, _ := parseOutputFormat(c.output)
	return f
}

func (c *cli) print(w io.Writer, data any, text func(io.Writer) error) error {
	return printOutput(w, c.format(), data, text)
}
