package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-insight/pkg/app"
	"github.com/ekaya-inc/ekaya-insight/pkg/ingest"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// uploadFlags are shared by every command that can load a spreadsheet.
type uploadFlags struct {
	tag  string
	asOf string
}

func (f *uploadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tag, "tag", "", "Client tag stored with the dataset version")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "As-of date of the spreadsheet (YYYY-MM-DD)")
}

func (f *uploadFlags) options(path string) (ingest.Options, error) {
	opts := ingest.Options{Filename: filepath.Base(path), Tag: f.tag}
	if f.asOf != "" {
		d, err := time.Parse(time.DateOnly, f.asOf)
		if err != nil {
			return opts, fmt.Errorf("invalid --as-of %q: expected YYYY-MM-DD", f.asOf)
		}
		opts.AsOfDate = &d
	}
	return opts, nil
}

// loadFile uploads the spreadsheet at path into the engine.
func loadFile(ctx context.Context, engine *app.App, path string, flags *uploadFlags) (*models.DatasetVersion, error) {
	opts, err := flags.options(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	v, err := engine.Datasets.Upload(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return v, nil
}

func newLoadCmd(c *cli) *cobra.Command {
	var flags uploadFlags

	cmd := &cobra.Command{
		Use:   "load FILE",
		Short: "Load a CSV or XLSX spreadsheet as a new dataset version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			v, err := loadFile(cmd.Context(), engine, args[0], &flags)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), v, func(w io.Writer) error {
				return printVersions(w, []*models.DatasetVersion{v})
			})
		},
	}
	flags.register(cmd)
	return cmd
}
