package main

import (
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

func printVersions(w io.Writer, versions []*models.DatasetVersion) error {
	headers := []string{"id", "filename", "tag", "rows", "columns", "as_of", "created"}
	rows := make([][]string, 0, len(versions))
	for _, v := range versions {
		asOf := "-"
		if v.AsOfDate != nil {
			asOf = v.AsOfDate.Format(time.DateOnly)
		}
		tag := v.Tag
		if tag == "" {
			tag = "-"
		}
		rows = append(rows, []string{
			v.ID.String(),
			truncate(v.Filename, 32),
			tag,
			strconv.Itoa(v.RowCount),
			strconv.Itoa(v.ColumnCount),
			asOf,
			v.CreatedAt.Format(time.RFC3339),
		})
	}
	return printTable(w, headers, rows)
}

func newVersionsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List stored dataset versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			versions, err := engine.Datasets.List(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), versions, func(w io.Writer) error {
				return printVersions(w, versions)
			})
		},
	}
}
