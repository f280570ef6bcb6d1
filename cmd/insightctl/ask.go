package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

func newAskCmd(c *cli) *cobra.Command {
	var (
		file    string
		flags   uploadFlags
		confirm bool
	)

	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer one question against the active dataset",
		Long: `Answer one question against the active dataset version.

When an answer asks "Did you mean ...?", re-run the same question with
--confirm to accept the suggested correction.`,
		Example: `  insightctl ask --file jan.csv "GST on 12 Jan 2025"
  insightctl ask "salse last month"
  insightctl ask --confirm "salse last month"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := c.engine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			if file != "" {
				if _, err := loadFile(ctx, engine, file, &flags); err != nil {
					return err
				}
			}

			var clarification *models.ClarificationContext
			if confirm {
				clarification = &models.ClarificationContext{OriginalQuery: args[0], Confirmed: true}
			}

			answer, err := engine.Answers.ResolveAndAnswer(ctx, args[0], clarification)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), answer, func(w io.Writer) error {
				return printAnswer(w, answer)
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Spreadsheet to load before asking")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Accept the correction suggested for this question")
	flags.register(cmd)
	return cmd
}
