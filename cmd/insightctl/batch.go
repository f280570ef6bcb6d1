package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-insight/pkg/app"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// batchResult pairs a question with its answer.
type batchResult struct {
	Question string         `json:"question"`
	Answer   *models.Answer `json:"answer"`
}

// readQuestions returns the non-blank lines of r that are not # comments.
func readQuestions(r io.Reader) ([]string, error) {
	var questions []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading questions: %w", err)
	}
	return questions, nil
}

// answerAll answers questions concurrently, at most limit at a time. Results
// keep the input order. The first engine error cancels the rest.
func answerAll(ctx context.Context, engine *app.App, questions []string, limit int) ([]batchResult, error) {
	results := make([]batchResult, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, q := range questions {
		g.Go(func() error {
			answer, err := engine.Answers.ResolveAndAnswer(gctx, q, nil)
			if err != nil {
				return fmt.Errorf("question %d %q: %w", i+1, truncate(q, 60), err)
			}
			results[i] = batchResult{Question: q, Answer: answer}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func newBatchCmd(c *cli) *cobra.Command {
	var (
		file        string
		flags       uploadFlags
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "batch QUESTIONS_FILE",
		Short: "Answer every question in a file, one per line",
		Long: `Answer every question in a file against the same dataset version.

Blank lines and lines starting with # are skipped. Answers are printed in
the order the questions appear.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return errors.New("--concurrency must be at least 1")
			}

			qf, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening questions: %w", err)
			}
			questions, err := readQuestions(qf)
			qf.Close()
			if err != nil {
				return err
			}

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

			results, err := answerAll(ctx, engine, questions, concurrency)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), results, func(w io.Writer) error {
				for i, r := range results {
					if i > 0 {
						fmt.Fprintln(w, strings.Repeat("-", 40))
					}
					fmt.Fprintf(w, "Q: %s\n", r.Question)
					if err := printAnswer(w, r.Answer); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Spreadsheet to load before answering")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Questions answered in parallel")
	flags.register(cmd)
	return cmd
}
