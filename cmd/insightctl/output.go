package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// outputFormat specifies how to render CLI output.
type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

// parseOutputFormat parses and validates the output format flag.
func parseOutputFormat(s string) (outputFormat, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return outputText, nil
	case "json":
		return outputJSON, nil
	case "yaml":
		return outputYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (supported: text, json, yaml)", s)
	}
}

// printOutput renders data as JSON or YAML, or calls text for the human form.
func printOutput(w io.Writer, format outputFormat, data any, text func(io.Writer) error) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case outputYAML:
		// Round-trip through JSON so decimals, UUIDs and times keep their
		// JSON spelling instead of yaml.v3's struct reflection.
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return text(w)
	}
}

// printTable writes aligned columnar output.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, strings.ToUpper(h))
	}
	fmt.Fprintln(tw)

	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}

	return tw.Flush()
}

// printAnswer writes the message, then any table, then a one-line trailer
// naming the outcome and dataset version.
func printAnswer(w io.Writer, a *models.Answer) error {
	fmt.Fprintln(w, a.Message)
	if a.Table != nil && len(a.Table.Rows) > 0 {
		fmt.Fprintln(w)
		if err := printTable(w, a.Table.Columns, a.Table.Rows); err != nil {
			return err
		}
	}
	if a.Chart != nil {
		fmt.Fprintf(w, "\nchart: %s (%d points)\n", a.Chart.Type, len(a.Chart.Points))
	}
	_, err := fmt.Fprintf(w, "\n[%s] rows=%d cache_hit=%t dataset=%s\n",
		a.Outcome, a.Diagnostics.RowsFetched, a.Diagnostics.CacheHit, a.Diagnostics.DatasetVersionID)
	return err
}

// truncate shortens a string to maxLen, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
