package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

const ledgerCSV = "Date,Amount,GST\n10/01/2025,1000,180\n12/01/2025,2500.50,450\n12/01/2025,500,90\n"

// run executes insightctl with an in-memory store and no language model.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LLM_PROVIDER", "none")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_PrintsVersion(t *testing.T) {
	csv := writeFile(t, "jan.csv", ledgerCSV)

	out, err := run(t, "-o", "json", "load", csv, "--tag", "Acme", "--as-of", "2025-01-31")
	require.NoError(t, err)

	var v models.DatasetVersion
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "jan.csv", v.Filename)
	assert.Equal(t, "Acme", v.Tag)
	assert.Equal(t, 3, v.RowCount)
	require.NotNil(t, v.AsOfDate)
	assert.Equal(t, "2025-01-31", v.AsOfDate.Format("2006-01-02"))
}

func TestLoad_RejectsBadAsOf(t *testing.T) {
	csv := writeFile(t, "jan.csv", ledgerCSV)

	_, err := run(t, "load", csv, "--as-of", "31/01/2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --as-of")
}

func TestAsk_AnswersFromLoadedFile(t *testing.T) {
	csv := writeFile(t, "jan.csv", ledgerCSV)

	out, err := run(t, "-o", "json", "ask", "--file", csv, "--tag", "Acme", "GST on 12 Jan 2025")
	require.NoError(t, err)

	var answer models.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, models.OutcomeAnswered, answer.Outcome)
	require.NotNil(t, answer.Result)
	assert.True(t, decimal.NewFromInt(540).Equal(answer.Result.Total))
}

func TestAsk_WithoutDataset(t *testing.T) {
	out, err := run(t, "ask", "GST on 12 Jan 2025")
	require.NoError(t, err, "a missing dataset is an answer, not a failure")
	assert.Contains(t, out, "[no_dataset]")
}

func TestBatch_KeepsQuestionOrder(t *testing.T) {
	csv := writeFile(t, "jan.csv", ledgerCSV)
	questions := writeFile(t, "questions.txt", "# January checks\nGST on 12 Jan 2025\n\nGST on 10 Jan 2025\n")

	out, err := run(t, "-o", "json", "batch", questions, "--file", csv, "--tag", "Acme", "--concurrency", "2")
	require.NoError(t, err)

	var results []batchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "GST on 12 Jan 2025", results[0].Question)
	assert.Equal(t, "GST on 10 Jan 2025", results[1].Question)
	require.NotNil(t, results[1].Answer.Result)
	assert.True(t, decimal.NewFromInt(180).Equal(results[1].Answer.Result.Total))
}

func TestBatch_RejectsZeroConcurrency(t *testing.T) {
	questions := writeFile(t, "questions.txt", "GST on 12 Jan 2025\n")

	_, err := run(t, "batch", questions, "--concurrency", "0")
	assert.Error(t, err)
}

func TestVersions_EmptyStore(t *testing.T) {
	out, err := run(t, "versions")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ID"), out)
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "-o", "xml", "versions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestReadQuestions(t *testing.T) {
	qs, err := readQuestions(strings.NewReader("  sales last month \n# skip\n\ngst by client\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sales last month", "gst by client"}, qs)
}

func TestPrintOutput_YAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	v := models.DatasetVersion{Filename: "jan.csv", RowCount: 3}

	require.NoError(t, printOutput(&buf, outputYAML, v, nil))
	assert.Contains(t, buf.String(), "filename: jan.csv")
	assert.Contains(t, buf.String(), "row_count: 3")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
}
