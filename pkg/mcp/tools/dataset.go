package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/logging"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/services"
)

// defaultSampleRows applies when sample_rows is called without a limit.
const defaultSampleRows = 10

// DatasetToolDeps contains the dependencies of the dataset tools.
type DatasetToolDeps struct {
	Answers  services.AnswerService
	Datasets services.DatasetService
	Logger   *zap.Logger
}

// RegisterDatasetTools registers ask_dataset, describe_dataset and
// sample_rows with the MCP server.
func RegisterDatasetTools(s *server.MCPServer, deps *DatasetToolDeps) {
	registerAskDatasetTool(s, deps)
	registerDescribeDatasetTool(s, deps)
	registerSampleRowsTool(s, deps)
}

func registerAskDatasetTool(s *server.MCPServer, deps *DatasetToolDeps) {
	tool := mcp.NewTool(
		"ask_dataset",
		mcp.WithDescription(
			"Answer a natural-language question about the uploaded spreadsheet, e.g. "+
				"'GST on 12 Jan 2025' or 'expense breakdown by category'. "+
				"Returns an answer with an outcome: answered, schema, clarification, blocked, "+
				"unresolved_column, ambiguous_column, scope_violation, no_data or no_dataset. "+
				"When the outcome is clarification, ask the user and call again with confirmed=true "+
				"and original_query set to the first question.",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("The question, in the user's own words"),
		),
		mcp.WithBoolean(
			"confirmed",
			mcp.Description("True when the user confirmed a previous clarification"),
		),
		mcp.WithString(
			"original_query",
			mcp.Description("The question that triggered the clarification being confirmed"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}

		var clarification *models.ClarificationContext
		if confirmed, ok := getOptionalBool(req, "confirmed"); ok && confirmed {
			original := getOptionalString(req, "original_query")
			if original == "" {
				original = query
			}
			clarification = &models.ClarificationContext{OriginalQuery: original, Confirmed: true}
		}

		answer, err := deps.Answers.ResolveAndAnswer(ctx, query, clarification)
		if err != nil {
			deps.Logger.Error("ask_dataset failed",
				zap.String("query", logging.SanitizeQuery(query)),
				zap.String("error", logging.SanitizeError(err)))
			return nil, fmt.Errorf("failed to answer question: %w", err)
		}
		return jsonResult(answer)
	})
}

type describeDatasetResponse struct {
	DatasetVersionID    uuid.UUID  `json:"dataset_version_id"`
	Filename            string     `json:"filename,omitempty"`
	Columns             []string   `json:"columns"`
	OriginalColumnNames []string   `json:"original_column_names,omitempty"`
	RowCount            int        `json:"row_count"`
	ColumnCount         int        `json:"column_count"`
	Tags                []string   `json:"tags,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	AsOfDate            *time.Time `json:"as_of_date,omitempty"`
	VersionCount        int        `json:"version_count"`
}

func registerDescribeDatasetTool(s *server.MCPServer, deps *DatasetToolDeps) {
	tool := mcp.NewTool(
		"describe_dataset",
		mcp.WithDescription(
			"Describe the active spreadsheet: its columns, row count, client tags and upload date. "+
				"Use this to learn which metrics and dimensions can be asked about.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := deps.Datasets.Active()
		if snap == nil {
			return NewErrorResult("no_active_dataset", "No spreadsheet has been uploaded yet"), nil
		}

		versions, err := deps.Datasets.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list dataset versions: %w", err)
		}

		v := snap.Version
		return jsonResult(describeDatasetResponse{
			DatasetVersionID:    v.ID,
			Filename:            v.Filename,
			Columns:             v.ColumnNames,
			OriginalColumnNames: v.OriginalColumnNames,
			RowCount:            v.RowCount,
			ColumnCount:         v.ColumnCount,
			Tags:                snap.Tags,
			CreatedAt:           v.CreatedAt,
			AsOfDate:            v.AsOfDate,
			VersionCount:        len(versions),
		})
	})
}

type sampleRowsResponse struct {
	DatasetVersionID uuid.UUID            `json:"dataset_version_id"`
	Table            *models.TablePayload `json:"table"`
	RowCount         int                  `json:"row_count"`
	HasMore          bool                 `json:"has_more"`
}

func registerSampleRowsTool(s *server.MCPServer, deps *DatasetToolDeps) {
	tool := mcp.NewTool(
		"sample_rows",
		mcp.WithDescription(
			"Return the first rows of the active spreadsheet under its original headers. "+
				"Useful to see how values are written before asking a question.",
		),
		mcp.WithNumber(
			"limit",
			mcp.Description(fmt.Sprintf("Number of rows to return (default %d)", defaultSampleRows)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := deps.Datasets.Active()
		if snap == nil {
			return NewErrorResult("no_active_dataset", "No spreadsheet has been uploaded yet"), nil
		}

		limit := defaultSampleRows
		if n, ok := getOptionalInt(req, "limit"); ok {
			if n <= 0 {
				return NewErrorResult("invalid_limit", "limit must be a positive number"), nil
			}
			limit = n
		}

		rows, more, err := deps.Datasets.Rows(ctx, snap.Version.ID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}

		return jsonResult(sampleRowsResponse{
			DatasetVersionID: snap.Version.ID,
			Table:            services.RowsTable(snap.Version, rows),
			RowCount:         len(rows),
			HasMore:          more,
		})
	})
}
