package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// schemaListLimit caps the columns listed in the default schema summary.
const schemaListLimit = 15

var (
	columnWord    = regexp.MustCompile(`\bcolumns?\b`)
	rowWord       = regexp.MustCompile(`\brows?\b`)
	attributeWord = regexp.MustCompile(`\battributes?\b`)
	listQuestion  = regexp.MustCompile(`\b(?:what|which)\s+(?:are\s+)?(?:the\s+)?(?:column|attribute)s?\b`)
)

// SchemaAnswer answers a schema question from dataset metadata alone.
// A nil version means nothing has been uploaded yet.
func SchemaAnswer(query string, v *models.DatasetVersion) string {
	if v == nil {
		return "No file has been uploaded yet. Upload a spreadsheet to see column and row information."
	}
	q := strings.ToLower(query)
	columns := v.OriginalColumnNames
	if len(columns) != len(v.ColumnNames) {
		columns = v.ColumnNames
	}
	columnCount := v.ColumnCount
	if columnCount == 0 {
		columnCount = len(columns)
	}

	listColumns := func() string {
		if len(columns) == 0 {
			return "No column names are stored for the active dataset."
		}
		return "The columns present are: " + strings.Join(columns, ", ") + "."
	}

	switch {
	case strings.Contains(q, "name") && (strings.Contains(q, "attribute") || strings.Contains(q, "column")):
		return listColumns()
	case listQuestion.MatchString(q):
		return listColumns()
	case columnWord.MatchString(q):
		return fmt.Sprintf("There are %d column(s) in the active dataset.", columnCount)
	case rowWord.MatchString(q):
		return fmt.Sprintf("There are %d row(s) in the active dataset.", v.RowCount)
	case attributeWord.MatchString(q):
		return fmt.Sprintf("There are %d attribute(s) (columns) in the active dataset.", columnCount)
	}

	listed := "(column names not stored)"
	if len(columns) > 0 {
		shown := columns
		if len(shown) > schemaListLimit {
			shown = shown[:schemaListLimit]
		}
		listed = strings.Join(shown, ", ")
		if len(columns) > schemaListLimit {
			listed += "..."
		}
	}
	return fmt.Sprintf("The active dataset has %d columns and %d rows. Columns: %s", columnCount, v.RowCount, listed)
}
