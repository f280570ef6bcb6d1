// Package retrieval provides similarity search over row documents. It is
// consulted only for explanation and summarize questions and only supplies
// phrasing context; numbers always come from the row store.
package retrieval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/textmatch"
)

// Scope is the metadata stored with every indexed document.
type Scope struct {
	DatasetVersionID uuid.UUID  `json:"dataset_version_id"`
	Tag              string     `json:"tag,omitempty"`
	RowDate          *time.Time `json:"row_date,omitempty"`
	UploadDate       time.Time  `json:"upload_date"`
}

// ScopeFilter restricts a search. DatasetVersionID is mandatory; an empty
// tag or zero range matches everything.
type ScopeFilter struct {
	DatasetVersionID uuid.UUID
	Tag              string
	RowDates         models.DateRange
}

// Matches reports whether a document's scope satisfies the filter.
func (f ScopeFilter) Matches(s Scope) bool {
	if f.DatasetVersionID == uuid.Nil || s.DatasetVersionID != f.DatasetVersionID {
		return false
	}
	if f.Tag != "" && textmatch.Fold(f.Tag) != textmatch.Fold(s.Tag) {
		return false
	}
	if !f.RowDates.IsZero() {
		if s.RowDate == nil || !f.RowDates.Contains(*s.RowDate) {
			return false
		}
	}
	return true
}

// Match is one search hit.
type Match struct {
	ID       string  `json:"id"`
	Document string  `json:"document"`
	Score    float64 `json:"score"`
	Scope    Scope   `json:"scope"`
}

// Retriever is the similarity search the data agent consults.
type Retriever interface {
	QuerySimilar(ctx context.Context, text string, filter ScopeFilter, topK int) ([]Match, error)
}

// Indexer stores the documents of a newly registered dataset version.
type Indexer interface {
	Index(ctx context.Context, version *models.DatasetVersion, rows []models.RowRecord) error
}

// FilterScope drops every match whose scope does not satisfy filter. Callers
// apply it even to results a retriever already filtered.
func FilterScope(matches []Match, filter ScopeFilter) []Match {
	out := matches[:0:0]
	for _, m := range matches {
		if filter.Matches(m.Scope) {
			out = append(out, m)
		}
	}
	return out
}
