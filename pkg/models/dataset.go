package models

import (
	"time"

	"github.com/google/uuid"
)

// DatasetVersion is one ingested spreadsheet snapshot. It is immutable once
// created; the most recently created version is the active one.
type DatasetVersion struct {
	ID                  uuid.UUID  `json:"id"`
	Filename            string     `json:"filename,omitempty"`
	ColumnNames         []string   `json:"column_names"`                    // normalized
	OriginalColumnNames []string   `json:"original_column_names,omitempty"` // as found in the header row
	RowCount            int        `json:"row_count"`
	ColumnCount         int        `json:"column_count"`
	Tag                 string     `json:"tag,omitempty"` // client/tenant tag, optional
	AsOfDate            *time.Time `json:"as_of_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Schema returns the column-level view of the version.
func (v *DatasetVersion) Schema() DatasetSchema {
	cols := make([]string, len(v.ColumnNames))
	copy(cols, v.ColumnNames)
	return DatasetSchema{
		ColumnNames: cols,
		RowCount:    v.RowCount,
		ColumnCount: v.ColumnCount,
	}
}

// Meta returns the identity view of the version.
func (v *DatasetVersion) Meta() DatasetMeta {
	return DatasetMeta{
		DatasetVersionID: v.ID,
		CreatedAt:        v.CreatedAt,
		Tag:              v.Tag,
		AsOfDate:         v.AsOfDate,
	}
}

// ReferenceDate is the date relative expressions ("last month", "10 Jan")
// are anchored to: the as-of date when present, otherwise the upload day.
func (v *DatasetVersion) ReferenceDate() time.Time {
	if v.AsOfDate != nil {
		return DateOf(*v.AsOfDate)
	}
	return DateOf(v.CreatedAt)
}

// DatasetSchema is what the resolver sees of a dataset version.
type DatasetSchema struct {
	ColumnNames []string `json:"column_names"`
	RowCount    int      `json:"row_count"`
	ColumnCount int      `json:"column_count"`
}

// DatasetMeta identifies the active dataset version.
type DatasetMeta struct {
	DatasetVersionID uuid.UUID  `json:"dataset_version_id"`
	CreatedAt        time.Time  `json:"created_at"`
	Tag              string     `json:"tag,omitempty"`
	AsOfDate         *time.Time `json:"as_of_date,omitempty"`
}

// RowRecord is a single spreadsheet row owned by one dataset version.
type RowRecord struct {
	ID               uuid.UUID      `json:"id"`
	DatasetVersionID uuid.UUID      `json:"dataset_version_id"`
	RowIndex         int            `json:"row_index"`
	Fields           map[string]any `json:"fields"`
	RowDate          *time.Time     `json:"row_date,omitempty"` // event date from the row's own data
	Tag              string         `json:"tag,omitempty"`
}

// Field returns the named field, or nil when the row does not carry it.
func (r *RowRecord) Field(name string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}

// RowQuery is the filter passed to the row store. DatasetVersionID is
// mandatory; every other filter is optional.
type RowQuery struct {
	DatasetVersionID  uuid.UUID
	EventDateRange    *DateRange
	CreationDateRange *DateRange
	Tag               string
	Limit             int
}
