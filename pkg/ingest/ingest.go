// Package ingest turns an uploaded spreadsheet into a dataset version and its
// row records. Headers are normalized to snake_case, date-like columns to ISO
// dates and amount-like columns to exact decimal strings; the row date comes
// from the first date column.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// Format is a supported upload format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatFromFilename picks the reader by file extension.
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%q: %w", name, apperrors.ErrUnsupportedFormat)
	}
}

// Table is raw spreadsheet content: a header row and data rows of cell text.
// Data rows may be shorter than the header.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadXLSX reads every sheet of a workbook. The first row of each sheet is
// its header; sheets are concatenated and aligned by normalized header name.
// Cells are read raw so numbers keep their stored precision and dates arrive
// as serial numbers.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var tables []*Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		tables = append(tables, &Table{Header: rows[0], Rows: rows[1:]})
	}
	return concat(tables), nil
}

// ReadCSV reads a comma-separated file whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return &Table{Header: header, Rows: records[1:]}, nil
}

// Read dispatches on format.
func Read(r io.Reader, format Format) (*Table, error) {
	switch format {
	case FormatXLSX:
		return ReadXLSX(r)
	case FormatCSV:
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("%q: %w", format, apperrors.ErrUnsupportedFormat)
	}
}

// concat merges sheets column-wise by normalized header. Columns first seen
// in a later sheet are appended and read as blank for earlier rows.
func concat(tables []*Table) *Table {
	switch len(tables) {
	case 0:
		return &Table{}
	case 1:
		return tables[0]
	}

	out := &Table{}
	index := make(map[string]int)
	for _, t := range tables {
		positions := make([]int, len(t.Header))
		for i, h := range t.Header {
			key := normalizeColumn(h)
			pos, ok := index[key]
			if !ok {
				pos = len(out.Header)
				index[key] = pos
				out.Header = append(out.Header, h)
			}
			positions[i] = pos
		}
		for _, row := range t.Rows {
			merged := make([]string, len(out.Header))
			for i, cell := range row {
				if i < len(positions) {
					merged[positions[i]] = cell
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

// Options are the upload's metadata.
type Options struct {
	Filename string
	Tag      string
	AsOfDate *time.Time
}

// Build converts t into a dataset version and its rows. IDs and the creation
// time are assigned by the row store. Rows whose cells are all blank are
// skipped.
func Build(t *Table, opts Options) (*models.DatasetVersion, []models.RowRecord, error) {
	if t == nil || len(t.Header) == 0 {
		return nil, nil, apperrors.ErrEmptyDataset
	}

	cols := normalizeColumns(t.Header)
	kinds := make([]columnKind, len(cols))
	for i, c := range cols {
		kinds[i] = kindOf(c)
	}
	dateCol := rowDateColumn(cols)

	var rows []models.RowRecord
	for _, raw := range t.Rows {
		fields := make(map[string]any, len(cols))
		blank := true
		for i, name := range cols {
			var cell string
			if i < len(raw) {
				cell = strings.TrimSpace(raw[i])
			}
			v := convert(cell, kinds[i])
			if v != nil {
				blank = false
			}
			fields[name] = v
		}
		if blank {
			continue
		}

		row := models.RowRecord{RowIndex: len(rows), Fields: fields, Tag: opts.Tag}
		if dateCol != "" {
			if s, ok := fields[dateCol].(string); ok {
				if d, err := time.Parse(models.DateLayout, s); err == nil {
					row.RowDate = &d
				}
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil, apperrors.ErrEmptyDataset
	}

	version := &models.DatasetVersion{
		Filename:            opts.Filename,
		ColumnNames:         cols,
		OriginalColumnNames: append([]string(nil), t.Header...),
		Tag:                 opts.Tag,
	}
	if opts.AsOfDate != nil {
		d := models.DateOf(*opts.AsOfDate)
		version.AsOfDate = &d
	}
	return version, rows, nil
}

// Load reads r in the format its filename implies and builds the version.
func Load(r io.Reader, opts Options) (*models.DatasetVersion, []models.RowRecord, error) {
	format, err := FormatFromFilename(opts.Filename)
	if err != nil {
		return nil, nil, err
	}
	t, err := Read(r, format)
	if err != nil {
		return nil, nil, err
	}
	version, rows, err := Build(t, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", opts.Filename, err)
	}
	return version, rows, nil
}
