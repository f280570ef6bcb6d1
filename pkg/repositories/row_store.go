package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// RowStore persists dataset versions and their rows. Versions and rows are
// immutable once created; the most recently created version is active.
type RowStore interface {
	// CreateDatasetVersion stores a version and all of its rows atomically.
	CreateDatasetVersion(ctx context.Context, version *models.DatasetVersion, rows []models.RowRecord) error
	// FindRows returns rows of exactly one version in row order.
	FindRows(ctx context.Context, q models.RowQuery) ([]models.RowRecord, error)
	GetActiveDatasetVersion(ctx context.Context) (*models.DatasetVersion, error)
	GetActiveDatasetSchema(ctx context.Context) (*models.DatasetSchema, error)
	GetActiveDatasetMeta(ctx context.Context) (*models.DatasetMeta, error)
	GetDatasetVersion(ctx context.Context, id uuid.UUID) (*models.DatasetVersion, error)
	// ListDatasetVersions returns every version, newest first.
	ListDatasetVersions(ctx context.Context) ([]*models.DatasetVersion, error)
	// GetNearbyDates returns distinct row dates closest to near.
	GetNearbyDates(ctx context.Context, versionID uuid.UUID, tag string, near time.Time, limit int) ([]time.Time, error)
	// ListTags returns the distinct non-empty client tags across all versions.
	ListTags(ctx context.Context) ([]string, error)
	Close()
}

func validateRowQuery(q models.RowQuery) error {
	if q.DatasetVersionID == uuid.Nil {
		return fmt.Errorf("find rows without a dataset version: %w", apperrors.ErrInvalidPlan)
	}
	return nil
}

// prepareVersion fills identifiers and counts before a version is stored.
func prepareVersion(version *models.DatasetVersion, rows []models.RowRecord) error {
	if version == nil {
		return fmt.Errorf("create dataset version: %w", apperrors.ErrInvalidPlan)
	}
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	version.RowCount = len(rows)
	version.ColumnCount = len(version.ColumnNames)
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		rows[i].DatasetVersionID = version.ID
		if rows[i].Tag == "" {
			rows[i].Tag = version.Tag
		}
		if rows[i].RowDate != nil {
			d := models.DateOf(*rows[i].RowDate)
			rows[i].RowDate = &d
		}
	}
	return nil
}

// decodeFields reads a JSON object keeping numbers as json.Number so money
// values survive without float rounding.
func decodeFields(raw []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if len(raw) == 0 {
		return fields, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode row fields: %w", err)
	}
	return fields, nil
}

// creationInRange reports whether a version's upload day falls in r.
func creationInRange(v *models.DatasetVersion, r *models.DateRange) bool {
	if r == nil || r.IsZero() {
		return true
	}
	return r.Contains(v.CreatedAt)
}

func eventRange(r *models.DateRange) (from, to *time.Time) {
	if r == nil || r.IsZero() {
		return nil, nil
	}
	f, t := r.From, r.To
	return &f, &t
}
