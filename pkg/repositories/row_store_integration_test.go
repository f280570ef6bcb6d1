//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// testRowStoreRoundTrip runs the same checks against any empty SQL-backed
// store.
func testRowStoreRoundTrip(t *testing.T, s RowStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.GetActiveDatasetVersion(ctx)
	require.ErrorIs(t, err, apperrors.ErrNoActiveDataset)

	older, _ := seedVersion(t, s, "Acme", time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC))
	newer, _ := seedVersion(t, s, "Beta", time.Date(2025, 2, 2, 9, 0, 0, 0, time.UTC))

	active, err := s.GetActiveDatasetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, active.ID)
	assert.Equal(t, []string{"rowdate", "amount", "gst", "category"}, active.ColumnNames)
	assert.Equal(t, 4, active.RowCount)

	versions, err := s.ListDatasetVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, older.ID, versions[1].ID)

	jan12 := models.SingleDay(*day(time.January, 12))
	rows, err := s.FindRows(ctx, models.RowQuery{DatasetVersionID: older.ID, EventDateRange: &jan12})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, older.ID, rows[0].DatasetVersionID)
	assert.Equal(t, "Acme", rows[0].Tag)
	assert.Equal(t, "2500.50", rows[0].Fields["amount"])
	assert.Equal(t, *day(time.January, 12), *rows[0].RowDate)

	rows, err = s.FindRows(ctx, models.RowQuery{DatasetVersionID: older.ID, Tag: "beta"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.FindRows(ctx, models.RowQuery{DatasetVersionID: older.ID, CreationDateRange: models.SingleDay(newer.CreatedAt).Ptr()})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.FindRows(ctx, models.RowQuery{DatasetVersionID: older.ID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	dates, err := s.GetNearbyDates(ctx, older.ID, "", *day(time.January, 11), 5)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{*day(time.January, 10), *day(time.January, 12)}, dates)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Beta"}, tags)
}
