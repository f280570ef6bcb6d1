//go:build integration

package repositories

import (
	"testing"

	"github.com/ekaya-inc/ekaya-insight/pkg/testhelpers"
)

func TestPostgresRowStore_RoundTrip(t *testing.T) {
	db := testhelpers.GetInsightDB(t)
	testhelpers.TruncateRowStore(t, db.DB)

	testRowStoreRoundTrip(t, NewPostgresRowStore(db.DB))
}
