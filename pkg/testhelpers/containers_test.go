//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestInsightDB_Migrated(t *testing.T) {
	db := GetInsightDB(t)

	ctx := context.Background()

	for _, table := range []string{"insight_dataset_versions", "insight_rows"} {
		var exists bool
		err := db.DB.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
			table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to look up %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist after migrations", table)
		}
	}
}

func TestSQLServerDB_Migrated(t *testing.T) {
	db := GetSQLServerDB(t)

	for _, table := range []string{"insight_dataset_versions", "insight_rows"} {
		var n int
		err := db.DB.QueryRowContext(context.Background(),
			"SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = @p1", table).Scan(&n)
		if err != nil {
			t.Fatalf("failed to look up %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("expected table %s to exist after migrations", table)
		}
	}
}
