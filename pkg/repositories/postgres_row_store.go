package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/database"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// PostgresRowStore keeps versions in insight_dataset_versions and rows in
// insight_rows with their fields as jsonb.
type PostgresRowStore struct {
	db *database.DB
}

var _ RowStore = (*PostgresRowStore)(nil)

func NewPostgresRowStore(db *database.DB) *PostgresRowStore {
	return &PostgresRowStore{db: db}
}

const versionColumns = `id, filename, column_names, original_column_names,
	row_count, column_count, tag, as_of_date, created_at`

func (s *PostgresRowStore) CreateDatasetVersion(ctx context.Context, version *models.DatasetVersion, rows []models.RowRecord) error {
	if err := prepareVersion(version, rows); err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO insight_dataset_versions (`+versionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			version.ID,
			version.Filename,
			version.ColumnNames,
			nonNilStrings(version.OriginalColumnNames),
			version.RowCount,
			version.ColumnCount,
			version.Tag,
			version.AsOfDate,
			version.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create dataset version: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		copyRows := make([][]any, len(rows))
		for i, r := range rows {
			fields, err := json.Marshal(r.Fields)
			if err != nil {
				return fmt.Errorf("failed to marshal fields of row %d: %w", r.RowIndex, err)
			}
			copyRows[i] = []any{r.ID, r.DatasetVersionID, r.RowIndex, string(fields), r.RowDate, r.Tag}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"insight_rows"},
			[]string{"id", "dataset_version_id", "row_index", "fields", "row_date", "tag"},
			pgx.CopyFromRows(copyRows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy rows: %w", err)
		}
		return nil
	})
}

func (s *PostgresRowStore) FindRows(ctx context.Context, q models.RowQuery) ([]models.RowRecord, error) {
	if err := validateRowQuery(q); err != nil {
		return nil, err
	}

	var (
		where = []string{"r.dataset_version_id = $1"}
		args  = []any{q.DatasetVersionID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if from, to := eventRange(q.EventDateRange); from != nil {
		where = append(where, fmt.Sprintf("r.row_date BETWEEN %s AND %s", arg(*from), arg(*to)))
	}
	if q.CreationDateRange != nil && !q.CreationDateRange.IsZero() {
		where = append(where, fmt.Sprintf("(v.created_at AT TIME ZONE 'UTC')::date BETWEEN %s AND %s",
			arg(q.CreationDateRange.From), arg(q.CreationDateRange.To)))
	}
	if q.Tag != "" {
		where = append(where, fmt.Sprintf("lower(r.tag) = lower(%s)", arg(q.Tag)))
	}

	query := `
		SELECT r.id, r.dataset_version_id, r.row_index, r.fields, r.row_date, r.tag
		FROM insight_rows r
		JOIN insight_dataset_versions v ON v.id = r.dataset_version_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY r.row_index`
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	out := make([]models.RowRecord, 0)
	for rows.Next() {
		var (
			r   models.RowRecord
			raw []byte
		)
		if err := rows.Scan(&r.ID, &r.DatasetVersionID, &r.RowIndex, &raw, &r.RowDate, &r.Tag); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if r.Fields, err = decodeFields(raw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (s *PostgresRowStore) GetActiveDatasetVersion(ctx context.Context) (*models.DatasetVersion, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM insight_dataset_versions
		ORDER BY created_at DESC, id DESC
		LIMIT 1`)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNoActiveDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active dataset version: %w", err)
	}
	return v, nil
}

func (s *PostgresRowStore) GetActiveDatasetSchema(ctx context.Context) (*models.DatasetSchema, error) {
	v, err := s.GetActiveDatasetVersion(ctx)
	if err != nil {
		return nil, err
	}
	schema := v.Schema()
	return &schema, nil
}

func (s *PostgresRowStore) GetActiveDatasetMeta(ctx context.Context) (*models.DatasetMeta, error) {
	v, err := s.GetActiveDatasetVersion(ctx)
	if err != nil {
		return nil, err
	}
	meta := v.Meta()
	return &meta, nil
}

func (s *PostgresRowStore) GetDatasetVersion(ctx context.Context, id uuid.UUID) (*models.DatasetVersion, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM insight_dataset_versions
		WHERE id = $1`, id)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("dataset version %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset version: %w", err)
	}
	return v, nil
}

func (s *PostgresRowStore) ListDatasetVersions(ctx context.Context) ([]*models.DatasetVersion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+versionColumns+`
		FROM insight_dataset_versions
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset versions: %w", err)
	}
	defer rows.Close()

	var out []*models.DatasetVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset versions: %w", err)
	}
	return out, nil
}

func (s *PostgresRowStore) GetNearbyDates(ctx context.Context, versionID uuid.UUID, tag string, near time.Time, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx, `
		SELECT d FROM (
			SELECT DISTINCT row_date AS d
			FROM insight_rows
			WHERE dataset_version_id = $1
			  AND row_date IS NOT NULL
			  AND ($2 = '' OR lower(tag) = lower($2))
		) dates
		ORDER BY abs(d - $3::date), d
		LIMIT $4`,
		versionID, tag, models.DateOf(near), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby dates: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan nearby date: %w", err)
		}
		out = append(out, models.DateOf(d))
	}
	return out, rows.Err()
}

func (s *PostgresRowStore) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT min(tag)
		FROM insight_rows
		WHERE tag <> ''
		GROUP BY lower(tag)
		ORDER BY min(tag)`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *PostgresRowStore) Close() {
	s.db.Close()
}

func scanVersion(row pgx.Row) (*models.DatasetVersion, error) {
	var v models.DatasetVersion
	err := row.Scan(
		&v.ID,
		&v.Filename,
		&v.ColumnNames,
		&v.OriginalColumnNames,
		&v.RowCount,
		&v.ColumnCount,
		&v.Tag,
		&v.AsOfDate,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
