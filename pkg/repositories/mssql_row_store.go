package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// MSSQLRowStore is the SQL Server row store. Column names and row fields are
// stored as JSON text.
type MSSQLRowStore struct {
	db *sql.DB
}

var _ RowStore = (*MSSQLRowStore)(nil)

// OpenMSSQL opens a pool for connStr and verifies it answers.
func OpenMSSQL(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open SQL Server connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return db, nil
}

func NewMSSQLRowStore(db *sql.DB) *MSSQLRowStore {
	return &MSSQLRowStore{db: db}
}

func (s *MSSQLRowStore) CreateDatasetVersion(ctx context.Context, version *models.DatasetVersion, rows []models.RowRecord) error {
	if err := prepareVersion(version, rows); err != nil {
		return err
	}
	columns, err := json.Marshal(version.ColumnNames)
	if err != nil {
		return fmt.Errorf("failed to marshal column names: %w", err)
	}
	original, err := json.Marshal(nonNilStrings(version.OriginalColumnNames))
	if err != nil {
		return fmt.Errorf("failed to marshal original column names: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO insight_dataset_versions (`+versionColumns+`)
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9)`,
		mssql.UniqueIdentifier(version.ID),
		version.Filename,
		string(columns),
		string(original),
		version.RowCount,
		version.ColumnCount,
		version.Tag,
		version.AsOfDate,
		version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset version: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO insight_rows (id, dataset_version_id, row_index, fields, row_date, tag)
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6)`)
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields of row %d: %w", r.RowIndex, err)
		}
		_, err = stmt.ExecContext(ctx,
			mssql.UniqueIdentifier(r.ID),
			mssql.UniqueIdentifier(r.DatasetVersionID),
			r.RowIndex,
			string(fields),
			r.RowDate,
			r.Tag,
		)
		if err != nil {
			return fmt.Errorf("failed to insert row %d: %w", r.RowIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dataset version: %w", err)
	}
	return nil
}

func (s *MSSQLRowStore) FindRows(ctx context.Context, q models.RowQuery) ([]models.RowRecord, error) {
	if err := validateRowQuery(q); err != nil {
		return nil, err
	}

	var (
		where = []string{"r.dataset_version_id = @p1"}
		args  = []any{mssql.UniqueIdentifier(q.DatasetVersionID)}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("@p%d", len(args))
	}
	if from, to := eventRange(q.EventDateRange); from != nil {
		where = append(where, fmt.Sprintf("r.row_date BETWEEN CAST(%s AS DATE) AND CAST(%s AS DATE)", arg(*from), arg(*to)))
	}
	if q.CreationDateRange != nil && !q.CreationDateRange.IsZero() {
		where = append(where, fmt.Sprintf("CAST(v.created_at AS DATE) BETWEEN CAST(%s AS DATE) AND CAST(%s AS DATE)",
			arg(q.CreationDateRange.From), arg(q.CreationDateRange.To)))
	}
	if q.Tag != "" {
		where = append(where, fmt.Sprintf("LOWER(r.tag) = LOWER(%s)", arg(q.Tag)))
	}

	top := ""
	if q.Limit > 0 {
		top = "TOP (" + arg(q.Limit) + ") "
	}
	query := `
		SELECT ` + top + `r.id, r.dataset_version_id, r.row_index, r.fields, r.row_date, r.tag
		FROM insight_rows r
		JOIN insight_dataset_versions v ON v.id = r.dataset_version_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY r.row_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	out := make([]models.RowRecord, 0)
	for rows.Next() {
		var (
			r       models.RowRecord
			id, vid mssql.UniqueIdentifier
			raw     string
			rowDate sql.NullTime
		)
		if err := rows.Scan(&id, &vid, &r.RowIndex, &raw, &rowDate, &r.Tag); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.ID, r.DatasetVersionID = uuid.UUID(id), uuid.UUID(vid)
		if rowDate.Valid {
			d := models.DateOf(rowDate.Time)
			r.RowDate = &d
		}
		if r.Fields, err = decodeFields([]byte(raw)); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (s *MSSQLRowStore) GetActiveDatasetVersion(ctx context.Context) (*models.DatasetVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT TOP 1 `+versionColumns+`
		FROM insight_dataset_versions
		ORDER BY created_at DESC, id DESC`)
	v, err := scanMSSQLVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNoActiveDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active dataset version: %w", err)
	}
	return v, nil
}

func (s *MSSQLRowStore) GetActiveDatasetSchema(ctx context.Context) (*models.DatasetSchema, error) {
	v, err := s.GetActiveDatasetVersion(ctx)
	if err != nil {
		return nil, err
	}
	schema := v.Schema()
	return &schema, nil
}

func (s *MSSQLRowStore) GetActiveDatasetMeta(ctx context.Context) (*models.DatasetMeta, error) {
	v, err := s.GetActiveDatasetVersion(ctx)
	if err != nil {
		return nil, err
	}
	meta := v.Meta()
	return &meta, nil
}

func (s *MSSQLRowStore) GetDatasetVersion(ctx context.Context, id uuid.UUID) (*models.DatasetVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM insight_dataset_versions
		WHERE id = @p1`, mssql.UniqueIdentifier(id))
	v, err := scanMSSQLVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset version %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset version: %w", err)
	}
	return v, nil
}

func (s *MSSQLRowStore) ListDatasetVersions(ctx context.Context) ([]*models.DatasetVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM insight_dataset_versions
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset versions: %w", err)
	}
	defer rows.Close()

	var out []*models.DatasetVersion
	for rows.Next() {
		v, err := scanMSSQLVersion(rows)
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

func (s *MSSQLRowStore) GetNearbyDates(ctx context.Context, versionID uuid.UUID, tag string, near time.Time, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT TOP (@p4) d FROM (
			SELECT DISTINCT row_date AS d
			FROM insight_rows
			WHERE dataset_version_id = @p1
			  AND row_date IS NOT NULL
			  AND (@p2 = '' OR LOWER(tag) = LOWER(@p2))
		) dates
		ORDER BY ABS(DATEDIFF(day, d, CAST(@p3 AS DATE))), d`,
		mssql.UniqueIdentifier(versionID), tag, models.DateOf(near), limit)
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

func (s *MSSQLRowStore) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(tag)
		FROM insight_rows
		WHERE tag <> ''
		GROUP BY LOWER(tag)
		ORDER BY MIN(tag)`)
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

func (s *MSSQLRowStore) Close() {
	s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMSSQLVersion(row scanner) (*models.DatasetVersion, error) {
	var (
		v                 models.DatasetVersion
		id                mssql.UniqueIdentifier
		columns, original string
		asOf              sql.NullTime
	)
	err := row.Scan(
		&id,
		&v.Filename,
		&columns,
		&original,
		&v.RowCount,
		&v.ColumnCount,
		&v.Tag,
		&asOf,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.ID = uuid.UUID(id)
	v.CreatedAt = v.CreatedAt.UTC()
	if asOf.Valid {
		d := models.DateOf(asOf.Time)
		v.AsOfDate = &d
	}
	if err := json.Unmarshal([]byte(columns), &v.ColumnNames); err != nil {
		return nil, fmt.Errorf("failed to decode column names: %w", err)
	}
	if err := json.Unmarshal([]byte(original), &v.OriginalColumnNames); err != nil {
		return nil, fmt.Errorf("failed to decode original column names: %w", err)
	}
	return &v, nil
}
