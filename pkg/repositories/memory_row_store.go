package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// MemoryRowStore keeps everything in process. It backs the CLI, tests and
// single-node deployments without a database.
type MemoryRowStore struct {
	mu       sync.RWMutex
	versions []*models.DatasetVersion // insertion order
	rows     map[uuid.UUID][]models.RowRecord
}

var _ RowStore = (*MemoryRowStore)(nil)

func NewMemoryRowStore() *MemoryRowStore {
	return &MemoryRowStore{rows: make(map[uuid.UUID][]models.RowRecord)}
}

func (s *MemoryRowStore) CreateDatasetVersion(ctx context.Context, version *models.DatasetVersion, rows []models.RowRecord) error {
	if err := prepareVersion(version, rows); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[version.ID]; exists {
		return fmt.Errorf("dataset version %s: %w", version.ID, apperrors.ErrConflict)
	}
	v := *version
	s.versions = append(s.versions, &v)
	stored := make([]models.RowRecord, len(rows))
	copy(stored, rows)
	s.rows[version.ID] = stored
	return nil
}

func (s *MemoryRowStore) FindRows(ctx context.Context, q models.RowQuery) ([]models.RowRecord, error) {
	if err := validateRowQuery(q); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	version := s.find(q.DatasetVersionID)
	if version == nil || !creationInRange(version, q.CreationDateRange) {
		return []models.RowRecord{}, nil
	}

	out := make([]models.RowRecord, 0)
	for _, row := range s.rows[q.DatasetVersionID] {
		if q.EventDateRange != nil && !q.EventDateRange.IsZero() {
			if row.RowDate == nil || !q.EventDateRange.Contains(*row.RowDate) {
				continue
			}
		}
		if q.Tag != "" && !strings.EqualFold(row.Tag, q.Tag) {
			continue
		}
		out = append(out, row)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// active is the most recently created version; ties go to the later insert.
func (s *MemoryRowStore) active() *models.DatasetVersion {
	var best *models.DatasetVersion
	for _, v := range s.versions {
		if best == nil || !v.CreatedAt.Before(best.CreatedAt) {
			best = v
		}
	}
	return best
}

func (s *MemoryRowStore) find(id uuid.UUID) *models.DatasetVersion {
	for _, v := range s.versions {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func (s *MemoryRowStore) GetActiveDatasetVersion(ctx context.Context) (*models.DatasetVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.active()
	if v == nil {
		return nil, apperrors.ErrNoActiveDataset
	}
	c := *v
	return &c, nil
}

func (s *MemoryRowStore) GetActiveDatasetSchema(ctx context.Context) (*models.DatasetSchema, error) {
	v, err := s.GetActiveDatasetVersion(ctx)
	if err != nil {
		return nil, err
	}
	schema := v.Schema()
	return &schema, nil
}

func (s *MemoryRowStore) GetActiveDatasetMeta(ctx context.Context) (*models.DatasetMeta, error) {
	v, err := s.GetActiveDatasetVersion(ctx)
	if err != nil {
		return nil, err
	}
	meta := v.Meta()
	return &meta, nil
}

func (s *MemoryRowStore) GetDatasetVersion(ctx context.Context, id uuid.UUID) (*models.DatasetVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.find(id)
	if v == nil {
		return nil, fmt.Errorf("dataset version %s: %w", id, apperrors.ErrNotFound)
	}
	c := *v
	return &c, nil
}

func (s *MemoryRowStore) ListDatasetVersions(ctx context.Context) ([]*models.DatasetVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.DatasetVersion, 0, len(s.versions))
	for i := len(s.versions) - 1; i >= 0; i-- {
		c := *s.versions[i]
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryRowStore) GetNearbyDates(ctx context.Context, versionID uuid.UUID, tag string, near time.Time, limit int) ([]time.Time, error) {
	s.mu.RLock()
	seen := make(map[time.Time]struct{})
	for _, row := range s.rows[versionID] {
		if row.RowDate == nil || (tag != "" && !strings.EqualFold(row.Tag, tag)) {
			continue
		}
		seen[models.DateOf(*row.RowDate)] = struct{}{}
	}
	s.mu.RUnlock()

	return closestDates(seen, models.DateOf(near), limit), nil
}

// closestDates orders dates by distance from near, earlier first on ties.
func closestDates(set map[time.Time]struct{}, near time.Time, limit int) []time.Time {
	dates := make([]time.Time, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	dist := func(d time.Time) time.Duration {
		if d.Before(near) {
			return near.Sub(d)
		}
		return d.Sub(near)
	}
	sort.Slice(dates, func(i, j int) bool {
		di, dj := dist(dates[i]), dist(dates[j])
		if di != dj {
			return di < dj
		}
		return dates[i].Before(dates[j])
	})
	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}
	return dates
}

func (s *MemoryRowStore) ListTags(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]string)
	for _, rows := range s.rows {
		for _, row := range rows {
			if row.Tag == "" {
				continue
			}
			key := strings.ToLower(row.Tag)
			if _, ok := seen[key]; !ok {
				seen[key] = row.Tag
			}
		}
	}
	tags := make([]string, 0, len(seen))
	for _, t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *MemoryRowStore) Close() {}
