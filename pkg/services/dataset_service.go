package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/cache"
	"github.com/ekaya-inc/ekaya-insight/pkg/ingest"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insight/pkg/retrieval"
)

// DatasetSnapshot is the active dataset as one query sees it. It is
// immutable; registering a version publishes a new snapshot.
type DatasetSnapshot struct {
	Version *models.DatasetVersion
	Tags    []string // client tags known to the row store
}

// Schema returns the column-level view of the snapshot's version.
func (s *DatasetSnapshot) Schema() models.DatasetSchema {
	return s.Version.Schema()
}

// DatasetService owns dataset versions and the active-version pointer.
type DatasetService interface {
	// Upload parses a spreadsheet and registers it as a new version.
	Upload(ctx context.Context, r io.Reader, opts ingest.Options) (*models.DatasetVersion, error)

	// Register stores a version with its rows, indexes it for retrieval and
	// makes the newest stored version active.
	Register(ctx context.Context, version *models.DatasetVersion, rows []models.RowRecord) (*models.DatasetVersion, error)

	// Active returns the current snapshot, or nil before anything is loaded.
	Active() *DatasetSnapshot

	// Refresh reloads the active version and tags from the row store.
	Refresh(ctx context.Context) error

	// Get returns one version by id.
	Get(ctx context.Context, id uuid.UUID) (*models.DatasetVersion, error)

	// List returns every version, newest first.
	List(ctx context.Context) ([]*models.DatasetVersion, error)

	// Rows returns up to limit rows of a version in sheet order, capped by
	// the configured row limit, and whether more exist.
	Rows(ctx context.Context, id uuid.UUID, limit int) ([]models.RowRecord, bool, error)

	// VersionUploadedIn returns the newest version created within r, or
	// ErrNotFound.
	VersionUploadedIn(ctx context.Context, r models.DateRange) (*models.DatasetVersion, error)
}

type datasetService struct {
	store    repositories.RowStore
	indexer  retrieval.Indexer // nil when retrieval is not configured
	cache    *cache.AggregateCache
	rowLimit int
	active   atomic.Pointer[DatasetSnapshot]
	mu       sync.Mutex // serializes publishing
	logger   *zap.Logger
}

// NewDatasetService creates the service. indexer may be nil.
func NewDatasetService(
	store repositories.RowStore,
	indexer retrieval.Indexer,
	aggCache *cache.AggregateCache,
	rowLimit int,
	logger *zap.Logger,
) DatasetService {
	if rowLimit <= 0 {
		rowLimit = 500
	}
	return &datasetService{
		store:    store,
		indexer:  indexer,
		cache:    aggCache,
		rowLimit: rowLimit,
		logger:   logger.Named("datasets"),
	}
}

func (s *datasetService) Upload(ctx context.Context, r io.Reader, opts ingest.Options) (*models.DatasetVersion, error) {
	version, rows, err := ingest.Load(r, opts)
	if err != nil {
		return nil, err
	}
	return s.Register(ctx, version, rows)
}

func (s *datasetService) Register(ctx context.Context, version *models.DatasetVersion, rows []models.RowRecord) (*models.DatasetVersion, error) {
	if len(rows) == 0 {
		return nil, apperrors.ErrEmptyDataset
	}
	if err := s.store.CreateDatasetVersion(ctx, version, rows); err != nil {
		return nil, fmt.Errorf("failed to store dataset version: %w", err)
	}
	s.logger.Info("Stored dataset version",
		zap.String("dataset_version_id", version.ID.String()),
		zap.String("filename", version.Filename),
		zap.String("tag", version.Tag),
		zap.Int("rows", version.RowCount),
		zap.Int("columns", version.ColumnCount))

	// Retrieval only supplies phrasing context; a version that failed to
	// index still answers every question.
	if s.indexer != nil {
		if err := s.indexer.Index(ctx, version, rows); err != nil {
			s.logger.Warn("Failed to index dataset version for retrieval",
				zap.String("dataset_version_id", version.ID.String()),
				zap.Error(err))
		}
	}

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return version, nil
}

func (s *datasetService) Active() *DatasetSnapshot {
	return s.active.Load()
}

func (s *datasetService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.store.GetActiveDatasetVersion(ctx)
	if errors.Is(err, apperrors.ErrNoActiveDataset) {
		s.logger.Info("No dataset version stored yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load active dataset version: %w", err)
	}
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("failed to list client tags: %w", err)
	}

	prev := s.active.Load()
	// The cache switches before the pointer so no query bound to the new
	// version can read an entry computed for the old one.
	s.cache.Activate(version.ID)
	s.active.Store(&DatasetSnapshot{Version: version, Tags: tags})

	if prev == nil || prev.Version.ID != version.ID {
		s.logger.Info("Activated dataset version",
			zap.String("dataset_version_id", version.ID.String()),
			zap.Time("created_at", version.CreatedAt),
			zap.Int("known_tags", len(tags)))
	}
	return nil
}

func (s *datasetService) Get(ctx context.Context, id uuid.UUID) (*models.DatasetVersion, error) {
	return s.store.GetDatasetVersion(ctx, id)
}

func (s *datasetService) List(ctx context.Context) ([]*models.DatasetVersion, error) {
	return s.store.ListDatasetVersions(ctx)
}

func (s *datasetService) Rows(ctx context.Context, id uuid.UUID, limit int) ([]models.RowRecord, bool, error) {
	if limit <= 0 || limit > s.rowLimit {
		limit = s.rowLimit
	}
	if _, err := s.store.GetDatasetVersion(ctx, id); err != nil {
		return nil, false, err
	}
	rows, err := s.store.FindRows(ctx, models.RowQuery{DatasetVersionID: id, Limit: limit + 1})
	if err != nil {
		return nil, false, fmt.Errorf("failed to list rows: %w", err)
	}
	if len(rows) > limit {
		return rows[:limit], true, nil
	}
	return rows, false, nil
}

func (s *datasetService) VersionUploadedIn(ctx context.Context, r models.DateRange) (*models.DatasetVersion, error) {
	versions, err := s.store.ListDatasetVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset versions: %w", err)
	}
	for _, v := range versions {
		if r.Contains(v.CreatedAt) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("no dataset version uploaded %s: %w", r, apperrors.ErrNotFound)
}
