package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/ingest"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/services"
)

const (
	// defaultRowsPageSize applies when GET .../rows has no limit.
	defaultRowsPageSize = 50
	// multipartMemory is how much of an upload is buffered in memory
	// before spilling to temp files.
	multipartMemory = 8 << 20
)

// DatasetRowsResponse is one page of a version's rows in sheet order.
type DatasetRowsResponse struct {
	DatasetVersionID uuid.UUID            `json:"dataset_version_id"`
	Table            *models.TablePayload `json:"table"`
	HasMore          bool                 `json:"has_more"`
}

// DatasetsHandler handles spreadsheet uploads and dataset version lookups.
type DatasetsHandler struct {
	datasets       services.DatasetService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewDatasetsHandler creates a new DatasetsHandler. maxUploadBytes caps the
// request body of an upload.
func NewDatasetsHandler(datasets services.DatasetService, maxUploadBytes int64, logger *zap.Logger) *DatasetsHandler {
	return &DatasetsHandler{datasets: datasets, maxUploadBytes: maxUploadBytes, logger: logger}
}

// RegisterRoutes registers the dataset handler's routes on the given mux.
func (h *DatasetsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/datasets", h.Upload)
	mux.HandleFunc("GET /api/datasets", h.List)
	mux.HandleFunc("GET /api/datasets/active", h.Active)
	mux.HandleFunc("GET /api/datasets/{vid}", h.Get)
	mux.HandleFunc("GET /api/datasets/{vid}/rows", h.Rows)
}

// Upload handles POST /api/datasets
// Multipart form: "file" (csv or xlsx), optional "tag" and "as_of_date"
// (YYYY-MM-DD). The new version becomes active.
func (h *DatasetsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large",
				fmt.Sprintf("Upload exceeds %d MB", h.maxUploadBytes>>20))
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_upload", "Request must be multipart/form-data with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing_file", "A file field is required")
		return
	}
	defer file.Close()

	opts := ingest.Options{Filename: header.Filename, Tag: r.FormValue("tag")}
	if raw := r.FormValue("as_of_date"); raw != "" {
		asOf, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_as_of_date", "as_of_date must be YYYY-MM-DD")
			return
		}
		opts.AsOfDate = &asOf
	}

	version, err := h.datasets.Upload(r.Context(), file, opts)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUnsupportedFormat):
			h.writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", "Only .csv and .xlsx files are supported")
		case errors.Is(err, apperrors.ErrEmptyDataset):
			h.writeError(w, http.StatusUnprocessableEntity, "empty_dataset", "The spreadsheet has no data rows")
		default:
			h.logger.Error("Failed to upload dataset", zap.String("filename", header.Filename), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "upload_failed", "Failed to store the spreadsheet")
		}
		return
	}

	response := ApiResponse{Success: true, Data: version}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/datasets
// Returns every dataset version, newest first.
func (h *DatasetsHandler) List(w http.ResponseWriter, r *http.Request) {
	versions, err := h.datasets.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list dataset versions", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list_datasets_failed", "Failed to list dataset versions")
		return
	}

	response := ApiResponse{Success: true, Data: versions}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Active handles GET /api/datasets/active
func (h *DatasetsHandler) Active(w http.ResponseWriter, r *http.Request) {
	snap := h.datasets.Active()
	if snap == nil {
		h.writeError(w, http.StatusNotFound, "no_active_dataset", "No dataset has been uploaded yet")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{
		"version": snap.Version,
		"tags":    snap.Tags,
	}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/datasets/{vid}
func (h *DatasetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	vid, ok := ParseDatasetVersionID(w, r, h.logger)
	if !ok {
		return
	}

	version, ok := h.lookup(w, r, vid)
	if !ok {
		return
	}

	response := ApiResponse{Success: true, Data: version}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Rows handles GET /api/datasets/{vid}/rows?limit=N
// Rows come back as a table under the spreadsheet's own headers.
func (h *DatasetsHandler) Rows(w http.ResponseWriter, r *http.Request) {
	vid, ok := ParseDatasetVersionID(w, r, h.logger)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r, defaultRowsPageSize, h.logger)
	if !ok {
		return
	}

	version, ok := h.lookup(w, r, vid)
	if !ok {
		return
	}

	rows, more, err := h.datasets.Rows(r.Context(), vid, limit)
	if err != nil {
		h.logger.Error("Failed to read dataset rows", zap.String("dataset_version_id", vid.String()), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "rows_failed", "Failed to read rows")
		return
	}

	response := ApiResponse{Success: true, Data: DatasetRowsResponse{
		DatasetVersionID: vid,
		Table:            services.RowsTable(version, rows),
		HasMore:          more,
	}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DatasetsHandler) lookup(w http.ResponseWriter, r *http.Request, vid uuid.UUID) (*models.DatasetVersion, bool) {
	version, err := h.datasets.Get(r.Context(), vid)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "dataset_version_not_found", "Dataset version not found")
			return nil, false
		}
		h.logger.Error("Failed to get dataset version", zap.String("dataset_version_id", vid.String()), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "get_dataset_failed", "Failed to get dataset version")
		return nil, false
	}
	return version, true
}

func (h *DatasetsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
