package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrNoActiveDataset   = errors.New("no active dataset version")
	ErrEmptyDataset      = errors.New("dataset has no rows")
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrMetricUnresolved  = errors.New("metric column not resolved")
	ErrInvalidPlan       = errors.New("invalid plan")
	ErrCapabilityAbsent  = errors.New("text-understanding capability not configured")
)
