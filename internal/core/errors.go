package core

import "errors"

// Parse errors: the file never reaches validation.
var (
	ErrEmptyFile         = errors.New("empty file: no data rows")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidFile       = errors.New("invalid spreadsheet file")
	ErrFileTooLarge      = errors.New("file too large")
)

// Gate errors: the import cannot start.
var (
	ErrMissingColumns    = errors.New("missing required column")
	ErrValidationBlocked = errors.New("import blocked by validation errors")
)

// Row commit errors.
var (
	ErrMatriculeExhausted = errors.New("matricule sequence exhausted")
	ErrMatriculeTaken     = errors.New("matricule already exists")
)

// Session errors.
var (
	ErrImportInProgress = errors.New("import already in progress for this school")
	ErrSessionNotFound  = errors.New("import session not found")
	ErrInvalidState     = errors.New("invalid import state")
	ErrMissingTenant    = errors.New("missing school id")
)
