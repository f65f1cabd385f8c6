package service

import "errors"

// Sentinel error kinds surfaced by the workflow and reconciler entry
// points. Handlers map them to HTTP status codes with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotFound           = errors.New("not found")
)
