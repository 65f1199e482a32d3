package database

import "errors"

// Error taxonomy shared by the service and the store. Handlers map these to
// HTTP statuses; the store's rollback path distinguishes them from transient
// failures only for reporting, not for behavior (any failure triggers refetch).
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("conflict")
)
