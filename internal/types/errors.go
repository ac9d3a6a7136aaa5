package types

import "errors"

// Domain specific errors surfaced to the transport layer.
var (
	ErrNotFound         = errors.New("requested item not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrStorage          = errors.New("storage failure")
	ErrUnauthenticated  = errors.New("authentication required or invalid credentials")
	ErrForbidden        = errors.New("action forbidden")
	ErrBadRequest       = errors.New("bad request")
)
