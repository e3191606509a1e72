package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnavailable   = errors.New("collection unavailable")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrInvalidSchema = errors.New("invalid schema")
)
