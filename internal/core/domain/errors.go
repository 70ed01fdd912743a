package domain

import "errors"

var (
	ErrInvalidToken    = errors.New("invalid query token")
	ErrNotReadOnly     = errors.New("only read-only statements may be re-executed")
	ErrNotFound        = errors.New("not found")
	ErrMalformedRecord = errors.New("malformed query record")
	ErrUnavailable     = errors.New("query execution is unavailable")
)
