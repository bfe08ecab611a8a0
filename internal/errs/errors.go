package errs

import "errors"

var (
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("persistence failed")
	ErrNotFound     = errors.New("not found")
	ErrOffline      = errors.New("target offline")
	ErrUnauthorized = errors.New("unauthorized")
)
