package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalid          = errors.New("invalid request")
	ErrUnauthorised     = errors.New("unauthorised")
	ErrGenerationFailed = errors.New("generation failed")
	ErrTransient        = errors.New("transient failure")
)
