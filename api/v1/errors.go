package v1

import "errors"

var (
	ErrRunID   = errors.New("run id is required")
	ErrEncode  = errors.New("unable to marshal json")
	ErrUnknown = errors.New("internal error")
)
