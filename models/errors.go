package models

import "errors"

// Error kinds. Callers wrap them with context and match with errors.Is.
var (
	ErrConnection = errors.New("serial connection error")
	ErrParse      = errors.New("telemetry parse error")
	ErrFrame      = errors.New("frame error")
	ErrActuation  = errors.New("actuation error")
)
