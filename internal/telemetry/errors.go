package telemetry

import "codeberg.org/mutker/boostctl/internal/errors"

const (
	ErrMissingBound   = errors.ErrorCode("telemetry_missing_bound")
	ErrInvalidRange   = errors.ErrorCode("telemetry_invalid_range")
	ErrAlreadyRunning = errors.ErrorCode("telemetry_already_running")
	ErrInvalidTick    = errors.ErrorCode("telemetry_invalid_interval")
)
