package contract

import "errors"

var (
	ErrModelInvoke      = errors.New("model invoke failed")
	ErrSchemaViolation  = errors.New("model response violates schema")
	ErrPromptMissing    = errors.New("required prompt is missing")
	ErrValidation       = errors.New("validation failed")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrToolNotAllowed   = errors.New("tool is not allowed for category")
	ErrToolLoopExceeded = errors.New("tool round limit exceeded")
)
