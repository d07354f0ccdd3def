package intake

import "errors"

// Errors reported by the intake. Policy and preset errors come from the
// dataset package and are passed through wrapped.
var (
	ErrNotFound           = errors.New("submission not found")
	ErrUnsupportedArchive = errors.New("upload is not a zip archive")
	ErrInvalidLayout      = errors.New("invalid dataset folder layout")
)
