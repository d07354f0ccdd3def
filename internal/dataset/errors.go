package dataset

import "errors"

// Validation errors returned by ParsePreset and Policy.Check.
var (
	ErrUnknownPreset      = errors.New("unknown dataset preset")
	ErrNothingSelected    = errors.New("no dataset uploaded or selected")
	ErrAmbiguousSelection = errors.New("both an upload and a preset dataset were given")
	ErrEmptyUpload        = errors.New("upload has no filename")
	ErrInvalidFilename    = errors.New("upload filename is not a plain file name")
)
