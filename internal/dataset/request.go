package dataset

import (
	"fmt"
	"strings"
)

// Request is the payload produced when the form is submitted. It is built
// fresh for each submission and not retained afterwards.
type Request struct {
	Dataset Preset
	Upload  *Upload
}

// HasUpload reports whether a file is attached.
func (r Request) HasUpload() bool {
	return r.Upload != nil && r.Upload.Filename != ""
}

// HasDataset reports whether a preset is selected.
func (r Request) HasDataset() bool {
	return r.Dataset != ""
}

// Policy decides which requests may be submitted.
type Policy string

// Supported policies.
const (
	// PolicyExactlyOne requires exactly one of an upload or a preset. The
	// Other preset names a custom dataset and may accompany an upload.
	PolicyExactlyOne Policy = "exactly_one"
	// PolicyPermissive submits whatever the form holds, including nothing,
	// matching plain HTML form behavior.
	PolicyPermissive Policy = "permissive"
)

// ParsePolicy resolves a configuration value. An empty string yields
// PolicyExactlyOne.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyExactlyOne:
		return PolicyExactlyOne, nil
	case PolicyPermissive:
		return PolicyPermissive, nil
	default:
		return "", fmt.Errorf("unknown submission policy %q", raw)
	}
}

// Check validates req against the policy. A set preset must always be one
// of the known literals.
func (p Policy) Check(req Request) error {
	if req.HasDataset() && !req.Dataset.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, string(req.Dataset))
	}
	if p == PolicyPermissive {
		return nil
	}
	switch {
	case req.HasUpload() && req.HasDataset() && req.Dataset != PresetOther:
		return ErrAmbiguousSelection
	case !req.HasUpload() && !req.HasDataset():
		return ErrNothingSelected
	}
	return nil
}
