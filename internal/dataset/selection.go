package dataset

import (
	"fmt"
	"strings"
)

// Upload is a file chosen through the dataset_upload control.
type Upload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
}

// Size returns the payload length in bytes.
func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// Selection holds the state of the dataset form between user events.
// The preset behaves like a radio group: selecting one replaces the last.
// Selection does not enforce exclusivity between the upload and the preset;
// that is the job of the Policy applied at submission time.
// The zero value is an empty form.
type Selection struct {
	preset Preset
	upload *Upload
}

// SelectPreset marks p as the chosen preset, clearing any earlier choice.
func (s *Selection) SelectPreset(p Preset) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, string(p))
	}
	s.preset = p
	return nil
}

// ClearPreset unselects the radio group.
func (s *Selection) ClearPreset() {
	s.preset = ""
}

// AttachUpload sets the file control. The data is copied.
func (s *Selection) AttachUpload(u Upload) error {
	if strings.TrimSpace(u.Filename) == "" {
		return ErrEmptyUpload
	}
	cp := u
	cp.Data = append([]byte(nil), u.Data...)
	s.upload = &cp
	return nil
}

// DetachUpload empties the file control.
func (s *Selection) DetachUpload() {
	s.upload = nil
}

// Preset returns the selected preset, if any.
func (s Selection) Preset() (Preset, bool) {
	return s.preset, s.preset != ""
}

// Upload returns the attached file, if any.
func (s Selection) Upload() (Upload, bool) {
	if s.upload == nil {
		return Upload{}, false
	}
	return *s.upload, true
}

// Request snapshots the current state into a submission payload.
func (s Selection) Request() Request {
	req := Request{Dataset: s.preset}
	if s.upload != nil {
		u := *s.upload
		u.Data = append([]byte(nil), s.upload.Data...)
		req.Upload = &u
	}
	return req
}
