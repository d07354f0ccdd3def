// Package dataset models the dataset a user picks for augmentation training:
// the preset enumeration, the selection state behind the form, and the
// multipart request that carries it to the intake endpoint.
package dataset

import "fmt"

// Preset names one of the pre-registered datasets offered as radio choices.
type Preset string

// Preset values are sent verbatim as the dataset_selection form field.
const (
	PresetMNIST        Preset = "MNIST"
	PresetKMNIST       Preset = "KMNIST"
	PresetFashionMNIST Preset = "FashionMNIST"
	PresetCIFAR10      Preset = "CIFAR10"
	PresetCIFAR100     Preset = "CIFAR100"
	PresetOther        Preset = "Other"
)

// Form contract shared by the rendered page, the client and the intake.
const (
	SubmitPath     = "/user_input"
	FieldUpload    = "dataset_upload"
	FieldSelection = "dataset_selection"
)

var presets = []Preset{
	PresetMNIST,
	PresetKMNIST,
	PresetFashionMNIST,
	PresetCIFAR10,
	PresetCIFAR100,
	PresetOther,
}

// Presets returns the presets in the order the form lists them.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// ParsePreset resolves a form value to a Preset. Matching is exact; the
// literals are case sensitive on the wire.
func ParsePreset(raw string) (Preset, error) {
	p := Preset(raw)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, raw)
	}
	return p, nil
}

// Valid reports whether p is one of the six presets.
func (p Preset) Valid() bool {
	for _, known := range presets {
		if p == known {
			return true
		}
	}
	return false
}

// Label is the human readable radio label.
func (p Preset) Label() string {
	return string(p) + " dataset"
}

func (p Preset) String() string {
	return string(p)
}
