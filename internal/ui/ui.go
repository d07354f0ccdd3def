// Package ui renders the HTML screens served by augmentweb: the dataset
// selection form, the static progress page and the rejected-dataset page.
package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/JakeFAU/augmentweb/internal/dataset"
)

//go:embed templates/*.html.tmpl
var templateFiles embed.FS

// Fixed copy shown on the screens.
const (
	HomeTitle       = "Meta Reinforcement Learning for Data Augmentation"
	ProgressTitle   = "Data Auto-Augmentation"
	ProgressMessage = "Our auto-augment agents are working hard to generate your data augmentation policy ..."
	RejectedTitle   = "Dataset rejected"

	progressIndicators = 4
)

// Option is one radio choice on the selection form.
type Option struct {
	ID      string
	Value   string
	Label   string
	Checked bool
}

// HomeView is the data bound to the selection form.
type HomeView struct {
	Title          string
	Action         string
	UploadField    string
	SelectionField string
	Options        []Option
	Error          string
}

// NewHomeView builds the form view. checked may be empty; errMsg is shown
// above the form when non-empty.
func NewHomeView(checked dataset.Preset, errMsg string) HomeView {
	presets := dataset.Presets()
	opts := make([]Option, 0, len(presets))
	for i, p := range presets {
		opts = append(opts, Option{
			ID:      fmt.Sprintf("dataset%d", i+1),
			Value:   string(p),
			Label:   p.Label(),
			Checked: p == checked,
		})
	}
	return HomeView{
		Title:          HomeTitle,
		Action:         dataset.SubmitPath,
		UploadField:    dataset.FieldUpload,
		SelectionField: dataset.FieldSelection,
		Options:        opts,
		Error:          errMsg,
	}
}

type progressView struct {
	Title      string
	Message    string
	Indicators []string
}

type rejectedView struct {
	Title  string
	Reason string
}

// Renderer executes the embedded templates. It is safe for concurrent use.
type Renderer struct {
	tmpl     *template.Template
	progress progressView
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	indicators := make([]string, progressIndicators)
	for i := range indicators {
		indicators[i] = fmt.Sprintf("working %d of %d", i+1, progressIndicators)
	}
	return &Renderer{
		tmpl: tmpl,
		progress: progressView{
			Title:      ProgressTitle,
			Message:    ProgressMessage,
			Indicators: indicators,
		},
	}, nil
}

// Home writes the dataset selection form.
func (r *Renderer) Home(w io.Writer, view HomeView) error {
	return r.execute(w, "home", view)
}

// Progress writes the static progress page. It takes no input and its
// output never varies.
func (r *Renderer) Progress(w io.Writer) error {
	return r.execute(w, "progress", r.progress)
}

// Rejected writes the page shown when an uploaded dataset is unusable.
func (r *Renderer) Rejected(w io.Writer, reason string) error {
	return r.execute(w, "rejected", rejectedView{Title: RejectedTitle, Reason: reason})
}

func (r *Renderer) execute(w io.Writer, name string, data any) error {
	if err := r.tmpl.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}
