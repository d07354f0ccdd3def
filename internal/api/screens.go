package api

import (
	"bytes"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/augmentweb/internal/dataset"
	"github.com/JakeFAU/augmentweb/internal/intake"
	"github.com/JakeFAU/augmentweb/internal/metrics"
	"github.com/JakeFAU/augmentweb/internal/ui"
)

const progressPath = "/progress"

func (s *Server) home(w http.ResponseWriter, _ *http.Request) {
	s.renderHome(w, http.StatusOK, "", "")
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := s.screens.Progress(&buf); err != nil {
		s.renderFailed(w, err)
		return
	}
	s.writeHTML(w, http.StatusOK, buf.Bytes())
}

// userInput handles POST /user_input. Accepted submissions are redirected to
// the progress page with 303; policy and preset violations re-render the
// form with 400; oversized bodies get 413; unusable archives render the
// rejected page with 422.
func (s *Server) userInput(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUpload {
		metrics.ObserveSubmission(dataset.Request{}, metrics.OutcomeInvalid)
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		metrics.ObserveSubmission(dataset.Request{}, metrics.OutcomeInvalid)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Info("unreadable submission", zap.Error(err), zap.String("request_id", RequestID(r.Context())))
		s.renderHome(w, http.StatusBadRequest, "", "The form could not be read. Please try again.")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("remove multipart temp files", zap.Error(err))
		}
	}()

	req, err := dataset.FromMultipart(r.MultipartForm)
	if err != nil {
		metrics.ObserveSubmission(req, metrics.OutcomeInvalid)
		s.renderHome(w, http.StatusBadRequest, req.Dataset, userMessage(err))
		return
	}

	sub, err := s.intake.Accept(r.Context(), req)
	switch {
	case err == nil:
		metrics.ObserveSubmission(req, metrics.OutcomeAccepted)
		s.logger.Debug("redirecting to progress",
			zap.String("submission_id", sub.ID),
			zap.String("request_id", RequestID(r.Context())),
		)
		http.Redirect(w, r, progressPath, http.StatusSeeOther)
	case isInvalidRequest(err):
		metrics.ObserveSubmission(req, metrics.OutcomeInvalid)
		s.renderHome(w, http.StatusBadRequest, req.Dataset, userMessage(err))
	case errors.Is(err, intake.ErrUnsupportedArchive), errors.Is(err, intake.ErrInvalidLayout):
		metrics.ObserveSubmission(req, metrics.OutcomeRejected)
		s.renderRejected(w, err)
	default:
		metrics.ObserveSubmission(req, metrics.OutcomeError)
		s.logger.Error("accept submission failed",
			zap.Error(err),
			zap.String("request_id", RequestID(r.Context())),
		)
		http.Error(w, "failed to accept submission", http.StatusInternalServerError)
	}
}

func isInvalidRequest(err error) bool {
	return errors.Is(err, dataset.ErrNothingSelected) ||
		errors.Is(err, dataset.ErrAmbiguousSelection) ||
		errors.Is(err, dataset.ErrUnknownPreset) ||
		errors.Is(err, dataset.ErrEmptyUpload) ||
		errors.Is(err, dataset.ErrInvalidFilename)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, dataset.ErrNothingSelected):
		return "Choose a dataset or upload a folder."
	case errors.Is(err, dataset.ErrAmbiguousSelection):
		return "Choose a dataset or upload a folder, not both."
	case errors.Is(err, dataset.ErrUnknownPreset):
		return "Unknown dataset selection."
	case errors.Is(err, dataset.ErrEmptyUpload):
		return "The uploaded file has no name."
	case errors.Is(err, dataset.ErrInvalidFilename):
		return "The uploaded file name is not usable."
	default:
		return "The submission could not be processed."
	}
}

func rejectionReason(err error) string {
	if errors.Is(err, intake.ErrUnsupportedArchive) {
		return "The upload is not a zip archive."
	}
	return "Every folder in the uploaded archive must be named class_<name>."
}

func (s *Server) renderHome(w http.ResponseWriter, status int, checked dataset.Preset, errMsg string) {
	var buf bytes.Buffer
	if err := s.screens.Home(&buf, ui.NewHomeView(checked, errMsg)); err != nil {
		s.renderFailed(w, err)
		return
	}
	s.writeHTML(w, status, buf.Bytes())
}

func (s *Server) renderRejected(w http.ResponseWriter, cause error) {
	var buf bytes.Buffer
	if err := s.screens.Rejected(&buf, rejectionReason(cause)); err != nil {
		s.renderFailed(w, err)
		return
	}
	s.writeHTML(w, http.StatusUnprocessableEntity, buf.Bytes())
}

func (s *Server) renderFailed(w http.ResponseWriter, err error) {
	s.logger.Error("render failed", zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("write HTML failed", zap.Error(err))
	}
}
