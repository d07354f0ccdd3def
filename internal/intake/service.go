package intake

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/augmentweb/internal/dataset"
)

const defaultArchiveContentType = "application/zip"

var tracer = otel.Tracer("github.com/JakeFAU/augmentweb/internal/intake")

// Config controls how submissions are accepted.
type Config struct {
	Policy         dataset.Policy
	ValidateLayout bool
	Topic          string
	BlobPrefix     string
}

// Service is the /user_input backend.
type Service struct {
	store     SubmissionStore
	blobs     BlobStore
	publisher Publisher
	hasher    Hasher
	idGen     IDGenerator
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// NewService wires the intake dependencies.
func NewService(
	store SubmissionStore,
	blobs BlobStore,
	publisher Publisher,
	hasher Hasher,
	idGen IDGenerator,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy == "" {
		cfg.Policy = dataset.PolicyExactlyOne
	}
	return &Service{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		hasher:    hasher,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Policy returns the submission policy in force.
func (s *Service) Policy() dataset.Policy {
	return s.cfg.Policy
}

// Accept validates, stores and announces a dataset request.
func (s *Service) Accept(ctx context.Context, req dataset.Request) (Submission, error) {
	ctx, span := tracer.Start(ctx, "intake.Accept")
	defer span.End()
	span.SetAttributes(
		attribute.String("dataset", string(req.Dataset)),
		attribute.Bool("upload", req.HasUpload()),
	)

	sub, err := s.accept(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission refused")
		return Submission{}, err
	}
	span.SetAttributes(attribute.String("submission_id", sub.ID))
	return sub, nil
}

func (s *Service) accept(ctx context.Context, req dataset.Request) (Submission, error) {
	if err := s.cfg.Policy.Check(req); err != nil {
		return Submission{}, fmt.Errorf("check request: %w", err)
	}

	var layout Layout
	if req.HasUpload() && s.cfg.ValidateLayout {
		var err error
		layout, err = InspectArchive(req.Upload.Data)
		if err != nil {
			return Submission{}, fmt.Errorf("inspect %s: %w", req.Upload.Filename, err)
		}
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return Submission{}, fmt.Errorf("generate submission id: %w", err)
	}
	sub := Submission{
		ID:         id,
		Dataset:    req.Dataset,
		Status:     StatusAccepted,
		ReceivedAt: s.clock.Now(),
		Classes:    layout.Classes,
	}

	if req.HasUpload() {
		if s.hasher != nil {
			digest, err := s.hasher.Hash(req.Upload.Data)
			if err != nil {
				return Submission{}, fmt.Errorf("hash upload: %w", err)
			}
			sub.UploadSHA256 = digest
		}
		uri, err := s.storeUpload(ctx, id, *req.Upload)
		if err != nil {
			return Submission{}, err
		}
		sub.UploadName = req.Upload.Filename
		sub.UploadURI = uri
		sub.UploadBytes = req.Upload.Size()
	}

	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return Submission{}, fmt.Errorf("create submission: %w", err)
	}

	msgID, err := s.publisher.Publish(ctx, s.cfg.Topic, TrainingRequested{
		SubmissionID: sub.ID,
		Dataset:      sub.Dataset,
		UploadURI:    sub.UploadURI,
		UploadSHA256: sub.UploadSHA256,
		Classes:      sub.Classes,
		RequestedAt:  sub.ReceivedAt,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("publish training request: %w", err)
	}

	s.logger.Info("submission accepted",
		zap.String("submission_id", sub.ID),
		zap.String("dataset", string(sub.Dataset)),
		zap.String("upload_uri", sub.UploadURI),
		zap.Int64("upload_bytes", sub.UploadBytes),
		zap.Int("classes", len(sub.Classes)),
		zap.String("message_id", msgID),
	)
	return sub, nil
}

// Get loads a recorded submission.
func (s *Service) Get(ctx context.Context, id string) (Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, fmt.Errorf("get submission %s: %w", id, err)
	}
	return sub, nil
}

func (s *Service) storeUpload(ctx context.Context, id string, upload dataset.Upload) (string, error) {
	objectPath := path.Join(strings.Trim(s.cfg.BlobPrefix, "/"), id, upload.Filename)
	// Every upload lives directly under its submission id.
	if path.Base(path.Dir(objectPath)) != id || path.Base(objectPath) != upload.Filename {
		return "", fmt.Errorf("%w: %q", dataset.ErrInvalidFilename, upload.Filename)
	}
	contentType := upload.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = defaultArchiveContentType
	}
	uri, err := s.blobs.PutObject(ctx, objectPath, contentType, bytes.NewReader(upload.Data))
	if err != nil {
		return "", fmt.Errorf("put upload %s: %w", objectPath, err)
	}
	return uri, nil
}
