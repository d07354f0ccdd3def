// Package intake accepts dataset submissions posted to /user_input: it
// applies the submission policy, checks uploaded archives, stores the upload,
// records the submission and announces it to the training pipeline.
package intake

import (
	"time"

	"github.com/JakeFAU/augmentweb/internal/dataset"
)

// Status is the lifecycle state of a submission record.
type Status string

// Submission status values.
const (
	StatusAccepted Status = "accepted"
)

// Submission is the persisted form of an accepted dataset request.
type Submission struct {
	ID           string         `json:"id"`
	Dataset      dataset.Preset `json:"dataset,omitempty"`
	UploadName   string         `json:"upload_name,omitempty"`
	UploadURI    string         `json:"upload_uri,omitempty"`
	UploadBytes  int64          `json:"upload_bytes"`
	UploadSHA256 string         `json:"upload_sha256,omitempty"`
	Classes      []string       `json:"classes,omitempty"`
	Status       Status         `json:"status"`
	ReceivedAt   time.Time      `json:"received_at"`
}

// TrainingRequested is published once a submission is recorded.
type TrainingRequested struct {
	SubmissionID string         `json:"submission_id"`
	Dataset      dataset.Preset `json:"dataset,omitempty"`
	UploadURI    string         `json:"upload_uri,omitempty"`
	UploadSHA256 string         `json:"upload_sha256,omitempty"`
	Classes      []string       `json:"classes,omitempty"`
	RequestedAt  time.Time      `json:"requested_at"`
}
