package intake

import (
	"context"
	"io"
	"time"
)

// SubmissionStore persists submission records.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub Submission) error
	GetSubmission(ctx context.Context, id string) (Submission, error)
}

// BlobStore writes uploaded archives and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes training requests to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes a content digest of an uploaded archive.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces submission IDs.
type IDGenerator interface {
	NewID() (string, error)
}
