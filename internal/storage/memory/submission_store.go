package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/augmentweb/internal/intake"
)

// SubmissionStore provides an in-memory implementation for development/testing.
type SubmissionStore struct {
	mu   sync.RWMutex
	subs map[string]intake.Submission
}

// NewSubmissionStore constructs a SubmissionStore.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{subs: make(map[string]intake.Submission)}
}

// CreateSubmission stores a new submission.
func (s *SubmissionStore) CreateSubmission(_ context.Context, sub intake.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[sub.ID]; exists {
		return fmt.Errorf("submission %s already exists", sub.ID)
	}
	s.subs[sub.ID] = cloneSubmission(sub)
	return nil
}

// GetSubmission fetches a submission by ID.
func (s *SubmissionStore) GetSubmission(_ context.Context, id string) (intake.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return intake.Submission{}, intake.ErrNotFound
	}
	return cloneSubmission(sub), nil
}

func cloneSubmission(sub intake.Submission) intake.Submission {
	cp := sub
	if sub.Classes != nil {
		cp.Classes = append([]string(nil), sub.Classes...)
	}
	return cp
}
