package store

import "github.com/noah-isme/gema-evalsync/internal/models"

// Snapshot is an immutable view of everything the client currently knows. Accessors hand out
// deep copies so a caller can never reach back into shared state.
type Snapshot struct {
	version     uint64
	assignments []models.Assignment
	details     map[string]models.Assignment
	submissions map[string]models.Submission
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		details:     map[string]models.Assignment{},
		submissions: map[string]models.Submission{},
	}
}

func (s *Snapshot) shallowCopy() *Snapshot {
	next := *s
	return &next
}

// Version increases by one with every replacement.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Assignments returns the latest assignment list.
func (s *Snapshot) Assignments() []models.Assignment {
	out := make([]models.Assignment, len(s.assignments))
	for i, assignment := range s.assignments {
		out[i] = assignment.Clone()
	}
	return out
}

// Assignment returns the detailed record of an assignment, if loaded.
func (s *Snapshot) Assignment(id string) (models.Assignment, bool) {
	assignment, ok := s.details[id]
	if !ok {
		return models.Assignment{}, false
	}
	return assignment.Clone(), true
}

// Submission returns an individually watched submission, if loaded.
func (s *Snapshot) Submission(id string) (models.Submission, bool) {
	submission, ok := s.submissions[id]
	if !ok {
		return models.Submission{}, false
	}
	return submission.Clone(), true
}
