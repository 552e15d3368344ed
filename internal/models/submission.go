package models

import "time"

// SubmissionStatus tracks where a submission is in the grading pipeline.
type SubmissionStatus string

const (
	SubmissionStatusPending         SubmissionStatus = "pending"
	SubmissionStatusUnreadable      SubmissionStatus = "unreadable"
	SubmissionStatusEvaluationError SubmissionStatus = "evaluation_error"
	SubmissionStatusEvaluated       SubmissionStatus = "evaluated"
)

// AssignmentRef is the assignment summary embedded in a single submission response.
type AssignmentRef struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	TotalMarks float64 `json:"totalMarks"`
}

// Submission is one student's uploaded artefact and its evaluation, if any.
type Submission struct {
	ID                string           `json:"id"`
	StudentName       string           `json:"studentName"`
	StudentRollNumber string           `json:"studentRollNumber"`
	FileName          string           `json:"fileName,omitempty"`
	UploadedAt        time.Time        `json:"uploadedAt"`
	FileContent       string           `json:"fileContent,omitempty"`
	IsEvaluated       bool             `json:"isEvaluated"`
	SubmissionStatus  SubmissionStatus `json:"submissionStatus"`
	Evaluation        *Evaluation      `json:"evaluation,omitempty"`
	Assignment        *AssignmentRef   `json:"assignment,omitempty"`
}

// IsTerminal reports whether polling may stop for this submission.
func (s Submission) IsTerminal() bool {
	return s.IsEvaluated
}

// NeedsRetry reports whether the pipeline failed on this submission and a retry should be offered.
func (s Submission) NeedsRetry() bool {
	return s.SubmissionStatus == SubmissionStatusUnreadable || s.SubmissionStatus == SubmissionStatusEvaluationError
}

// Clone returns a deep copy of the submission.
func (s Submission) Clone() Submission {
	clone := s
	if s.Evaluation != nil {
		evaluation := *s.Evaluation
		clone.Evaluation = &evaluation
	}
	if s.Assignment != nil {
		ref := *s.Assignment
		clone.Assignment = &ref
	}
	return clone
}
