package models

import (
	"math"
	"time"
)

// MarkingMode controls how strictly the grading pipeline applies the rubric.
type MarkingMode string

const (
	// MarkingModeStrict grades against the full rubric.
	MarkingModeStrict MarkingMode = "strict"
	// MarkingModeLoose tolerates minor rubric misses.
	MarkingModeLoose MarkingMode = "loose"
)

// AssignmentStatus is the lifecycle state of an assignment. The server owns transition legality.
type AssignmentStatus string

const (
	AssignmentStatusDraft    AssignmentStatus = "draft"
	AssignmentStatusActive   AssignmentStatus = "active"
	AssignmentStatusClosed   AssignmentStatus = "closed"
	AssignmentStatusArchived AssignmentStatus = "archived"
)

// AssignmentStatuses lists every status value the server accepts.
var AssignmentStatuses = []AssignmentStatus{
	AssignmentStatusDraft,
	AssignmentStatusActive,
	AssignmentStatusClosed,
	AssignmentStatusArchived,
}

// Valid reports whether the status is one of the known enum members.
func (s AssignmentStatus) Valid() bool {
	for _, known := range AssignmentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Assignment represents a gradable task definition together with its submissions.
type Assignment struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Instructions   string           `json:"instructions"`
	MinWords       int              `json:"minWords"`
	MarkingMode    MarkingMode      `json:"markingMode"`
	TotalMarks     float64          `json:"totalMarks"`
	PassPercentage float64          `json:"passPercentage"`
	Status         AssignmentStatus `json:"status"`
	IsProcessing   bool             `json:"isProcessing"`
	Deadline       *time.Time       `json:"deadline,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	Submissions    []Submission     `json:"submissions,omitempty"`
}

// PassPercentDisplay renders the pass threshold as a whole percentage (0.6 -> 60).
func (a Assignment) PassPercentDisplay() int {
	return int(math.Round(a.PassPercentage * 100))
}

// FindEvaluation locates the submission that owns the given evaluation id.
func (a Assignment) FindEvaluation(evaluationID string) (Submission, bool) {
	for _, submission := range a.Submissions {
		if submission.Evaluation != nil && submission.Evaluation.ID == evaluationID {
			return submission, true
		}
	}
	return Submission{}, false
}

// Clone returns a deep copy so snapshots never share mutable state.
func (a Assignment) Clone() Assignment {
	clone := a
	if a.Deadline != nil {
		deadline := *a.Deadline
		clone.Deadline = &deadline
	}
	if a.Submissions != nil {
		clone.Submissions = make([]Submission, len(a.Submissions))
		for i, submission := range a.Submissions {
			clone.Submissions[i] = submission.Clone()
		}
	}
	return clone
}

// PercentToFraction converts a form percentage (60) into the wire fraction (0.6).
func PercentToFraction(percent float64) float64 {
	return percent / 100
}
