package dto

import (
	"time"

	"github.com/noah-isme/gema-evalsync/internal/models"
)

// AssignmentCreateRequest is the wire payload for POST /assignments. PassPercentage is a fraction.
type AssignmentCreateRequest struct {
	Title          string     `json:"title" validate:"required,min=3"`
	Instructions   string     `json:"instructions" validate:"required,min=10"`
	MinWords       int        `json:"minWords" validate:"gte=0"`
	MarkingMode    string     `json:"markingMode" validate:"required,oneof=strict loose"`
	TotalMarks     float64    `json:"totalMarks" validate:"gt=0"`
	PassPercentage float64    `json:"passPercentage" validate:"gte=0,lte=1"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

// AssignmentForm mirrors the create form where the pass mark is entered as a percentage.
type AssignmentForm struct {
	Title          string
	Instructions   string
	MinWords       int
	MarkingMode    string
	TotalMarks     float64
	PassPercentage float64
	Deadline       *time.Time
}

// DefaultAssignmentForm returns the form pre-filled with the usual defaults.
func DefaultAssignmentForm() AssignmentForm {
	return AssignmentForm{
		MinWords:       500,
		MarkingMode:    string(models.MarkingModeStrict),
		TotalMarks:     100,
		PassPercentage: 60,
	}
}

// Request converts the form into the wire payload.
func (f AssignmentForm) Request() AssignmentCreateRequest {
	return AssignmentCreateRequest{
		Title:          f.Title,
		Instructions:   f.Instructions,
		MinWords:       f.MinWords,
		MarkingMode:    f.MarkingMode,
		TotalMarks:     f.TotalMarks,
		PassPercentage: models.PercentToFraction(f.PassPercentage),
		Deadline:       f.Deadline,
	}
}

// StatusChangeRequest is the payload for PATCH /assignments/{id}/status.
type StatusChangeRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active closed archived"`
}

// MessageResponse carries a human readable server message.
type MessageResponse struct {
	Message string `json:"message"`
}
