package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evalsync/internal/models"
)

// UserRecord is a teacher account of the development server.
type UserRecord struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"`
	Name         string    `gorm:"size:255"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time
}

func (UserRecord) TableName() string { return "users" }

// BeforeCreate assigns a uuid primary key.
func (u *UserRecord) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// ToModel converts the row into the public user shape.
func (u UserRecord) ToModel() models.User {
	return models.User{ID: u.ID, Email: u.Email, Name: u.Name}
}

// AssignmentRecord is the persisted assignment.
type AssignmentRecord struct {
	ID             string     `gorm:"primaryKey;size:36"`
	Title          string     `gorm:"size:255;not null"`
	Instructions   string     `gorm:"type:text;not null"`
	MinWords       int        `gorm:"not null;default:0"`
	MarkingMode    string     `gorm:"size:16;not null"`
	TotalMarks     float64    `gorm:"not null"`
	PassPercentage float64    `gorm:"not null"`
	Status         string     `gorm:"size:16;not null;index"`
	Deadline       *time.Time
	OwnerID        string     `gorm:"size:36;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Submissions    []SubmissionRecord `gorm:"foreignKey:AssignmentID;constraint:OnDelete:CASCADE"`
}

func (AssignmentRecord) TableName() string { return "assignments" }

// BeforeCreate assigns a uuid primary key.
func (a *AssignmentRecord) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ToModel converts the row, including any preloaded submissions. IsProcessing is true while any
// submission is still pending.
func (a AssignmentRecord) ToModel() models.Assignment {
	assignment := models.Assignment{
		ID:             a.ID,
		Title:          a.Title,
		Instructions:   a.Instructions,
		MinWords:       a.MinWords,
		MarkingMode:    models.MarkingMode(a.MarkingMode),
		TotalMarks:     a.TotalMarks,
		PassPercentage: a.PassPercentage,
		Status:         models.AssignmentStatus(a.Status),
		Deadline:       a.Deadline,
		CreatedAt:      a.CreatedAt,
	}

	if len(a.Submissions) > 0 {
		assignment.Submissions = make([]models.Submission, 0, len(a.Submissions))
		for _, submission := range a.Submissions {
			if submission.Status == string(models.SubmissionStatusPending) {
				assignment.IsProcessing = true
			}
			model := submission.ToModel()
			model.FileContent = ""
			assignment.Submissions = append(assignment.Submissions, model)
		}
	}

	return assignment
}

// SubmissionRecord is one uploaded file.
type SubmissionRecord struct {
	ID                string    `gorm:"primaryKey;size:36"`
	AssignmentID      string    `gorm:"size:36;not null;index"`
	StudentName       string    `gorm:"size:255"`
	StudentRollNumber string    `gorm:"size:64;index"`
	FileName          string    `gorm:"size:255"`
	FileURL           string    `gorm:"size:512"`
	FileContent       string    `gorm:"type:text"`
	Status            string    `gorm:"size:32;not null;index"`
	UploadedAt        time.Time `gorm:"not null"`
	UpdatedAt         time.Time
	Evaluation        *EvaluationRecord `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE"`
	Assignment        *AssignmentRecord `gorm:"foreignKey:AssignmentID"`
}

func (SubmissionRecord) TableName() string { return "submissions" }

// BeforeCreate assigns a uuid primary key.
func (s *SubmissionRecord) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ToModel converts the row. A preloaded assignment becomes the embedded reference.
func (s SubmissionRecord) ToModel() models.Submission {
	submission := models.Submission{
		ID:                s.ID,
		StudentName:       s.StudentName,
		StudentRollNumber: s.StudentRollNumber,
		FileName:          s.FileName,
		UploadedAt:        s.UploadedAt,
		FileContent:       s.FileContent,
		SubmissionStatus:  models.SubmissionStatus(s.Status),
	}

	if s.Evaluation != nil && s.Status == string(models.SubmissionStatusEvaluated) {
		evaluation := s.Evaluation.ToModel()
		submission.Evaluation = &evaluation
		submission.IsEvaluated = true
	}

	if s.Assignment != nil {
		submission.Assignment = &models.AssignmentRef{
			ID:         s.Assignment.ID,
			Title:      s.Assignment.Title,
			TotalMarks: s.Assignment.TotalMarks,
		}
	}

	return submission
}

// EvaluationRecord is the grading result of a submission.
type EvaluationRecord struct {
	ID               string `gorm:"primaryKey;size:36"`
	SubmissionID     string `gorm:"size:36;not null;uniqueIndex"`
	Score            float64
	PercentageScore  float64
	Remarks          string `gorm:"type:text"`
	Passed           bool
	DetailedFeedback datatypes.JSONType[models.DetailedFeedback]
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (EvaluationRecord) TableName() string { return "evaluations" }

// BeforeCreate assigns a uuid primary key.
func (e *EvaluationRecord) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// ToModel converts the row.
func (e EvaluationRecord) ToModel() models.Evaluation {
	return models.Evaluation{
		ID:               e.ID,
		Score:            e.Score,
		PercentageScore:  e.PercentageScore,
		Remarks:          e.Remarks,
		Passed:           e.Passed,
		DetailedFeedback: e.DetailedFeedback.Data(),
	}
}
