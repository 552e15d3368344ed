package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// SubmissionRepository defines data operations for submissions and their evaluations.
type SubmissionRepository interface {
	CreateBatch(ctx context.Context, submissions []*SubmissionRecord) error
	GetByID(ctx context.Context, id string) (SubmissionRecord, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]SubmissionRecord, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	MarkPending(ctx context.Context, ids []string) error
	ListPendingIDs(ctx context.Context) ([]string, error)
	SaveEvaluation(ctx context.Context, evaluation *EvaluationRecord) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) CreateBatch(ctx context.Context, submissions []*SubmissionRecord) error {
	if len(submissions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&submissions).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (SubmissionRecord, error) {
	var submission SubmissionRecord
	err := r.db.WithContext(ctx).
		Preload("Evaluation").
		Preload("Assignment").
		First(&submission, "id = ?", id).Error
	if err != nil {
		return SubmissionRecord{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]SubmissionRecord, error) {
	var submissions []SubmissionRecord
	err := r.db.WithContext(ctx).
		Preload("Evaluation").
		Where("assignment_id = ?", assignmentID).
		Order("student_roll_number ASC, uploaded_at ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	result := r.db.WithContext(ctx).Model(&SubmissionRecord{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkPending moves the given submissions back into the grading queue.
func (r *submissionRepository) MarkPending(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&SubmissionRecord{}).
		Where("id IN ?", ids).
		Update("status", "pending").Error
}

// ListPendingIDs returns the submissions still waiting for the grading pipeline, oldest first.
func (r *submissionRepository) ListPendingIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&SubmissionRecord{}).
		Where("status = ?", "pending").
		Order("uploaded_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveEvaluation stores the evaluation of a submission, replacing any earlier one while keeping
// its id, and marks the submission evaluated.
func (r *submissionRepository) SaveEvaluation(ctx context.Context, evaluation *EvaluationRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing EvaluationRecord
		err := tx.Select("id", "created_at").Where("submission_id = ?", evaluation.SubmissionID).Take(&existing).Error
		switch {
		case err == nil:
			evaluation.ID = existing.ID
			evaluation.CreatedAt = existing.CreatedAt
			if err := tx.Save(evaluation).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(evaluation).Error; err != nil {
				return err
			}
		default:
			return err
		}

		return tx.Model(&SubmissionRecord{}).
			Where("id = ?", evaluation.SubmissionID).
			Update("status", "evaluated").Error
	})
}
