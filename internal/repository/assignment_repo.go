package repository

import (
	"context"

	"gorm.io/gorm"
)

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	List(ctx context.Context) ([]AssignmentRecord, error)
	GetByID(ctx context.Context, id string) (AssignmentRecord, error)
	GetWithSubmissions(ctx context.Context, id string) (AssignmentRecord, error)
	Create(ctx context.Context, assignment *AssignmentRecord) error
	UpdateStatus(ctx context.Context, id string, status string) error
	Delete(ctx context.Context, id string) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// List returns every assignment, newest first. Submissions are preloaded without content or
// evaluation, enough for IsProcessing and per-assignment progress.
func (r *assignmentRepository) List(ctx context.Context) ([]AssignmentRecord, error) {
	var assignments []AssignmentRecord
	err := r.db.WithContext(ctx).
		Preload("Submissions", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "assignment_id", "student_name", "student_roll_number", "file_name", "status", "uploaded_at").
				Order("uploaded_at ASC")
		}).
		Order("created_at DESC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (AssignmentRecord, error) {
	var assignment AssignmentRecord
	if err := r.db.WithContext(ctx).First(&assignment, "id = ?", id).Error; err != nil {
		return AssignmentRecord{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) GetWithSubmissions(ctx context.Context, id string) (AssignmentRecord, error) {
	var assignment AssignmentRecord
	err := r.db.WithContext(ctx).
		Preload("Submissions", func(db *gorm.DB) *gorm.DB {
			return db.Order("uploaded_at ASC")
		}).
		Preload("Submissions.Evaluation").
		First(&assignment, "id = ?", id).Error
	if err != nil {
		return AssignmentRecord{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *AssignmentRecord) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	result := r.db.WithContext(ctx).Model(&AssignmentRecord{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the assignment together with its submissions and evaluations.
func (r *assignmentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		submissionIDs := tx.Model(&SubmissionRecord{}).Select("id").Where("assignment_id = ?", id)
		if err := tx.Where("submission_id IN (?)", submissionIDs).Delete(&EvaluationRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("assignment_id = ?", id).Delete(&SubmissionRecord{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&AssignmentRecord{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
