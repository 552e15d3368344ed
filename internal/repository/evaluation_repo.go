package repository

import (
	"context"

	"gorm.io/gorm"
)

// EvaluationRepository defines operations for manual grade overrides.
type EvaluationRepository interface {
	GetByID(ctx context.Context, id string) (EvaluationRecord, error)
	Update(ctx context.Context, evaluation *EvaluationRecord) error
	// AssignmentFor resolves the assignment that owns the evaluation.
	AssignmentFor(ctx context.Context, evaluationID string) (AssignmentRecord, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) GetByID(ctx context.Context, id string) (EvaluationRecord, error) {
	var evaluation EvaluationRecord
	if err := r.db.WithContext(ctx).First(&evaluation, "id = ?", id).Error; err != nil {
		return EvaluationRecord{}, err
	}
	return evaluation, nil
}

func (r *evaluationRepository) Update(ctx context.Context, evaluation *EvaluationRecord) error {
	return r.db.WithContext(ctx).Model(evaluation).Select(
		"score", "percentage_score", "remarks", "passed", "detailed_feedback", "updated_at",
	).Updates(evaluation).Error
}

func (r *evaluationRepository) AssignmentFor(ctx context.Context, evaluationID string) (AssignmentRecord, error) {
	var assignment AssignmentRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN submissions ON submissions.assignment_id = assignments.id").
		Joins("JOIN evaluations ON evaluations.submission_id = submissions.id").
		Where("evaluations.id = ?", evaluationID).
		Take(&assignment).Error
	if err != nil {
		return AssignmentRecord{}, err
	}
	return assignment, nil
}
