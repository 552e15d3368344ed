package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// UserRepository stores development server accounts.
type UserRepository interface {
	Create(ctx context.Context, user *UserRecord) error
	GetByEmail(ctx context.Context, email string) (UserRecord, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository instantiates the repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *UserRecord) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (UserRecord, error) {
	var user UserRecord
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return UserRecord{}, err
	}
	return user, nil
}
