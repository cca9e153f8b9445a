package repository

import (
	"context"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/model"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	logger.Debug("Creating user in database", map[string]interface{}{
		"email": user.Email,
	})

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		logger.Error("Failed to create user in database", err, map[string]interface{}{
			"email": user.Email,
		})
		return err
	}

	logger.Debug("User created in database", map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	})
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		logger.Debug("User not found by ID in database", map[string]interface{}{
			"user_id": id,
			"error":   err.Error(),
		})
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns gorm.ErrRecordNotFound for unknown addresses; callers
// decide whether that is worth logging.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("last_login_at", at).Error
	if err != nil {
		logger.Error("Failed to update last login in database", err, map[string]interface{}{
			"user_id": id,
		})
	}
	return err
}
