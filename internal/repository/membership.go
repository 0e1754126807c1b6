package repository

import (
	"context"
	"time"

	"docforge-backend/internal/model"

	"gorm.io/gorm"
)

type MembershipRepository interface {
	FindByUserID(ctx context.Context, tx *gorm.DB, userID uint) (*model.Membership, error)
	Create(ctx context.Context, tx *gorm.DB, membership *model.Membership) error
	// UpdateEntitlement rewrites plan and expiry only; usage counters on
	// the row belong to the quota subsystem and are left alone.
	UpdateEntitlement(ctx context.Context, tx *gorm.DB, id uint, planType string, expiresAt *time.Time) error
}

type membershipRepoImpl struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepoImpl{db: db}
}

func (r *membershipRepoImpl) FindByUserID(ctx context.Context, tx *gorm.DB, userID uint) (*model.Membership, error) {
	if tx == nil {
		tx = r.db
	}

	var membership model.Membership
	err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}

	return &membership, nil
}

func (r *membershipRepoImpl) Create(ctx context.Context, tx *gorm.DB, membership *model.Membership) error {
	return tx.WithContext(ctx).Create(membership).Error
}

func (r *membershipRepoImpl) UpdateEntitlement(ctx context.Context, tx *gorm.DB, id uint, planType string, expiresAt *time.Time) error {
	return tx.WithContext(ctx).Model(&model.Membership{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"plan_type":  planType,
			"expires_at": expiresAt,
			"updated_at": time.Now(),
		}).Error
}
