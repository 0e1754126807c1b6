package repository

import (
	"context"

	"docforge-backend/internal/model"

	"gorm.io/gorm"
)

type PlanRepository interface {
	List(ctx context.Context) ([]*model.MembershipPlan, error)
}

type planRepoImpl struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepoImpl{db: db}
}

func (r *planRepoImpl) List(ctx context.Context) ([]*model.MembershipPlan, error) {
	var plans []*model.MembershipPlan
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}

	return plans, nil
}
