package repository

import (
	"context"
	"errors"

	"docforge-backend/internal/apperrors"
	"docforge-backend/internal/model"

	"gorm.io/gorm"
)

type PromoRepository interface {
	Create(ctx context.Context, promo *model.PromoCode) error
	FindByCode(ctx context.Context, tx *gorm.DB, code string) (*model.PromoCode, error)
	List(ctx context.Context) ([]*model.PromoCode, error)
	// ConsumeUse increments used_count with a usage-cap guard; false means
	// the cap was already reached.
	ConsumeUse(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

type promoRepoImpl struct {
	db *gorm.DB
}

func NewPromoRepository(db *gorm.DB) PromoRepository {
	return &promoRepoImpl{db: db}
}

func (r *promoRepoImpl) Create(ctx context.Context, promo *model.PromoCode) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *promoRepoImpl) FindByCode(ctx context.Context, tx *gorm.DB, code string) (*model.PromoCode, error) {
	if tx == nil {
		tx = r.db
	}

	var promo model.PromoCode
	err := tx.WithContext(ctx).
		Where("code = ?", code).
		First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrPromoNotFound
	}
	if err != nil {
		return nil, err
	}

	return &promo, nil
}

func (r *promoRepoImpl) List(ctx context.Context) ([]*model.PromoCode, error) {
	var promos []*model.PromoCode
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&promos).Error
	if err != nil {
		return nil, err
	}

	return promos, nil
}

func (r *promoRepoImpl) ConsumeUse(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.PromoCode{}).
		Where("id = ? AND used_count < max_uses", id).
		Updates(map[string]interface{}{
			"used_count": gorm.Expr("used_count + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
