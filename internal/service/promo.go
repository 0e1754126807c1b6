package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docforge-backend/internal/apperrors"
	"docforge-backend/internal/dto"
	"docforge-backend/internal/model"
	"docforge-backend/internal/repository"

	"gorm.io/gorm"
)

var validPromoPlans = map[string]bool{
	model.PlanFree: true,
	model.PlanPro:  true,
	model.PlanTeam: true,
}

type PromoService interface {
	Generate(ctx context.Context, req *dto.GeneratePromoRequest) (*model.PromoCode, error)
	List(ctx context.Context) ([]*model.PromoCode, error)
	// Redeem grants the code's plan through the same membership ledger as
	// paid-order settlement.
	Redeem(ctx context.Context, code, externalUserID string) (*model.Membership, error)
}

type promoServiceImpl struct {
	db                *gorm.DB
	promoRepo         repository.PromoRepository
	userRepo          repository.UserRepository
	membershipService MembershipService
}

func NewPromoService(
	db *gorm.DB,
	promoRepo repository.PromoRepository,
	userRepo repository.UserRepository,
	membershipService MembershipService,
) PromoService {
	return &promoServiceImpl{
		db:                db,
		promoRepo:         promoRepo,
		userRepo:          userRepo,
		membershipService: membershipService,
	}
}

func (s *promoServiceImpl) Generate(ctx context.Context, req *dto.GeneratePromoRequest) (*model.PromoCode, error) {
	if !validPromoPlans[req.PlanType] {
		return nil, apperrors.ErrPlanNotFound
	}

	durationDays := req.DurationDays
	if durationDays <= 0 {
		durationDays = 30
	}
	maxUses := req.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}

	promo := &model.PromoCode{
		Code:         generatePromoCode(),
		PlanType:     req.PlanType,
		DurationDays: durationDays,
		MaxUses:      maxUses,
		ExpiresAt:    req.ExpiresAt,
	}
	if err := s.promoRepo.Create(ctx, promo); err != nil {
		return nil, fmt.Errorf("store promo code: %w", err)
	}

	return promo, nil
}

func (s *promoServiceImpl) List(ctx context.Context) ([]*model.PromoCode, error) {
	return s.promoRepo.List(ctx)
}

func (s *promoServiceImpl) Redeem(ctx context.Context, code, externalUserID string) (*model.Membership, error) {
	user, err := s.userRepo.FindByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, err
	}

	var membership *model.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		promo, err := s.promoRepo.FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if promo.ExpiresAt != nil && promo.ExpiresAt.Before(time.Now()) {
			return apperrors.ErrPromoExpired
		}

		// the guarded increment is the usage-cap arbiter under concurrency
		consumed, err := s.promoRepo.ConsumeUse(ctx, tx, promo.ID)
		if err != nil {
			return fmt.Errorf("consume promo use: %w", err)
		}
		if !consumed {
			return apperrors.ErrPromoExhausted
		}

		membership, err = s.membershipService.GrantOrRenew(ctx, tx, user.ID, promo.PlanType, promo.DurationDays)
		if err != nil {
			return fmt.Errorf("grant membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("promo code redeemed", "code", code, "user_id", user.ID, "plan", membership.PlanType)
	return membership, nil
}
