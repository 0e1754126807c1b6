package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docforge-backend/internal/model"
	"docforge-backend/internal/repository"

	"gorm.io/gorm"
)

// MembershipService is the single entitlement ledger. Every caller that
// grants membership time (paid-order settlement, promo redemption) goes
// through GrantOrRenew; the renewal-vs-override decision lives here and
// nowhere else.
type MembershipService interface {
	// GrantOrRenew extends the membership when the plan matches and has
	// not yet expired, and otherwise overrides plan and expiry to
	// now+duration. It applies plan/date arithmetic only; at-most-once
	// invocation per settled order is the caller's responsibility.
	GrantOrRenew(ctx context.Context, tx *gorm.DB, userID uint, planType string, durationDays int) (*model.Membership, error)
	GetByUserID(ctx context.Context, userID uint) (*model.Membership, error)
	GetByExternalID(ctx context.Context, externalUserID string) (*model.Membership, error)
}

type membershipServiceImpl struct {
	db             *gorm.DB
	membershipRepo repository.MembershipRepository
	userRepo       repository.UserRepository
}

func NewMembershipService(db *gorm.DB, membershipRepo repository.MembershipRepository, userRepo repository.UserRepository) MembershipService {
	return &membershipServiceImpl{
		db:             db,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
	}
}

func (s *membershipServiceImpl) GrantOrRenew(ctx context.Context, tx *gorm.DB, userID uint, planType string, durationDays int) (*model.Membership, error) {
	if tx == nil {
		tx = s.db
	}

	membership, err := s.membershipRepo.FindByUserID(ctx, tx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// created lazily on first grant
		membership = &model.Membership{
			UserID:   userID,
			PlanType: model.PlanFree,
		}
		if err := s.membershipRepo.Create(ctx, tx, membership); err != nil {
			return nil, fmt.Errorf("create membership: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}

	now := time.Now()
	duration := time.Duration(durationDays) * 24 * time.Hour

	var expiresAt time.Time
	if membership.PlanType == planType && membership.ExpiresAt != nil && membership.ExpiresAt.After(now) {
		// renewal: same plan, still active, extend from the current expiry
		expiresAt = membership.ExpiresAt.Add(duration)
	} else {
		// override: different plan or already expired, restart from now
		expiresAt = now.Add(duration)
	}

	if err := s.membershipRepo.UpdateEntitlement(ctx, tx, membership.ID, planType, &expiresAt); err != nil {
		return nil, fmt.Errorf("update entitlement: %w", err)
	}

	membership.PlanType = planType
	membership.ExpiresAt = &expiresAt
	return membership, nil
}

func (s *membershipServiceImpl) GetByUserID(ctx context.Context, userID uint) (*model.Membership, error) {
	membership, err := s.membershipRepo.FindByUserID(ctx, nil, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// no row yet reads as the free tier; rows are created on first
		// grant only
		return &model.Membership{UserID: userID, PlanType: model.PlanFree}, nil
	}
	if err != nil {
		return nil, err
	}

	return membership, nil
}

func (s *membershipServiceImpl) GetByExternalID(ctx context.Context, externalUserID string) (*model.Membership, error) {
	user, err := s.userRepo.FindByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, err
	}

	return s.GetByUserID(ctx, user.ID)
}
