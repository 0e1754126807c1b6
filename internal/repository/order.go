package repository

import (
	"context"
	"errors"
	"time"

	"docforge-backend/internal/apperrors"
	"docforge-backend/internal/model"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error)
	ListByUser(ctx context.Context, userID uint) ([]*model.Order, error)
	// MarkPaid flips a PENDING order to PAID with a guarded update. The
	// boolean reports whether this call won the transition; false with a
	// nil error means the order already reached PAID (benign, e.g. a
	// redelivered webhook), while a conflicting terminal state yields
	// ErrInvalidTransition.
	MarkPaid(ctx context.Context, tx *gorm.DB, orderNo string, paidAt time.Time) (bool, error)
	MarkCancelled(ctx context.Context, tx *gorm.DB, orderNo string) (bool, error)
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.Order, error)
	FindRecentPending(ctx context.Context, since time.Time, limit int) ([]*model.Order, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{db: db}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	if tx == nil {
		tx = r.db
	}

	var order model.Order
	err := tx.WithContext(ctx).
		Where("order_no = ?", orderNo).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) ListByUser(ctx context.Context, userID uint) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) MarkPaid(ctx context.Context, tx *gorm.DB, orderNo string, paidAt time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("order_no = ? AND status = ?", orderNo, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":     model.OrderStatusPaid,
			"paid_at":    paidAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, r.checkTerminal(ctx, tx, orderNo, model.OrderStatusPaid)
	}

	return true, nil
}

func (r *orderRepoImpl) MarkCancelled(ctx context.Context, tx *gorm.DB, orderNo string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("order_no = ? AND status = ?", orderNo, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":     model.OrderStatusCancelled,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, r.checkTerminal(ctx, tx, orderNo, model.OrderStatusCancelled)
	}

	return true, nil
}

// checkTerminal distinguishes a lost guarded update that landed on the
// wanted status (no-op) from one blocked by a conflicting terminal state.
func (r *orderRepoImpl) checkTerminal(ctx context.Context, tx *gorm.DB, orderNo, want string) error {
	order, err := r.FindByOrderNo(ctx, tx, orderNo)
	if err != nil {
		return err
	}
	if order.Status != want {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

func (r *orderRepoImpl) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.OrderStatusPending, now).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) FindRecentPending(ctx context.Context, since time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", model.OrderStatusPending, since).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}
