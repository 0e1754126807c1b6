package repository_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"docforge-backend/internal/apperrors"
	"docforge-backend/internal/model"
	"docforge-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Order{}))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, orderNo, status string) *model.Order {
	t.Helper()

	expires := time.Now().Add(7 * 24 * time.Hour)
	order := &model.Order{
		OrderNo:   orderNo,
		UserID:    1,
		PlanType:  model.PlanPro,
		Amount:    2900,
		Status:    status,
		ExpiresAt: &expires,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestOrderRepo_DuplicateOrderNoIsHardFailure(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	seedOrder(t, db, "ORD-dup", model.OrderStatusPending)

	err := repo.Create(ctx, db, &model.Order{
		OrderNo:  "ORD-dup",
		UserID:   2,
		PlanType: model.PlanPro,
		Amount:   2900,
		Status:   model.OrderStatusPending,
	})
	require.Error(t, err)
}

func TestOrderRepo_FindByOrderNo(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	seedOrder(t, db, "ORD-1", model.OrderStatusPending)

	order, err := repo.FindByOrderNo(ctx, nil, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", order.OrderNo)

	_, err = repo.FindByOrderNo(ctx, nil, "ORD-nope")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestOrderRepo_MarkPaidTransitions(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	seedOrder(t, db, "ORD-1", model.OrderStatusPending)
	paidAt := time.Now()

	won, err := repo.MarkPaid(ctx, db, "ORD-1", paidAt)
	require.NoError(t, err)
	assert.True(t, won)

	// PAID is sticky: a second attempt changes nothing
	won, err = repo.MarkPaid(ctx, db, "ORD-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, won)

	order, err := repo.FindByOrderNo(ctx, nil, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, paidAt.Unix(), order.PaidAt.Unix())
}

func TestOrderRepo_TerminalStatesProtected(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	seedOrder(t, db, "ORD-paid", model.OrderStatusPaid)
	seedOrder(t, db, "ORD-cancelled", model.OrderStatusCancelled)

	// a PAID order cannot be cancelled
	won, err := repo.MarkCancelled(ctx, db, "ORD-paid")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.False(t, won)

	// a CANCELLED order cannot become PAID
	won, err = repo.MarkPaid(ctx, db, "ORD-cancelled", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.False(t, won)

	order, _ := repo.FindByOrderNo(ctx, nil, "ORD-paid")
	assert.Equal(t, model.OrderStatusPaid, order.Status)
	order, _ = repo.FindByOrderNo(ctx, nil, "ORD-cancelled")
	assert.Equal(t, model.OrderStatusCancelled, order.Status)
}

func TestOrderRepo_FindExpiredPending(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()

	stale := seedOrder(t, db, "ORD-stale", model.OrderStatusPending)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(stale).Update("expires_at", past).Error)

	seedOrder(t, db, "ORD-fresh", model.OrderStatusPending)
	alreadyPaid := seedOrder(t, db, "ORD-paid", model.OrderStatusPaid)
	require.NoError(t, db.Model(alreadyPaid).Update("expires_at", past).Error)

	orders, err := repo.FindExpiredPending(ctx, time.Now(), 10)
	require.NoError(t, err)

	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-stale", orders[0].OrderNo)
}
