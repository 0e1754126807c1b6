package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"docforge-backend/internal/apperrors"
	"docforge-backend/internal/client"
	"docforge-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPendingOrder(t *testing.T, f *engineFixture, externalUserID string) *model.Order {
	t.Helper()

	order, err := f.payment.CreateOrder(context.Background(), externalUserID, model.PlanPro)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, order.Status)
	return order
}

func paidNotify(orderNo string) map[string]string {
	return signedNotify(map[string]string{
		"out_trade_no": orderNo,
		"status":       "SUCCESS",
		"total_fee":    "29.00",
		"pay_no":       "GW-" + orderNo,
	})
}

func loadOrder(t *testing.T, f *engineFixture, orderNo string) *model.Order {
	t.Helper()

	var order model.Order
	require.NoError(t, f.db.Where("order_no = ?", orderNo).First(&order).Error)
	return &order
}

func TestCreateOrder_SnapshotsPlan(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")

	order := createPendingOrder(t, f, "U1")

	assert.Contains(t, order.OrderNo, "ORD")
	assert.Len(t, order.OrderNo, 3+14+6)
	assert.Equal(t, 2900, order.Amount)
	assert.Equal(t, 5900, order.OriginalPrice)
	assert.Equal(t, 3000, order.DiscountPrice)
	assert.Equal(t, "Pro", order.PlanName)
	require.NotNil(t, order.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *order.ExpiresAt, 5*time.Second)
}

func TestCreateOrder_UnknownPlanOrUser(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")

	_, err := f.payment.CreateOrder(context.Background(), "U1", "enterprise")
	assert.ErrorIs(t, err, apperrors.ErrPlanNotFound)

	_, err = f.payment.CreateOrder(context.Background(), "nobody", model.PlanPro)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestCreateNativePayOrder_ReturnsReference(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")

	f.gateway.createFn = func(ctx context.Context, orderNo string, amount int, subject string) (*client.PaymentReference, error) {
		assert.Equal(t, 2900, amount)
		assert.Equal(t, "Pro membership", subject)
		return &client.PaymentReference{OrderNo: orderNo, QRCode: "data:image/png;base64,QQ=="}, nil
	}

	resp, err := f.payment.CreateNativePayOrder(context.Background(), "U1", model.PlanPro)
	require.NoError(t, err)

	assert.Equal(t, "data:image/png;base64,QQ==", resp.QRCodeURL)
	assert.Equal(t, model.OrderStatusPending, loadOrder(t, f, resp.OrderNo).Status)
}

func TestCreateNativePayOrder_GatewayFailureCancelsOrder(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")

	var createdOrderNo string
	f.gateway.createFn = func(ctx context.Context, orderNo string, amount int, subject string) (*client.PaymentReference, error) {
		createdOrderNo = orderNo
		return nil, fmt.Errorf("gateway timeout")
	}

	_, err := f.payment.CreateNativePayOrder(context.Background(), "U1", model.PlanPro)
	require.Error(t, err)

	// no orphaned PENDING order is left behind
	assert.Equal(t, model.OrderStatusCancelled, loadOrder(t, f, createdOrderNo).Status)
}

func TestHandleNotify_SettlesOrder(t *testing.T) {
	f := newEngineFixture(t)
	user := seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")

	before := time.Now()
	ack := f.payment.HandleNotify(context.Background(), paidNotify(order.OrderNo))
	assert.Equal(t, "SUCCESS", ack.Code)

	settled := loadOrder(t, f, order.OrderNo)
	assert.Equal(t, model.OrderStatusPaid, settled.Status)
	require.NotNil(t, settled.PaidAt)

	var membership model.Membership
	require.NoError(t, f.db.Where("user_id = ?", user.ID).First(&membership).Error)
	assert.Equal(t, model.PlanPro, membership.PlanType)
	require.NotNil(t, membership.ExpiresAt)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), *membership.ExpiresAt, 5*time.Second)

	assert.Equal(t, 1, f.ledger.Grants())

	// audit record written
	var events int64
	require.NoError(t, f.db.Model(&model.WebhookEvent{}).Where("order_no = ?", order.OrderNo).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestHandleNotify_ReusedTradeNoAuditedOnce(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	first := createPendingOrder(t, f, "U1")
	second := createPendingOrder(t, f, "U1")

	// some gateways reuse the trade number across notifications
	notify := func(orderNo string) map[string]string {
		return signedNotify(map[string]string{
			"out_trade_no": orderNo,
			"status":       "SUCCESS",
			"total_fee":    "29.00",
			"pay_no":       "GW-shared",
		})
	}

	ack := f.payment.HandleNotify(context.Background(), notify(first.OrderNo))
	assert.Equal(t, "SUCCESS", ack.Code)
	ack = f.payment.HandleNotify(context.Background(), notify(second.OrderNo))
	assert.Equal(t, "SUCCESS", ack.Code)

	// both orders settle; the audit table keeps one row per event id
	assert.Equal(t, model.OrderStatusPaid, loadOrder(t, f, first.OrderNo).Status)
	assert.Equal(t, model.OrderStatusPaid, loadOrder(t, f, second.OrderNo).Status)

	var events int64
	require.NoError(t, f.db.Model(&model.WebhookEvent{}).
		Where("event_id = ?", "GW-shared").Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestHandleNotify_RedeliveryIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")
	params := paidNotify(order.OrderNo)

	first := f.payment.HandleNotify(context.Background(), params)
	require.Equal(t, "SUCCESS", first.Code)
	paidAt := loadOrder(t, f, order.OrderNo).PaidAt

	for i := 0; i < 3; i++ {
		ack := f.payment.HandleNotify(context.Background(), params)
		assert.Equal(t, "SUCCESS", ack.Code)
	}

	settled := loadOrder(t, f, order.OrderNo)
	assert.Equal(t, model.OrderStatusPaid, settled.Status)
	assert.Equal(t, paidAt.Unix(), settled.PaidAt.Unix())
	assert.Equal(t, 1, f.ledger.Grants(), "redelivery must not re-grant")
}

func TestHandleNotify_InvalidSignature(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")

	params := paidNotify(order.OrderNo)
	params["sign"] = "DEADBEEF"

	ack := f.payment.HandleNotify(context.Background(), params)
	assert.Equal(t, "FAIL", ack.Code)
	assert.Equal(t, model.OrderStatusPending, loadOrder(t, f, order.OrderNo).Status)
	assert.Zero(t, f.ledger.Grants())
}

func TestHandleNotify_MissingOrderNo(t *testing.T) {
	f := newEngineFixture(t)

	ack := f.payment.HandleNotify(context.Background(), signedNotify(map[string]string{
		"status": "SUCCESS",
	}))
	assert.Equal(t, "FAIL", ack.Code)
}

func TestHandleNotify_UnknownOrder(t *testing.T) {
	f := newEngineFixture(t)

	ack := f.payment.HandleNotify(context.Background(), paidNotify("ORD00000000000000XXXXXX"))
	assert.Equal(t, "FAIL", ack.Code)
}

func TestHandleNotify_NonPaidStatusToken(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")

	ack := f.payment.HandleNotify(context.Background(), signedNotify(map[string]string{
		"out_trade_no": order.OrderNo,
		"status":       "WAIT_BUYER_PAY",
	}))
	assert.Equal(t, "FAIL", ack.Code)
	assert.Equal(t, model.OrderStatusPending, loadOrder(t, f, order.OrderNo).Status)
}

func TestHandleNotify_AmountMismatchRejected(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")

	ack := f.payment.HandleNotify(context.Background(), signedNotify(map[string]string{
		"out_trade_no": order.OrderNo,
		"status":       "SUCCESS",
		"total_fee":    "28.00",
	}))
	assert.Equal(t, "FAIL", ack.Code)
	assert.Equal(t, model.OrderStatusPending, loadOrder(t, f, order.OrderNo).Status)
	assert.Zero(t, f.ledger.Grants())
}

func TestHandleNotify_AmountInMinorUnitsAccepted(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")

	ack := f.payment.HandleNotify(context.Background(), signedNotify(map[string]string{
		"out_trade_no": order.OrderNo,
		"status":       "SUCCESS",
		"total_fee":    "2900",
	}))
	assert.Equal(t, "SUCCESS", ack.Code)
	assert.Equal(t, model.OrderStatusPaid, loadOrder(t, f, order.OrderNo).Status)
}

func TestHandleNotify_CancelledOrderStaysCancelled(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")

	require.NoError(t, f.db.Model(&model.Order{}).
		Where("order_no = ?", order.OrderNo).
		Update("status", model.OrderStatusCancelled).Error)

	// a late webhook cannot resurrect a cancelled order
	ack := f.payment.HandleNotify(context.Background(), paidNotify(order.OrderNo))
	assert.Equal(t, "FAIL", ack.Code)
	assert.Equal(t, model.OrderStatusCancelled, loadOrder(t, f, order.OrderNo).Status)
	assert.Zero(t, f.ledger.Grants())
}

func TestQueryOrderStatus_SettlesOnGatewaySuccess(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")

	f.gateway.queryFn = func(ctx context.Context, orderNo string) (client.GatewayStatus, error) {
		return client.GatewayStatusSuccess, nil
	}

	resp, err := f.payment.QueryOrderStatus(context.Background(), order.OrderNo)
	require.NoError(t, err)

	assert.Equal(t, "paid", resp.Status)
	assert.NotNil(t, resp.PaidAt)
	assert.Equal(t, 1, f.ledger.Grants())
}

func TestQueryOrderStatus_GatewayFailureLeavesPending(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")

	f.gateway.queryFn = func(ctx context.Context, orderNo string) (client.GatewayStatus, error) {
		return client.GatewayStatusUnknown, fmt.Errorf("gateway unreachable")
	}

	// the user can keep polling; a query failure is not their problem
	resp, err := f.payment.QueryOrderStatus(context.Background(), order.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, "pending", resp.Status)
	assert.Nil(t, resp.PaidAt)
}

func TestQueryOrderStatus_UnknownOrder(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.payment.QueryOrderStatus(context.Background(), "ORD-missing")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestSettlement_WebhookAndPollRace(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	order := createPendingOrder(t, f, "U1")
	params := paidNotify(order.OrderNo)

	f.gateway.queryFn = func(ctx context.Context, orderNo string) (client.GatewayStatus, error) {
		return client.GatewayStatusSuccess, nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ack := f.payment.HandleNotify(context.Background(), params)
		assert.Equal(t, "SUCCESS", ack.Code)
	}()
	go func() {
		defer wg.Done()
		_, err := f.payment.QueryOrderStatus(context.Background(), order.OrderNo)
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Equal(t, model.OrderStatusPaid, loadOrder(t, f, order.OrderNo).Status)
	assert.Equal(t, 1, f.ledger.Grants(), "exactly one settlement must win")
}

func TestCancelExpiredOrders(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	stale := createPendingOrder(t, f, "U1")
	fresh := createPendingOrder(t, f, "U1")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, f.db.Model(&model.Order{}).
		Where("order_no = ?", stale.OrderNo).
		Update("expires_at", past).Error)

	count, err := f.payment.CancelExpiredOrders(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.Equal(t, model.OrderStatusCancelled, loadOrder(t, f, stale.OrderNo).Status)
	assert.Equal(t, model.OrderStatusPending, loadOrder(t, f, fresh.OrderNo).Status)
}

func TestReconcilePendingOrders(t *testing.T) {
	f := newEngineFixture(t)
	seedUser(t, f.db, "U1")
	paidUpstream := createPendingOrder(t, f, "U1")
	stillPending := createPendingOrder(t, f, "U1")

	f.gateway.queryFn = func(ctx context.Context, orderNo string) (client.GatewayStatus, error) {
		if orderNo == paidUpstream.OrderNo {
			return client.GatewayStatusSuccess, nil
		}
		return client.GatewayStatusPending, nil
	}

	count, err := f.payment.ReconcilePendingOrders(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.Equal(t, model.OrderStatusPaid, loadOrder(t, f, paidUpstream.OrderNo).Status)
	assert.Equal(t, model.OrderStatusPending, loadOrder(t, f, stillPending.OrderNo).Status)
	assert.Equal(t, 1, f.ledger.Grants())
}

func TestEndToEnd_ProPurchase(t *testing.T) {
	f := newEngineFixture(t)
	user := seedUser(t, f.db, "U1")

	resp, err := f.payment.CreateNativePayOrder(context.Background(), "U1", model.PlanPro)
	require.NoError(t, err)

	order := loadOrder(t, f, resp.OrderNo)
	require.Equal(t, model.OrderStatusPending, order.Status)
	require.Equal(t, 2900, order.Amount)

	params := signedNotify(map[string]string{
		"out_trade_no": resp.OrderNo,
		"status":       "SUCCESS",
		"total_fee":    "2900",
	})

	before := time.Now()
	ack := f.payment.HandleNotify(context.Background(), params)
	require.Equal(t, "SUCCESS", ack.Code)

	order = loadOrder(t, f, resp.OrderNo)
	assert.Equal(t, model.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)

	var membership model.Membership
	require.NoError(t, f.db.Where("user_id = ?", user.ID).First(&membership).Error)
	assert.Equal(t, model.PlanPro, membership.PlanType)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), *membership.ExpiresAt, 5*time.Second)

	// identical redelivery changes nothing
	ack = f.payment.HandleNotify(context.Background(), params)
	assert.Equal(t, "SUCCESS", ack.Code)
	assert.Equal(t, 1, f.ledger.Grants())
}
