package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docforge-backend/internal/apperrors"
	"docforge-backend/internal/client"
	"docforge-backend/internal/dto"
	"docforge-backend/internal/model"
	"docforge-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// order rows stay payable for a week
const orderLifetime = 7 * 24 * time.Hour

// webhook status tokens the gateway may use for a settled payment
var paidStatusTokens = map[string]bool{
	"SUCCESS": true,
	"success": true,
	"PAID":    true,
	"paid":    true,
	"1":       true,
}

// compiled-in plan set, used when the membership_plans table is empty or
// unreachable
var defaultPlans = []*model.MembershipPlan{
	{ID: model.PlanPro, Name: "Pro", Price: 2900, OriginalPrice: 5900, DurationDays: 30},
	{ID: model.PlanTeam, Name: "Team", Price: 9900, OriginalPrice: 19900, DurationDays: 30},
}

type PaymentService interface {
	Plans(ctx context.Context) ([]*dto.Plan, error)
	CreateOrder(ctx context.Context, externalUserID, planType string) (*model.Order, error)
	// CreateNativePayOrder creates the order row and asks the gateway for
	// a scannable payment reference. A gateway failure cancels the
	// just-created order.
	CreateNativePayOrder(ctx context.Context, externalUserID, planType string) (*dto.NativePayResponse, error)
	// HandleNotify processes an inbound gateway notification. It always
	// produces an acknowledgment; business-rule rejections are FAIL acks,
	// never errors.
	HandleNotify(ctx context.Context, params map[string]string) dto.NotifyAck
	// QueryOrderStatus is the client polling path: a PENDING order
	// triggers one gateway query and settles on success. Query failures
	// leave the order untouched and return its current state.
	QueryOrderStatus(ctx context.Context, orderNo string) (*dto.OrderStatusResponse, error)
	ListOrders(ctx context.Context, externalUserID string) ([]*dto.OrderResponse, error)

	// sweeper entrypoints
	CancelExpiredOrders(ctx context.Context, now time.Time) (int, error)
	ReconcilePendingOrders(ctx context.Context, since time.Time) (int, error)
}

type paymentServiceImpl struct {
	db                *gorm.DB
	gatewayClient     client.GatewayClient
	gatewaySecret     string
	userRepo          repository.UserRepository
	planRepo          repository.PlanRepository
	orderRepo         repository.OrderRepository
	membershipService MembershipService
	webhookEventRepo  repository.WebhookEventRepository
}

func NewPaymentService(
	db *gorm.DB,
	gatewayClient client.GatewayClient,
	gatewaySecret string,
	userRepo repository.UserRepository,
	planRepo repository.PlanRepository,
	orderRepo repository.OrderRepository,
	membershipService MembershipService,
	webhookEventRepo repository.WebhookEventRepository,
) PaymentService {
	return &paymentServiceImpl{
		db:                db,
		gatewayClient:     gatewayClient,
		gatewaySecret:     gatewaySecret,
		userRepo:          userRepo,
		planRepo:          planRepo,
		orderRepo:         orderRepo,
		membershipService: membershipService,
		webhookEventRepo:  webhookEventRepo,
	}
}

func (s *paymentServiceImpl) plans(ctx context.Context) []*model.MembershipPlan {
	plans, err := s.planRepo.List(ctx)
	if err != nil {
		slog.Warn("plan listing failed, using default plans", "error", err)
		return defaultPlans
	}
	if len(plans) == 0 {
		return defaultPlans
	}
	return plans
}

func (s *paymentServiceImpl) planByID(ctx context.Context, id string) (*model.MembershipPlan, error) {
	for _, p := range s.plans(ctx) {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperrors.ErrPlanNotFound
}

func (s *paymentServiceImpl) Plans(ctx context.Context) ([]*dto.Plan, error) {
	plans := s.plans(ctx)

	out := make([]*dto.Plan, len(plans))
	for i, p := range plans {
		out[i] = &dto.Plan{
			ID:            p.ID,
			Name:          p.Name,
			Price:         p.Price,
			OriginalPrice: p.OriginalPrice,
			DurationDays:  p.DurationDays,
		}
	}
	return out, nil
}

func (s *paymentServiceImpl) CreateOrder(ctx context.Context, externalUserID, planType string) (*model.Order, error) {
	plan, err := s.planByID(ctx, planType)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(orderLifetime)
	order := &model.Order{
		OrderNo:       generateOrderNo(),
		UserID:        user.ID,
		PlanType:      plan.ID,
		PlanName:      plan.Name,
		Amount:        plan.Price,
		OriginalPrice: plan.OriginalPrice,
		DiscountPrice: plan.OriginalPrice - plan.Price,
		Status:        model.OrderStatusPending,
		ExpiresAt:     &expiresAt,
	}

	// an order_no collision trips the unique index and is surfaced as a
	// hard failure rather than retried
	if err := s.orderRepo.Create(ctx, s.db, order); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	return order, nil
}

func (s *paymentServiceImpl) CreateNativePayOrder(ctx context.Context, externalUserID, planType string) (*dto.NativePayResponse, error) {
	order, err := s.CreateOrder(ctx, externalUserID, planType)
	if err != nil {
		return nil, err
	}

	ref, err := s.gatewayClient.CreateNativePay(ctx, order.OrderNo, order.Amount, order.PlanName+" membership")
	if err != nil {
		// no way to pay an orphaned PENDING order; cancel it
		if _, cancelErr := s.orderRepo.MarkCancelled(ctx, s.db, order.OrderNo); cancelErr != nil {
			slog.Error("cancel order after gateway failure", "order_no", order.OrderNo, "error", cancelErr)
		}
		return nil, fmt.Errorf("gateway create payment: %w", err)
	}

	return &dto.NativePayResponse{
		OrderNo:   order.OrderNo,
		QRCodeURL: ref.QRCode,
	}, nil
}

func (s *paymentServiceImpl) HandleNotify(ctx context.Context, params map[string]string) dto.NotifyAck {
	if !client.VerifySign(params, s.gatewaySecret) {
		slog.Error("webhook signature verification failed", "params", params)
		return dto.NotifyAck{Code: "FAIL", Msg: "invalid signature"}
	}

	orderNo := params["out_trade_no"]
	if orderNo == "" {
		orderNo = params["order_no"]
	}
	if orderNo == "" {
		slog.Error("webhook missing order number", "params", params)
		return dto.NotifyAck{Code: "FAIL", Msg: "missing order number"}
	}

	order, err := s.orderRepo.FindByOrderNo(ctx, nil, orderNo)
	if err != nil {
		slog.Error("webhook for unknown order", "order_no", orderNo, "error", err)
		return dto.NotifyAck{Code: "FAIL", Msg: "order not found"}
	}

	// gateways redeliver; an already-settled order is acked as success
	if order.Status == model.OrderStatusPaid {
		slog.Info("duplicate webhook for settled order", "order_no", orderNo)
		return dto.NotifyAck{Code: "SUCCESS", Msg: "order already processed"}
	}
	if order.Status == model.OrderStatusCancelled {
		slog.Warn("webhook for cancelled order", "order_no", orderNo)
		return dto.NotifyAck{Code: "FAIL", Msg: "order cancelled"}
	}

	status := firstNonEmpty(params["status"], params["trade_status"], params["pay_status"])
	if !paidStatusTokens[status] {
		slog.Warn("webhook with non-paid status", "order_no", orderNo, "status", status)
		return dto.NotifyAck{Code: "FAIL", Msg: "unexpected payment status: " + status}
	}

	if rawAmount := firstNonEmpty(params["total_fee"], params["amount"], params["money"]); rawAmount != "" {
		if ok := amountMatches(rawAmount, order.Amount); !ok {
			slog.Error("webhook amount mismatch",
				"order_no", orderNo, "order_amount", order.Amount, "webhook_amount", rawAmount)
			return dto.NotifyAck{Code: "FAIL", Msg: "amount mismatch"}
		}
	}

	if err := s.settle(ctx, order); err != nil {
		slog.Error("webhook settlement failed", "order_no", orderNo, "error", err)
		return dto.NotifyAck{Code: "FAIL", Msg: "processing failed"}
	}

	s.recordWebhookEvent(ctx, params, orderNo)

	slog.Info("order settled via webhook", "order_no", orderNo)
	return dto.NotifyAck{Code: "SUCCESS", Msg: "ok"}
}

// settle is the one settlement routine shared by the webhook, polling and
// sweeper paths: transition the order to PAID and grant the membership as
// a single unit of work. The guarded PENDING→PAID update decides the race
// between concurrent paths; the loser sees zero rows and does nothing.
func (s *paymentServiceImpl) settle(ctx context.Context, order *model.Order) error {
	plan, err := s.planByID(ctx, order.PlanType)
	if err != nil {
		return fmt.Errorf("resolve plan %q: %w", order.PlanType, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.orderRepo.MarkPaid(ctx, tx, order.OrderNo, time.Now())
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if !won {
			// lost the race; the winner has already granted the membership
			return nil
		}

		if _, err := s.membershipService.GrantOrRenew(ctx, tx, order.UserID, plan.ID, plan.DurationDays); err != nil {
			// rolls back the order transition too
			return fmt.Errorf("grant membership: %w", err)
		}

		return nil
	})
}

// recordWebhookEvent writes the processed-notification audit row. It runs
// after the settlement commit and never fails the webhook.
func (s *paymentServiceImpl) recordWebhookEvent(ctx context.Context, params map[string]string, orderNo string) {
	eventID := firstNonEmpty(params["pay_no"], params["trade_no"], params["payNo"])
	if eventID == "" {
		eventID = uuid.NewString()
	}

	// secondary dedup only; the guarded order transition is what makes
	// settlement at-most-once
	if seen, err := s.webhookEventRepo.Exists(ctx, eventID); err == nil && seen {
		return
	}

	err := s.webhookEventRepo.MarkProcessed(ctx, nil, &model.WebhookEvent{
		EventID:   eventID,
		OrderNo:   orderNo,
		EventType: "payment.notify",
	})
	if err != nil {
		slog.Warn("record webhook event", "order_no", orderNo, "error", err)
	}
}

func (s *paymentServiceImpl) QueryOrderStatus(ctx context.Context, orderNo string) (*dto.OrderStatusResponse, error) {
	order, err := s.orderRepo.FindByOrderNo(ctx, nil, orderNo)
	if err != nil {
		return nil, err
	}

	if order.Status == model.OrderStatusPending {
		status, err := s.gatewayClient.QueryOrder(ctx, orderNo)
		switch {
		case err != nil:
			// a failed query must never block the user from retrying
			slog.Warn("gateway order query failed", "order_no", orderNo, "error", err)
		case status == client.GatewayStatusSuccess:
			if err := s.settle(ctx, order); err != nil {
				slog.Error("polling settlement failed", "order_no", orderNo, "error", err)
			} else if order, err = s.orderRepo.FindByOrderNo(ctx, nil, orderNo); err != nil {
				return nil, err
			}
		}
	}

	return &dto.OrderStatusResponse{
		OrderNo: order.OrderNo,
		Status:  strings.ToLower(order.Status),
		PaidAt:  order.PaidAt,
	}, nil
}

func (s *paymentServiceImpl) ListOrders(ctx context.Context, externalUserID string) ([]*dto.OrderResponse, error) {
	user, err := s.userRepo.FindByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, err
	}

	orders, err := s.orderRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = &dto.OrderResponse{
			ID:        o.ID,
			OrderNo:   o.OrderNo,
			PlanType:  o.PlanType,
			PlanName:  o.PlanName,
			Amount:    o.Amount,
			Status:    o.Status,
			ExpiresAt: o.ExpiresAt,
			PaidAt:    o.PaidAt,
			CreatedAt: o.CreatedAt,
		}
	}
	return out, nil
}

func (s *paymentServiceImpl) CancelExpiredOrders(ctx context.Context, now time.Time) (int, error) {
	orders, err := s.orderRepo.FindExpiredPending(ctx, now, 200)
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}

	cancelled := 0
	for _, order := range orders {
		won, err := s.orderRepo.MarkCancelled(ctx, s.db, order.OrderNo)
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			// paid between the scan and the cancel; leave it alone
			continue
		}
		if err != nil {
			slog.Error("cancel expired order", "order_no", order.OrderNo, "error", err)
			continue
		}
		if won {
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *paymentServiceImpl) ReconcilePendingOrders(ctx context.Context, since time.Time) (int, error) {
	orders, err := s.orderRepo.FindRecentPending(ctx, since, 200)
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}

	settled := 0
	for _, order := range orders {
		status, err := s.gatewayClient.QueryOrder(ctx, order.OrderNo)
		if err != nil {
			slog.Warn("reconcile query failed", "order_no", order.OrderNo, "error", err)
			continue
		}
		if status != client.GatewayStatusSuccess {
			continue
		}
		if err := s.settle(ctx, order); err != nil {
			slog.Error("reconcile settlement failed", "order_no", order.OrderNo, "error", err)
			continue
		}
		settled++
	}
	return settled, nil
}

// amountMatches compares a webhook amount against the order amount in
// minor units, accepting either minor units ("2900") or major units with
// fraction digits ("29.00") from the gateway. Unparseable values pass,
// matching the original best-effort check.
func amountMatches(raw string, amountMinor int) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return true
	}

	minor := decimal.NewFromInt(int64(amountMinor))
	return d.Equal(minor) || d.Mul(decimal.NewFromInt(100)).Equal(minor)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
