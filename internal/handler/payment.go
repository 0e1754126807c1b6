package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"docforge-backend/internal/apperrors"
	"docforge-backend/internal/dto"
	"docforge-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) GetPlans(c echo.Context) error {
	plans, err := h.paymentService.Plans(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"plans": plans})
}

func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.paymentService.CreateOrder(ctx, req.UserID, req.PlanType)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, &dto.OrderResponse{
		ID:        order.ID,
		OrderNo:   order.OrderNo,
		PlanType:  order.PlanType,
		PlanName:  order.PlanName,
		Amount:    order.Amount,
		Status:    order.Status,
		ExpiresAt: order.ExpiresAt,
		CreatedAt: order.CreatedAt,
	})
}

func (h *PaymentHandler) AlipayCreate(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	resp, err := h.paymentService.CreateNativePayOrder(ctx, req.UserID, req.PlanType)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, resp)
}

// AlipayNotify receives gateway settlement callbacks. The response is
// always HTTP 200 with a SUCCESS/FAIL ack so that the gateway does not
// retry business-rule rejections.
func (h *PaymentHandler) AlipayNotify(c echo.Context) error {
	params := notifyParams(c)

	ack := h.paymentService.HandleNotify(c.Request().Context(), params)
	return c.JSON(http.StatusOK, ack)
}

// notifyParams flattens the callback payload, which arrives form-encoded
// or as JSON depending on the gateway's mood.
func notifyParams(c echo.Context) map[string]string {
	params := map[string]string{}

	if form, err := c.FormParams(); err == nil {
		for k, v := range form {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
	}

	if len(params) == 0 {
		var payload map[string]interface{}
		if err := json.NewDecoder(c.Request().Body).Decode(&payload); err == nil {
			for k, v := range payload {
				params[k] = fmt.Sprintf("%v", v)
			}
		}
	}

	return params
}

func (h *PaymentHandler) AlipayQuery(c echo.Context) error {
	orderNo := c.QueryParam("order_no")
	if orderNo == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing order_no")
	}

	resp, err := h.paymentService.QueryOrderStatus(c.Request().Context(), orderNo)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) ListOrders(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing user_id")
	}

	orders, err := h.paymentService.ListOrders(c.Request().Context(), userID)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders})
}

func mapDomainError(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrPlanNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, "unknown membership plan")
	case errors.Is(err, apperrors.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, apperrors.ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, apperrors.ErrPromoNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "promo code not found")
	case errors.Is(err, apperrors.ErrPromoExhausted):
		return echo.NewHTTPError(http.StatusBadRequest, "promo code usage limit reached")
	case errors.Is(err, apperrors.ErrPromoExpired):
		return echo.NewHTTPError(http.StatusBadRequest, "promo code expired")
	default:
		return err
	}
}
