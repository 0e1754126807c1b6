package handler

import (
	"net/http"

	"docforge-backend/internal/dto"
	"docforge-backend/internal/model"
	"docforge-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type PromoHandler struct {
	promoService service.PromoService
}

func NewPromoHandler(promoService service.PromoService) *PromoHandler {
	return &PromoHandler{promoService: promoService}
}

func (h *PromoHandler) Generate(c echo.Context) error {
	var req dto.GeneratePromoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	promo, err := h.promoService.Generate(c.Request().Context(), &req)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, promoResponse(promo))
}

func (h *PromoHandler) List(c echo.Context) error {
	promos, err := h.promoService.List(c.Request().Context())
	if err != nil {
		return err
	}

	out := make([]*dto.PromoCodeResponse, len(promos))
	for i, p := range promos {
		out[i] = promoResponse(p)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"promo_codes": out})
}

func (h *PromoHandler) Redeem(c echo.Context) error {
	var req dto.RedeemPromoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	membership, err := h.promoService.Redeem(c.Request().Context(), req.Code, req.UserID)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, &dto.RedeemPromoResponse{
		PlanType:  membership.PlanType,
		ExpiresAt: membership.ExpiresAt,
	})
}

func promoResponse(p *model.PromoCode) *dto.PromoCodeResponse {
	return &dto.PromoCodeResponse{
		ID:           p.ID,
		Code:         p.Code,
		PlanType:     p.PlanType,
		DurationDays: p.DurationDays,
		MaxUses:      p.MaxUses,
		UsedCount:    p.UsedCount,
		ExpiresAt:    p.ExpiresAt,
		CreatedAt:    p.CreatedAt,
	}
}
