package handler

import (
	"net/http"

	"docforge-backend/internal/dto"
	"docforge-backend/internal/service"

	"github.com/labstack/echo/v4"
)

type MembershipHandler struct {
	membershipService service.MembershipService
}

func NewMembershipHandler(membershipService service.MembershipService) *MembershipHandler {
	return &MembershipHandler{membershipService: membershipService}
}

// Get returns the current entitlement for a user; users without a
// membership row read as the free tier.
func (h *MembershipHandler) Get(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing user_id")
	}

	membership, err := h.membershipService.GetByExternalID(c.Request().Context(), userID)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, &dto.MembershipResponse{
		UserID:           userID,
		PlanType:         membership.PlanType,
		ExpiresAt:        membership.ExpiresAt,
		PDFExportsUsed:   membership.PDFExportsUsed,
		AIGeneratesUsed:  membership.AIGeneratesUsed,
		AIGeneratesTotal: membership.AIGeneratesTotal,
	})
}
