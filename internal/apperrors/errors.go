package apperrors

import "errors"

var (
	ErrPlanNotFound  = errors.New("membership plan not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition is returned when an order transition targets a
	// conflicting terminal state (cancel on PAID, pay on CANCELLED).
	ErrInvalidTransition = errors.New("invalid order state transition")

	ErrPromoNotFound  = errors.New("promo code not found")
	ErrPromoExhausted = errors.New("promo code usage limit reached")
	ErrPromoExpired   = errors.New("promo code expired")
)
