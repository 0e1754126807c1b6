package dto

import "time"

type Plan struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Price         int    `json:"price"`
	OriginalPrice int    `json:"original_price,omitempty"`
	DurationDays  int    `json:"duration_days"`
}

type CreateOrderRequest struct {
	UserID   string `json:"user_id"`
	PlanType string `json:"plan_type"` // 'pro' or 'team'
}

type OrderResponse struct {
	ID        uint       `json:"id"`
	OrderNo   string     `json:"order_no"`
	PlanType  string     `json:"plan_type"`
	PlanName  string     `json:"plan_name,omitempty"`
	Amount    int        `json:"amount"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type MembershipResponse struct {
	UserID   string `json:"user_id"`
	PlanType string `json:"plan_type"`
	// nil expiry means no time limit
	ExpiresAt        *time.Time `json:"expires_at"`
	PDFExportsUsed   int        `json:"pdf_exports_used"`
	AIGeneratesUsed  int        `json:"ai_generates_used"`
	AIGeneratesTotal int        `json:"ai_generates_total"`
}

type NativePayResponse struct {
	OrderNo   string `json:"order_no"`
	QRCodeURL string `json:"qr_code_url"`
}

// NotifyAck is the webhook acknowledgment. Business-rule rejections are
// FAIL acks on HTTP 200, never transport errors.
type NotifyAck struct {
	Code string `json:"code"` // SUCCESS | FAIL
	Msg  string `json:"msg"`
}

type OrderStatusResponse struct {
	OrderNo string     `json:"order_no"`
	Status  string     `json:"status"` // pending | paid | cancelled
	PaidAt  *time.Time `json:"paid_at"`
}

type GeneratePromoRequest struct {
	PlanType     string     `json:"plan_type"`
	DurationDays int        `json:"duration_days"`
	MaxUses      int        `json:"max_uses"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

type PromoCodeResponse struct {
	ID           uint       `json:"id"`
	Code         string     `json:"code"`
	PlanType     string     `json:"plan_type"`
	DurationDays int        `json:"duration_days"`
	MaxUses      int        `json:"max_uses"`
	UsedCount    int        `json:"used_count"`
	ExpiresAt    *time.Time `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

type RedeemPromoRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

type RedeemPromoResponse struct {
	PlanType  string     `json:"plan_type"`
	ExpiresAt *time.Time `json:"expires_at"`
}
