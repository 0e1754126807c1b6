package model

import "time"

const (
	PlanFree = "free"
	PlanPro  = "pro"
	PlanTeam = "team"
)

const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusCancelled = "CANCELLED"
)

type User struct {
	ID         uint   `gorm:"primaryKey"`
	ExternalID string `gorm:"size:64;uniqueIndex;not null"` // id issued by the identity provider
	TenantKey  string `gorm:"size:64;index"`
	Nickname   string `gorm:"size:100"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Membership struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   uint   `gorm:"uniqueIndex;not null"`
	PlanType string `gorm:"size:16;not null;default:free"`
	// nil means unlimited (free tier has no expiry)
	ExpiresAt *time.Time

	// usage counters owned by the quota subsystem; entitlement updates
	// must leave them untouched
	PDFExportsUsed   int `gorm:"not null;default:0"`
	AIGeneratesUsed  int `gorm:"not null;default:0"`
	AIGeneratesTotal int `gorm:"not null;default:0"`
	UsageResetAt     time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type MembershipPlan struct {
	ID   string `gorm:"primaryKey;size:32"` // 'pro' | 'team'
	Name string `gorm:"size:50;not null"`
	// prices in minor currency units (fen)
	Price         int `gorm:"not null"`
	OriginalPrice int
	DurationDays  int `gorm:"not null;default:30"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Order struct {
	ID       uint   `gorm:"primaryKey"`
	OrderNo  string `gorm:"size:32;uniqueIndex;not null"` // idempotency key with the gateway
	UserID   uint   `gorm:"index;not null"`
	PlanType string `gorm:"size:16;not null"`
	PlanName string `gorm:"size:50"` // display snapshot, immutable after creation
	// amounts in minor currency units (fen)
	Amount        int `gorm:"not null"`
	OriginalPrice int
	DiscountPrice int
	Status        string `gorm:"size:16;index;not null;default:PENDING"` // PENDING, PAID, CANCELLED
	// order expiry, not membership expiry
	ExpiresAt *time.Time
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PromoCode struct {
	ID           uint   `gorm:"primaryKey"`
	Code         string `gorm:"size:12;uniqueIndex;not null"`
	PlanType     string `gorm:"size:16;not null"`
	DurationDays int    `gorm:"not null"`
	MaxUses      int    `gorm:"not null;default:1"`
	UsedCount    int    `gorm:"not null;default:0"`
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

// WebhookEvent is a processed-notification audit record. Settlement
// idempotency is enforced by the order status, not by this table.
type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;not null"`
	OrderNo     string `gorm:"size:32;index"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}
