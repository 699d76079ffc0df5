package models

import "time"

type PlanDuration string

const (
	DurationMonthly PlanDuration = "MONTHLY"
	DurationYearly  PlanDuration = "YEARLY"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type Gateway string

const (
	GatewayRazorpay Gateway = "RAZORPAY"
	GatewayStripe   Gateway = "STRIPE"
	GatewayManual   Gateway = "MANUAL" // granted by a super admin, no payment
)

type SubscriptionPlan struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:100;not null" json:"name"`
	Description string       `gorm:"size:500" json:"description"`
	Price       int64        `gorm:"not null" json:"price"` // minor units
	Currency    string       `gorm:"size:3;not null" json:"currency"`
	Duration    PlanDuration `gorm:"size:10;not null" json:"duration"`
	BranchLimit int          `gorm:"not null;default:1" json:"branch_limit"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Subscription struct {
	ID                     uint               `gorm:"primaryKey" json:"id"`
	BrandID                uint               `gorm:"uniqueIndex;not null" json:"brand_id"`
	PlanID                 uint               `gorm:"index;not null" json:"plan_id"`
	Plan                   SubscriptionPlan   `json:"plan"`
	Status                 SubscriptionStatus `gorm:"size:20;index;not null" json:"status"`
	StartDate              time.Time          `json:"start_date"`
	EndDate                time.Time          `gorm:"index" json:"end_date"`
	AutoRenew              bool               `json:"auto_renew"`
	LicenseKey             string             `gorm:"size:64;uniqueIndex;not null" json:"license_key"`
	Gateway                Gateway            `gorm:"size:20" json:"gateway"`
	ExternalSubscriptionID string             `gorm:"size:255" json:"external_subscription_id"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// PaymentOrder is the pending checkout that a gateway callback is matched against.
type PaymentOrder struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	BrandID         uint          `gorm:"index;not null" json:"brand_id"`
	PlanID          uint          `gorm:"not null" json:"plan_id"`
	Gateway         Gateway       `gorm:"size:20;not null" json:"gateway"`
	ExternalOrderID string        `gorm:"size:255;uniqueIndex;not null" json:"external_order_id"`
	ClientSecret    string        `gorm:"size:255" json:"-"`
	Amount          int64         `gorm:"not null" json:"amount"`
	Currency        string        `gorm:"size:3;not null" json:"currency"`
	Status          PaymentStatus `gorm:"size:20;not null" json:"status"`
	CreatedBy       uint          `json:"created_by"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type Payment struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	SubscriptionID    uint          `gorm:"index;not null" json:"subscription_id"`
	Amount            int64         `gorm:"not null" json:"amount"`
	Currency          string        `gorm:"size:3;not null" json:"currency"`
	Status            PaymentStatus `gorm:"size:20;not null" json:"status"`
	Gateway           Gateway       `gorm:"size:20;not null" json:"gateway"`
	ExternalOrderID   string        `gorm:"size:255;index" json:"external_order_id"`
	ExternalPaymentID string        `gorm:"size:255;uniqueIndex;not null" json:"external_payment_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type InvoiceStatus string

const InvoicePaid InvoiceStatus = "PAID"

type Invoice struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	PaymentID      uint          `gorm:"uniqueIndex;not null" json:"payment_id"`
	SubscriptionID uint          `gorm:"index;not null" json:"subscription_id"`
	Number         string        `gorm:"size:32;uniqueIndex;not null" json:"number"`
	Amount         int64         `gorm:"not null" json:"amount"`
	Currency       string        `gorm:"size:3;not null" json:"currency"`
	Status         InvoiceStatus `gorm:"size:20;not null" json:"status"`
	DueAt          time.Time     `json:"due_at"`
	PaidAt         *time.Time    `json:"paid_at"`
	CreatedAt      time.Time     `json:"created_at"`
}
