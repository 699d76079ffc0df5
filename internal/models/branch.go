package models

import (
	"time"

	"gorm.io/datatypes"
)

type Brand struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       *uint     `gorm:"index" json:"tenant_id"`
	OwnerID        uint      `gorm:"index;not null" json:"owner_id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	Slug           string    `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	CustomDomain   *string   `gorm:"size:255;uniqueIndex" json:"custom_domain"`
	LogoURL        string    `gorm:"size:500" json:"logo_url"`
	SubscriptionID *uint     `json:"subscription_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Branch struct {
	ID        uint                                `gorm:"primaryKey" json:"id"`
	BrandID   uint                                `gorm:"not null;uniqueIndex:idx_branch_brand_slug" json:"brand_id"`
	Name      string                              `gorm:"size:100;not null" json:"name"`
	Slug      string                              `gorm:"size:100;not null;uniqueIndex:idx_branch_brand_slug" json:"slug"`
	IsActive  bool                                `json:"is_active"`
	Phone     string                              `gorm:"size:50" json:"phone"`
	Email     string                              `gorm:"size:255" json:"email"`
	Website   string                              `gorm:"size:500" json:"website"`
	Address   string                              `gorm:"size:255" json:"address"`
	City      string                              `gorm:"size:100" json:"city"`
	Country   string                              `gorm:"size:100" json:"country"`
	Hours     datatypes.JSONSlice[OpeningHours]   `json:"hours"`
	Microsite datatypes.JSONType[MicrositeConfig] `json:"microsite"`
	CreatedAt time.Time                           `json:"created_at"`
	UpdatedAt time.Time                           `json:"updated_at"`
}

type OpeningHours struct {
	Day    string `json:"day" validate:"required,oneof=mon tue wed thu fri sat sun"`
	Open   string `json:"open" validate:"omitempty,len=5"`
	Close  string `json:"close" validate:"omitempty,len=5"`
	Closed bool   `json:"closed"`
}

// MicrositeConfig is the typed shape of a branch's public page.
type MicrositeConfig struct {
	Theme        string       `json:"theme" validate:"omitempty,oneof=light dark classic modern"`
	AccentColor  string       `json:"accent_color" validate:"omitempty,hexcolor"`
	Headline     string       `json:"headline" validate:"max=120"`
	About        string       `json:"about" validate:"max=2000"`
	CoverImage   string       `json:"cover_image" validate:"omitempty,url"`
	Social       []SocialLink `json:"social" validate:"max=12,dive"`
	Buttons      []Button     `json:"buttons" validate:"max=8,dive"`
	ShowLeadForm bool         `json:"show_lead_form"`
}

type SocialLink struct {
	Network string `json:"network" validate:"required,oneof=facebook instagram linkedin x youtube tiktok whatsapp"`
	URL     string `json:"url" validate:"required,url"`
}

type Button struct {
	Label string `json:"label" validate:"required,max=40"`
	Kind  string `json:"kind" validate:"required,oneof=link call email map"`
	Value string `json:"value" validate:"required,max=500"`
}
