package models

import "time"

type QRCode struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BrandID    uint      `gorm:"index;not null" json:"brand_id"`
	BranchID   *uint     `gorm:"index" json:"branch_id"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	TargetURL  string    `gorm:"size:1000;not null" json:"target_url"`
	Foreground string    `gorm:"size:7;default:'#000000'" json:"foreground"`
	Background string    `gorm:"size:7;default:'#ffffff'" json:"background"`
	ScanCount  int64     `gorm:"default:0" json:"scan_count"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ShortLink struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	BrandID    uint       `gorm:"index;not null" json:"brand_id"`
	BranchID   *uint      `gorm:"index" json:"branch_id"`
	Code       string     `gorm:"size:32;uniqueIndex;not null" json:"code"`
	TargetURL  string     `gorm:"size:1000;not null" json:"target_url"`
	ClickCount int64      `gorm:"default:0" json:"click_count"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Usable reports whether the link may still redirect at now.
func (s *ShortLink) Usable(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}
