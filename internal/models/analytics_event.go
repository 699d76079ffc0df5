package models

import (
	"time"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventQRScan         EventType = "QR_SCAN"
	EventVCardDownload  EventType = "VCARD_DOWNLOAD"
	EventLeadSubmit     EventType = "LEAD_SUBMIT"
	EventShortLinkClick EventType = "SHORT_LINK_CLICK"
	EventPageView       EventType = "PAGE_VIEW"
	EventButtonClick    EventType = "BUTTON_CLICK"
	EventSocialClick    EventType = "SOCIAL_CLICK"
	EventCallClick      EventType = "CALL_CLICK"
	EventEmailClick     EventType = "EMAIL_CLICK"
	EventMapClick       EventType = "MAP_CLICK"
)

var EventTypes = []EventType{
	EventQRScan, EventVCardDownload, EventLeadSubmit, EventShortLinkClick,
	EventPageView, EventButtonClick, EventSocialClick, EventCallClick,
	EventEmailClick, EventMapClick,
}

func (t EventType) Valid() bool {
	for _, et := range EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// EventMetadata is the client-reported context of an event.
type EventMetadata struct {
	Device   string            `json:"device,omitempty"`
	Browser  string            `json:"browser,omitempty"`
	OS       string            `json:"os,omitempty"`
	Referrer string            `json:"referrer,omitempty"`
	Screen   string            `json:"screen,omitempty"`
	TargetID uint              `json:"target_id,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// AnalyticsEvent rows are never updated after insert.
type AnalyticsEvent struct {
	ID         uint                              `gorm:"primaryKey" json:"id"`
	Type       EventType                         `gorm:"size:32;index;not null" json:"type"`
	BrandID    *uint                             `gorm:"index" json:"brand_id"`
	BranchID   *uint                             `gorm:"index" json:"branch_id"`
	PageURL    string                            `gorm:"size:1000" json:"page_url"`
	SessionID  string                            `gorm:"size:100;index" json:"session_id"`
	Metadata   datatypes.JSONType[EventMetadata] `json:"metadata"`
	IP         string                            `gorm:"size:64" json:"ip"`
	UserAgent  string                            `gorm:"size:500" json:"user_agent"`
	Country    string                            `gorm:"size:64" json:"country"`
	City       string                            `gorm:"size:100" json:"city"`
	OccurredAt time.Time                         `gorm:"index" json:"occurred_at"`
	CreatedAt  time.Time                         `json:"created_at"`
}
