package audit

import (
	"encoding/json"
	"fmt"

	"cardsite-backend/internal/database"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LogOptions struct {
	BrandID     *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog stores one audit entry using database.DB.
func WriteLog(opts LogOptions) error {
	return WriteLogTx(database.DB, opts)
}

// WriteLogTx stores one audit entry inside the caller's transaction.
func WriteLogTx(tx *gorm.DB, opts LogOptions) error {
	if opts.UserName == "" && opts.UserID != 0 {
		tx.Model(&models.User{}).Select("name").Where("id = ?", opts.UserID).Scan(&opts.UserName)
	}

	entry := models.AuditLog{
		BrandID:     opts.BrandID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  toJSON(opts.Before),
		AfterData:   toJSON(opts.After),
	}

	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Record is WriteLog for call sites that must not fail because auditing did.
func Record(opts LogOptions) {
	if err := WriteLog(opts); err != nil {
		logging.L.WithError(err).WithField("entity", opts.EntityType).Warn("audit log dropped")
	}
}

// jsonb rejects an empty string, so absent data is stored as JSON null.
func toJSON(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
