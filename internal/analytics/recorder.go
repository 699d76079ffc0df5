// Package analytics records client and server side interaction events.
// Recording never fails the request that triggered it.
package analytics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"cardsite-backend/internal/database"
	"cardsite-backend/internal/events"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const unknownIP = "unknown"

type Recorder struct {
	wg sync.WaitGroup
}

// Default is the process-wide recorder used by the redirect and download paths.
var Default = &Recorder{}

// Record stores ev synchronously on db.
func (r *Recorder) Record(db *gorm.DB, ev *models.AnalyticsEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	ev.OccurredAt = ev.OccurredAt.UTC()

	if err := db.Create(ev).Error; err != nil {
		metrics.AnalyticsEvents.WithLabelValues(string(ev.Type), "error").Inc()
		return fmt.Errorf("store analytics event: %w", err)
	}
	metrics.AnalyticsEvents.WithLabelValues(string(ev.Type), "stored").Inc()

	events.Emit(events.SubjectAnalyticsEvent, fiber.Map{
		"id":        ev.ID,
		"type":      ev.Type,
		"brand_id":  ev.BrandID,
		"branch_id": ev.BranchID,
		"at":        ev.OccurredAt,
	})
	return nil
}

// RecordAsync stores ev in the background; failures are only logged.
// The database handle is captured at call time.
func (r *Recorder) RecordAsync(ev models.AnalyticsEvent) {
	db := database.DB
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				logging.L.WithField("panic", p).Error("analytics recorder panicked")
			}
		}()
		if err := r.Record(db, &ev); err != nil {
			logging.L.WithError(err).WithField("type", ev.Type).Warn("analytics event dropped")
		}
	}()
}

// Flush waits for in-flight asynchronous writes.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

func RecordAsync(ev models.AnalyticsEvent) { Default.RecordAsync(ev) }
func Flush()                               { Default.Flush() }

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then "unknown".
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return utils.CopyString(first)
		}
	}
	if xr := strings.TrimSpace(c.Get("X-Real-IP")); xr != "" {
		return utils.CopyString(xr)
	}
	return unknownIP
}

// FromRequest builds an event carrying the request's client details. All
// strings are copied so the event may outlive the request.
func FromRequest(c *fiber.Ctx, t models.EventType) models.AnalyticsEvent {
	return models.AnalyticsEvent{
		Type:      t,
		PageURL:   utils.CopyString(c.OriginalURL()),
		IP:        ClientIP(c),
		UserAgent: truncate(utils.CopyString(c.Get(fiber.HeaderUserAgent)), 500),
		Country:   utils.CopyString(c.Get("CF-IPCountry")),
		City:      utils.CopyString(c.Get("X-Geo-City")),
		Metadata: datatypes.NewJSONType(models.EventMetadata{
			Referrer: truncate(utils.CopyString(c.Get(fiber.HeaderReferer)), 500),
		}),
		OccurredAt: time.Now(),
	}
}

// ForTarget is FromRequest for redirects and downloads of a stored entity.
func ForTarget(c *fiber.Ctx, t models.EventType, brandID uint, branchID *uint, targetID uint) models.AnalyticsEvent {
	ev := FromRequest(c, t)
	meta := ev.Metadata.Data()
	meta.TargetID = targetID
	ev.Metadata = datatypes.NewJSONType(meta)
	ev.BrandID = &brandID
	ev.BranchID = branchID
	return ev
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
